package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token is an ERC20 contract.
type Token struct {
	contract
}

func newToken(addr common.Address, backend Backend) *Token {
	return &Token{contract: newContract("erc20", addr, ERC20ABI(), backend)}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Name(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "name")
	if err != nil {
		return "", err
	}
	return toString(out, 0), nil
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return toString(out, 0), nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	d, _ := out[0].(uint8)
	return d, nil
}

func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	return t.callBig(ctx, "totalSupply")
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return t.callBig(ctx, "balanceOf", account)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.callBig(ctx, "allowance", owner, spender)
}

func (t *Token) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.transact(opts, "approve", spender, amount)
}

func (t *Token) Transfer(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.transact(opts, "transfer", to, amount)
}
