package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TokenDetails is the sale contract's view of the token on offer. Price is in
// wei per whole token.
type TokenDetails struct {
	Name         string
	Symbol       string
	Balance      *big.Int
	Supply       *big.Int
	TokenPrice   *big.Int
	TokenAddress common.Address
}

// ICO is the token sale contract.
type ICO struct {
	contract
}

func newICO(addr common.Address, backend Backend) *ICO {
	return &ICO{contract: newContract("ico", addr, ICOABI(), backend)}
}

func (c *ICO) Address() common.Address { return c.address }

func (c *ICO) TokenDetails(ctx context.Context) (TokenDetails, error) {
	out, err := c.call(ctx, "getTokenDetails")
	if err != nil {
		return TokenDetails{}, err
	}
	return TokenDetails{
		Name:         toString(out, 0),
		Symbol:       toString(out, 1),
		Balance:      toBig(out, 2),
		Supply:       toBig(out, 3),
		TokenPrice:   toBig(out, 4),
		TokenAddress: toAddress(out, 5),
	}, nil
}

func (c *ICO) SoldTokens(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "soldTokens")
}

func (c *ICO) Owner(ctx context.Context) (common.Address, error) {
	return c.callAddress(ctx, "owner")
}

// BuyToken purchases count whole tokens, paying value wei.
func (c *ICO) BuyToken(opts *bind.TransactOpts, count, value *big.Int) (*types.Transaction, error) {
	payable := *opts
	payable.Value = value
	return c.transact(&payable, "buyToken", count)
}

func (c *ICO) UpdateToken(opts *bind.TransactOpts, token common.Address) (*types.Transaction, error) {
	return c.transact(opts, "updateToken", token)
}

func (c *ICO) UpdateTokenSalePrice(opts *bind.TransactOpts, priceWei *big.Int) (*types.Transaction, error) {
	return c.transact(opts, "updateTokenSalePrice", priceWei)
}

func (c *ICO) WithdrawAllTokens(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.transact(opts, "withdrawAllTokens")
}
