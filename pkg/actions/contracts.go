package actions

import (
	"context"
	"math/big"

	"stakedash/pkg/contracts"
	"stakedash/pkg/wallet"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// StakingWriter is the staking contract surface the dispatcher drives.
type StakingWriter interface {
	Address() common.Address
	PoolInfo(ctx context.Context, pid *big.Int) (contracts.PoolInfo, error)
	Deposit(opts *bind.TransactOpts, pid, amount *big.Int) (*types.Transaction, error)
	Withdraw(opts *bind.TransactOpts, pid, amount *big.Int) (*types.Transaction, error)
	ClaimReward(opts *bind.TransactOpts, pid *big.Int) (*types.Transaction, error)
	AddPool(opts *bind.TransactOpts, depositToken, rewardToken common.Address, apy, lockDays *big.Int) (*types.Transaction, error)
	ModifyPool(opts *bind.TransactOpts, pid, apy *big.Int) (*types.Transaction, error)
	Sweep(opts *bind.TransactOpts, token common.Address, amount *big.Int) (*types.Transaction, error)
}

// ICOWriter is the token sale surface the dispatcher drives.
type ICOWriter interface {
	Address() common.Address
	TokenDetails(ctx context.Context) (contracts.TokenDetails, error)
	BuyToken(opts *bind.TransactOpts, count, value *big.Int) (*types.Transaction, error)
	UpdateToken(opts *bind.TransactOpts, token common.Address) (*types.Transaction, error)
	UpdateTokenSalePrice(opts *bind.TransactOpts, priceWei *big.Int) (*types.Transaction, error)
	WithdrawAllTokens(opts *bind.TransactOpts) (*types.Transaction, error)
}

// TokenWriter is the ERC20 surface the dispatcher drives.
type TokenWriter interface {
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error)
	Transfer(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error)
}

// Contracts is the bound contract group for one signer backend.
type Contracts interface {
	Staking() StakingWriter
	ICO() ICOWriter
	Token(addr common.Address) TokenWriter
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Binder binds contracts to the connected wallet's backend.
type Binder func(backend wallet.Backend) (Contracts, error)

// ManagerBinder binds through m, reusing its cached set while the backend is
// unchanged.
func ManagerBinder(m *contracts.Manager) Binder {
	return func(backend wallet.Backend) (Contracts, error) {
		set, err := m.Bind(backend)
		if err != nil {
			return nil, err
		}
		return setContracts{set: set}, nil
	}
}

type setContracts struct{ set *contracts.Set }

func (s setContracts) Staking() StakingWriter                { return s.set.Staking }
func (s setContracts) ICO() ICOWriter                        { return s.set.ICO }
func (s setContracts) Token(addr common.Address) TokenWriter { return s.set.Token(addr) }

func (s setContracts) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return s.set.WaitMined(ctx, tx)
}
