package fetch

import (
	"context"
	"math/big"

	"stakedash/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// StakingReader is the read side of the staking contract.
type StakingReader interface {
	Address() common.Address
	PoolCount(ctx context.Context) (*big.Int, error)
	PoolInfo(ctx context.Context, pid *big.Int) (contracts.PoolInfo, error)
	UserInfo(ctx context.Context, pid *big.Int, user common.Address) (contracts.UserInfo, error)
	PendingReward(ctx context.Context, pid *big.Int, user common.Address) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
	Notifications(ctx context.Context, fromBlock uint64) ([]contracts.Notification, error)
}

// ICOReader is the read side of the token sale contract.
type ICOReader interface {
	Address() common.Address
	TokenDetails(ctx context.Context) (contracts.TokenDetails, error)
	SoldTokens(ctx context.Context) (*big.Int, error)
	Owner(ctx context.Context) (common.Address, error)
}

// TokenReader is the read side of an ERC20 token.
type TokenReader interface {
	Address() common.Address
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// Source hands out contract readers.
type Source interface {
	Staking() StakingReader
	ICO() ICOReader
	Token(addr common.Address) TokenReader
}

// SourceFunc yields the Source for the current backend.
type SourceFunc func() (Source, error)

type setSource struct{ set *contracts.Set }

// FromSet adapts a bound contract set to a Source.
func FromSet(set *contracts.Set) Source { return setSource{set: set} }

func (s setSource) Staking() StakingReader                { return s.set.Staking }
func (s setSource) ICO() ICOReader                        { return s.set.ICO }
func (s setSource) Token(addr common.Address) TokenReader { return s.set.Token(addr) }

// ManagerSource binds m to backend on every call, reusing the cached set.
func ManagerSource(m *contracts.Manager, backend contracts.Backend) SourceFunc {
	return func() (Source, error) {
		set, err := m.Bind(backend)
		if err != nil {
			return nil, err
		}
		return FromSet(set), nil
	}
}

// DialSource connects through dial on each call until it succeeds, then binds
// m to the returned backend. A failed dial reads as an unavailable source.
func DialSource(m *contracts.Manager, dial func(ctx context.Context) (contracts.Backend, error)) SourceFunc {
	return func() (Source, error) {
		backend, err := dial(context.Background())
		if err != nil {
			return nil, err
		}
		return ManagerSource(m, backend)()
	}
}
