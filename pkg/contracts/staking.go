package contracts

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PoolInfo is the on-chain configuration and total stake of one pool.
type PoolInfo struct {
	DepositToken    common.Address
	RewardToken     common.Address
	DepositedAmount *big.Int
	APY             *big.Int
	LockDays        *big.Int
}

// UserInfo is one account's position in a pool.
type UserInfo struct {
	Amount       *big.Int
	LastRewardAt *big.Int
	LockUntil    *big.Int
}

// Notification is a decoded staking Notification event.
type Notification struct {
	PoolID      *big.Int
	Amount      *big.Int
	User        common.Address
	TypeOf      string
	Timestamp   *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// Staking is the staking pool contract.
type Staking struct {
	contract
}

func newStaking(addr common.Address, backend Backend) *Staking {
	return &Staking{contract: newContract("staking", addr, StakingABI(), backend)}
}

func (s *Staking) Address() common.Address { return s.address }

func (s *Staking) PoolCount(ctx context.Context) (*big.Int, error) {
	return s.callBig(ctx, "poolCount")
}

func (s *Staking) PoolInfo(ctx context.Context, pid *big.Int) (PoolInfo, error) {
	out, err := s.call(ctx, "poolInfo", pid)
	if err != nil {
		return PoolInfo{}, err
	}
	return PoolInfo{
		DepositToken:    toAddress(out, 0),
		RewardToken:     toAddress(out, 1),
		DepositedAmount: toBig(out, 2),
		APY:             toBig(out, 3),
		LockDays:        toBig(out, 4),
	}, nil
}

func (s *Staking) UserInfo(ctx context.Context, pid *big.Int, user common.Address) (UserInfo, error) {
	out, err := s.call(ctx, "userInfo", pid, user)
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{
		Amount:       toBig(out, 0),
		LastRewardAt: toBig(out, 1),
		LockUntil:    toBig(out, 2),
	}, nil
}

func (s *Staking) PendingReward(ctx context.Context, pid *big.Int, user common.Address) (*big.Int, error) {
	return s.callBig(ctx, "pendingReward", pid, user)
}

func (s *Staking) Owner(ctx context.Context) (common.Address, error) {
	return s.callAddress(ctx, "owner")
}

// Notifications returns Notification events from fromBlock onwards, newest first.
func (s *Staking) Notifications(ctx context.Context, fromBlock uint64) ([]Notification, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{s.abi.Events["Notification"].ID}},
	}
	logs, err := s.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, callError(s.name, "Notification", err)
	}

	out := make([]Notification, 0, len(logs))
	for _, l := range logs {
		n, err := s.decodeNotification(l)
		if err != nil {
			return nil, callError(s.name, "Notification", err)
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})
	return out, nil
}

func (s *Staking) decodeNotification(l types.Log) (Notification, error) {
	var ev struct {
		PoolID    *big.Int
		Amount    *big.Int
		User      common.Address
		TypeOf    string
		Timestamp *big.Int
	}
	if err := s.bound.UnpackLog(&ev, "Notification", l); err != nil {
		return Notification{}, err
	}
	return Notification{
		PoolID:      ev.PoolID,
		Amount:      ev.Amount,
		User:        ev.User,
		TypeOf:      ev.TypeOf,
		Timestamp:   ev.Timestamp,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}, nil
}

func (s *Staking) Deposit(opts *bind.TransactOpts, pid, amount *big.Int) (*types.Transaction, error) {
	return s.transact(opts, "deposit", pid, amount)
}

func (s *Staking) Withdraw(opts *bind.TransactOpts, pid, amount *big.Int) (*types.Transaction, error) {
	return s.transact(opts, "withdraw", pid, amount)
}

func (s *Staking) ClaimReward(opts *bind.TransactOpts, pid *big.Int) (*types.Transaction, error) {
	return s.transact(opts, "claimReward", pid)
}

func (s *Staking) AddPool(opts *bind.TransactOpts, depositToken, rewardToken common.Address, apy, lockDays *big.Int) (*types.Transaction, error) {
	return s.transact(opts, "addPool", depositToken, rewardToken, apy, lockDays)
}

func (s *Staking) ModifyPool(opts *bind.TransactOpts, pid, apy *big.Int) (*types.Transaction, error) {
	return s.transact(opts, "modifyPool", pid, apy)
}

// Sweep moves stray tokens held by the staking contract to the owner.
func (s *Staking) Sweep(opts *bind.TransactOpts, token common.Address, amount *big.Int) (*types.Transaction, error) {
	return s.transact(opts, "sweep", token, amount)
}
