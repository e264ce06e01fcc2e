// Package contracts binds typed handles to the staking, token sale and ERC20
// contracts at their configured addresses.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"stakedash/pkg/config"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the chain access the bindings need for reads, writes and receipts.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Addresses are the fixed contract locations.
type Addresses struct {
	Staking      common.Address
	ICO          common.Address
	DepositToken common.Address
	RewardToken  common.Address
}

// AddressesFromConfig parses the configured addresses. Empty entries stay zero.
func AddressesFromConfig(c config.ContractsConfig) (Addresses, error) {
	var a Addresses
	for _, f := range []struct {
		name string
		in   string
		out  *common.Address
	}{
		{"staking", c.Staking, &a.Staking},
		{"ico", c.ICO, &a.ICO},
		{"deposit_token", c.DepositToken, &a.DepositToken},
		{"reward_token", c.RewardToken, &a.RewardToken},
	} {
		if f.in == "" {
			continue
		}
		if !common.IsHexAddress(f.in) {
			return a, fmt.Errorf("contracts.%s: invalid address %q", f.name, f.in)
		}
		*f.out = common.HexToAddress(f.in)
	}
	return a, nil
}

// Manager lazily binds a Set and keeps it while the backend stays the same.
type Manager struct {
	addrs Addresses

	mu      sync.Mutex
	backend Backend
	set     *Set
}

func NewManager(addrs Addresses) *Manager {
	return &Manager{addrs: addrs}
}

// Addresses returns the configured contract addresses.
func (m *Manager) Addresses() Addresses { return m.addrs }

// Bind returns the Set for backend, rebuilding it when backend changes.
func (m *Manager) Bind(backend Backend) (*Set, error) {
	if backend == nil {
		return nil, fmt.Errorf("bind contracts: %w", ErrNotConfigured)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set != nil && m.backend == backend {
		return m.set, nil
	}
	m.backend = backend
	m.set = newSet(m.addrs, backend)
	return m.set, nil
}

// Set is the group of handles bound to one backend.
type Set struct {
	Staking *Staking
	ICO     *ICO

	addrs   Addresses
	backend Backend

	mu     sync.Mutex
	tokens map[common.Address]*Token
}

func newSet(addrs Addresses, backend Backend) *Set {
	return &Set{
		Staking: newStaking(addrs.Staking, backend),
		ICO:     newICO(addrs.ICO, backend),
		addrs:   addrs,
		backend: backend,
		tokens:  make(map[common.Address]*Token),
	}
}

// Token returns the ERC20 handle at addr, cached per Set.
func (s *Set) Token(addr common.Address) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[addr]; ok {
		return t
	}
	t := newToken(addr, s.backend)
	s.tokens[addr] = t
	return t
}

// Addresses returns the addresses the Set was bound to.
func (s *Set) Addresses() Addresses { return s.addrs }

// Backend returns the backend the Set was bound to.
func (s *Set) Backend() Backend { return s.backend }

// WaitMined blocks until tx is mined or ctx ends. A reverted receipt yields
// ErrTransactionFailed.
func (s *Set) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return WaitMined(ctx, s.backend, tx)
}

// WaitMined blocks until tx is mined or ctx ends. A reverted receipt yields
// ErrTransactionFailed.
func WaitMined(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s reverted in block %s", ErrTransactionFailed, tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

// contract is the shared read/write plumbing behind each typed handle.
type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	backend Backend
}

func newContract(name string, addr common.Address, parsed abi.ABI, backend Backend) contract {
	return contract{
		name:    name,
		address: addr,
		abi:     parsed,
		bound:   bind.NewBoundContract(addr, parsed, backend, backend, backend),
		backend: backend,
	}
}

func (c *contract) configured() error {
	if c.address == (common.Address{}) {
		return fmt.Errorf("%s: %w", c.name, ErrNotConfigured)
	}
	return nil
}

func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, callError(c.name, method, err)
	}
	return out, nil
}

func (c *contract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return toBig(out, 0), nil
}

func (c *contract) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return toAddress(out, 0), nil
}

func (c *contract) transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	tx, err := c.bound.Transact(opts, method, args...)
	if err != nil {
		return nil, callError(c.name, method, err)
	}
	return tx, nil
}

func toBig(out []interface{}, i int) *big.Int {
	if i >= len(out) {
		return new(big.Int)
	}
	v := abi.ConvertType(out[i], new(big.Int)).(*big.Int)
	return new(big.Int).Set(v)
}

func toAddress(out []interface{}, i int) common.Address {
	if i >= len(out) {
		return common.Address{}
	}
	return *abi.ConvertType(out[i], new(common.Address)).(*common.Address)
}

func toString(out []interface{}, i int) string {
	if i >= len(out) {
		return ""
	}
	s, _ := out[i].(string)
	return s
}
