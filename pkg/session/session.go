// Package session owns the wallet connection: the provider handle, the active
// account and its signer, and the wallet's current chain. Everyone else reads a
// Snapshot and asks for Connect or Disconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"stakedash/pkg/config"
	"stakedash/pkg/wallet"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned by a connect attempt that finished after a
// Disconnect or a reinitialization invalidated it.
var ErrSuperseded = errors.New("connection attempt superseded")

// Session is the connection state machine. It is safe for concurrent use.
type Session struct {
	detect      wallet.Detector
	target      *big.Int
	chainParams wallet.ChainParams
	policy      string
	log         *log.Logger

	mu      sync.RWMutex
	state   State
	wallet  wallet.Provider // lives as long as the change subscription
	backend wallet.Backend  // nil while disconnected
	account *common.Address
	signer  *bind.TransactOpts
	chainID *big.Int
	lastErr error
	gen     uint64

	group singleflight.Group

	subMu       sync.Mutex
	subscribers []Subscriber

	quit      chan struct{}
	closeOnce sync.Once
	done      sync.WaitGroup
}

// New creates a disconnected session targeting the configured network.
func New(detect wallet.Detector, cfg config.Config, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	policy := cfg.Global.ChainChangePolicy
	if policy == "" {
		policy = config.PolicyRederive
	}
	return &Session{
		detect:      detect,
		target:      big.NewInt(cfg.Network.ChainID),
		chainParams: wallet.ChainParamsFromConfig(cfg.Network),
		policy:      policy,
		log:         logger.With("component", "session"),
		quit:        make(chan struct{}),
	}
}

// Connect requests account access and becomes Connected. While Connected it
// returns the current account without contacting the wallet; concurrent calls
// share one attempt.
func (s *Session) Connect(ctx context.Context) (common.Address, error) {
	s.mu.RLock()
	if s.state == Connected && s.account != nil {
		addr := *s.account
		s.mu.RUnlock()
		return addr, nil
	}
	s.mu.RUnlock()

	v, err, shared := s.group.Do("connect", func() (interface{}, error) {
		return s.connect(ctx)
	})
	if shared {
		s.log.Debug("joined in-flight connect")
	}
	if err != nil {
		return common.Address{}, err
	}
	return v.(common.Address), nil
}

func (s *Session) connect(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	// A caller arriving just after another attempt finished joins a new group
	// call; it must not prompt again.
	if s.state == Connected && s.account != nil {
		addr := *s.account
		s.mu.Unlock()
		return addr, nil
	}
	gen := s.gen
	s.state = Connecting
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()

	p, err := s.provider(ctx)
	if err != nil {
		return common.Address{}, s.fail(gen, err)
	}
	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, s.fail(gen, wallet.Classify("request accounts", err))
	}
	if len(accounts) == 0 {
		return common.Address{}, s.fail(gen, &wallet.Error{Kind: wallet.KindUnknown, Op: "request accounts", Err: errors.New("wallet returned no accounts")})
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return common.Address{}, s.fail(gen, wallet.Classify("chain id", err))
	}

	var switchErr error
	if chainID.Cmp(s.target) != 0 {
		chainID, switchErr = s.ensureNetwork(ctx, p, chainID)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return common.Address{}, ErrSuperseded
	}
	s.adopt(p, accounts[0], chainID)
	s.lastErr = switchErr
	addr := *s.account
	s.mu.Unlock()

	s.log.Info("connected", "account", addr.Hex(), "chain", chainID, "mismatch", chainID.Cmp(s.target) != 0)
	s.notify()
	return addr, nil
}

// ensureNetwork asks the wallet to switch to the target chain, registering it
// first if the wallet does not know it. Failure leaves the wallet where it was.
func (s *Session) ensureNetwork(ctx context.Context, p wallet.Provider, current *big.Int) (*big.Int, error) {
	err := p.SwitchChain(ctx, s.target)
	if code, ok := wallet.Code(err); ok && code == wallet.CodeUnrecognizedChain {
		s.log.Info("target chain unknown to wallet, adding it", "chain", s.target)
		if err = p.AddChain(ctx, s.chainParams); err == nil {
			err = p.SwitchChain(ctx, s.target)
		}
	}
	if err != nil {
		s.log.Warn("network switch failed", "from", current, "to", s.target, "err", err)
		return current, &wallet.Error{Kind: wallet.KindNetworkSwitchFailed, Op: "switch network", Err: err}
	}
	id, err := p.ChainID(ctx)
	if err != nil {
		return current, wallet.Classify("chain id", err)
	}
	return id, nil
}

// fail records err and returns the session to Disconnected unless a newer
// generation has taken over.
func (s *Session) fail(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen == gen {
		s.state = Disconnected
		s.lastErr = err
	}
	s.mu.Unlock()
	s.log.Warn("connect failed", "kind", wallet.KindOf(err), "err", err)
	s.notify()
	return err
}

// adopt installs account and chain, deriving a fresh signer. Callers hold mu.
func (s *Session) adopt(p wallet.Provider, account common.Address, chainID *big.Int) {
	s.account = &account
	s.chainID = new(big.Int).Set(chainID)
	s.backend = p.Backend()
	s.signer = &bind.TransactOpts{
		From:   account,
		Signer: p.SignerFn(account, chainID),
	}
	s.state = Connected
}

// clear drops all derived state. Callers hold mu.
func (s *Session) clear() {
	s.gen++
	s.state = Disconnected
	s.account = nil
	s.signer = nil
	s.backend = nil
	s.chainID = nil
	s.lastErr = nil
}

// Disconnect forgets the account locally. The wallet is not contacted.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.clear()
	s.mu.Unlock()
	s.log.Info("disconnected")
	s.notify()
}

// Restore adopts an already permitted account without prompting. It is the
// startup path when auto-connect is enabled.
func (s *Session) Restore(ctx context.Context) error {
	return s.initialize(ctx)
}

// initialize is the single re-entrant setup routine: it finds the wallet, reads
// its chain and silently adopts the first permitted account, if any.
func (s *Session) initialize(ctx context.Context) error {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	p, err := s.provider(ctx)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.lastErr = err
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return wallet.Classify("chain id", err)
	}
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return wallet.Classify("accounts", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if len(accounts) == 0 {
		s.chainID = new(big.Int).Set(chainID)
	} else {
		s.adopt(p, accounts[0], chainID)
	}
	s.mu.Unlock()

	if len(accounts) > 0 {
		s.log.Info("restored session", "account", accounts[0].Hex(), "chain", chainID)
	}
	s.notify()
	return nil
}

// provider returns the wallet handle, detecting it and starting the change
// subscription on first use.
func (s *Session) provider(ctx context.Context) (wallet.Provider, error) {
	s.mu.RLock()
	p := s.wallet
	s.mu.RUnlock()
	if p != nil {
		return p, nil
	}
	if s.detect == nil {
		return nil, &wallet.Error{Kind: wallet.KindProviderUnavailable, Op: "detect", Err: errors.New("no wallet detector configured")}
	}
	p, err := s.detect(ctx)
	if err != nil {
		return nil, wallet.Classify("detect", err)
	}

	// Subscribe before the handle is published so no notification sent after
	// the first wallet call can miss the session.
	ev := subscribe(p)

	s.mu.Lock()
	if s.wallet != nil {
		// Lost a detection race; keep the first handle.
		existing := s.wallet
		s.mu.Unlock()
		ev.unsubscribe()
		p.Close()
		return existing, nil
	}
	s.wallet = p
	s.mu.Unlock()

	s.done.Add(1)
	go s.eventLoop(p, ev)
	return p, nil
}

// walletEvents are the change subscriptions of one provider.
type walletEvents struct {
	accounts chan []common.Address
	chains   chan *big.Int
	accSub   event.Subscription
	chainSub event.Subscription
}

func subscribe(p wallet.Provider) walletEvents {
	ev := walletEvents{
		accounts: make(chan []common.Address, 16),
		chains:   make(chan *big.Int, 16),
	}
	ev.accSub = p.SubscribeAccountsChanged(ev.accounts)
	ev.chainSub = p.SubscribeChainChanged(ev.chains)
	return ev
}

func (ev walletEvents) unsubscribe() {
	ev.accSub.Unsubscribe()
	ev.chainSub.Unsubscribe()
}

// eventLoop applies wallet notifications one at a time, in arrival order.
func (s *Session) eventLoop(p wallet.Provider, ev walletEvents) {
	defer s.done.Done()
	defer ev.unsubscribe()

	for {
		select {
		case accounts := <-ev.accounts:
			s.onAccountsChanged(p, accounts)
		case id := <-ev.chains:
			s.onChainChanged(p, id)
		case err := <-ev.accSub.Err():
			s.subscriptionEnded(err)
			return
		case err := <-ev.chainSub.Err():
			s.subscriptionEnded(err)
			return
		case <-s.quit:
			return
		}
	}
}

func (s *Session) subscriptionEnded(err error) {
	if err != nil {
		s.log.Error("wallet subscription ended", "err", err)
	}
}

func (s *Session) onAccountsChanged(p wallet.Provider, accounts []common.Address) {
	if len(accounts) == 0 {
		s.log.Info("wallet revoked all accounts")
		s.Disconnect()
		return
	}

	s.mu.RLock()
	chainID := s.chainID
	s.mu.RUnlock()
	if chainID == nil {
		ctx, cancel := context.WithTimeout(context.Background(), wallet.DialTimeout)
		id, err := p.ChainID(ctx)
		cancel()
		if err != nil {
			s.log.Warn("cannot read chain after account change", "err", err)
			return
		}
		chainID = id
	}

	s.mu.Lock()
	s.gen++
	s.adopt(p, accounts[0], chainID)
	s.mu.Unlock()
	s.log.Info("account changed", "account", accounts[0].Hex())
	s.notify()
}

func (s *Session) onChainChanged(p wallet.Provider, id *big.Int) {
	s.log.Info("chain changed", "chain", id, "policy", s.policy)

	if s.policy == config.PolicyReinitialize {
		s.mu.Lock()
		s.clear()
		s.mu.Unlock()
		s.notify()

		ctx, cancel := context.WithTimeout(context.Background(), wallet.DialTimeout)
		defer cancel()
		if err := s.initialize(ctx); err != nil {
			s.log.Warn("reinitialize after chain change failed", "err", err)
		}
		return
	}

	s.mu.Lock()
	if s.account != nil {
		s.adopt(p, *s.account, id)
	} else {
		s.chainID = new(big.Int).Set(id)
	}
	if id.Cmp(s.target) == 0 && wallet.KindOf(s.lastErr) == wallet.KindNetworkSwitchFailed {
		s.lastErr = nil
	}
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:         s.state,
		TargetChainID: new(big.Int).Set(s.target),
		IsConnected:   s.state == Connected,
		IsLoading:     s.state == Connecting,
		Err:           s.lastErr,
	}
	if s.account != nil {
		snap.Account = strings.ToLower(s.account.Hex())
	}
	if s.chainID != nil {
		snap.ChainID = new(big.Int).Set(s.chainID)
		snap.NetworkMismatch = s.state == Connected && s.chainID.Cmp(s.target) != 0
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
		snap.ErrorKind = wallet.KindOf(s.lastErr).String()
	}
	return snap
}

// Signer returns a copy of the transactor for the active account.
func (s *Session) Signer() (*bind.TransactOpts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return nil, fmt.Errorf("no connected account: %w", ErrNotConnected)
	}
	opts := *s.signer
	return &opts, nil
}

// Backend returns the wallet-backed chain client of the connected session.
func (s *Session) Backend() (wallet.Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return nil, fmt.Errorf("no wallet backend: %w", ErrNotConnected)
	}
	return s.backend, nil
}

// Account returns the active account, if any.
func (s *Session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return common.Address{}, false
	}
	return *s.account, true
}

// Close ends the change subscription and releases the wallet handle.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.done.Wait()
		s.mu.Lock()
		p := s.wallet
		s.wallet = nil
		s.clear()
		s.mu.Unlock()
		if p != nil {
			p.Close()
		}
	})
}

// Subscribe returns a channel receiving a Snapshot after every state change.
func (s *Session) Subscribe() Subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(Subscriber, 16)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscriber.
func (s *Session) Unsubscribe(ch Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// notify is serialized so subscribers see snapshots in the order they were taken.
func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	snap := s.Snapshot()
	for _, sub := range s.subscribers {
		select {
		case sub <- snap:
			continue
		default:
		}
		// Full buffer: drop the oldest queued snapshot so the latest state
		// always reaches the subscriber.
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- snap:
		default:
			s.log.Debug("dropping session update for slow subscriber")
		}
	}
}
