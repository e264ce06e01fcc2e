// Package watcher keeps the dashboard data fresh. It refreshes on a timer, on
// session changes and after every dispatched transaction, and fans the results
// out to subscribers.
package watcher

import (
	"context"
	"sync"
	"time"

	"stakedash/pkg/actions"
	"stakedash/pkg/models"
	"stakedash/pkg/session"
	"stakedash/pkg/utils"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultInterval = 30 * time.Second
	refreshTimeout  = 20 * time.Second
	maxHistory      = 120
)

// DataSource assembles the dashboard for an account. The zero address means
// no account is connected.
type DataSource interface {
	Dashboard(ctx context.Context, account common.Address) models.Dashboard
}

// SessionSource is the read side of the wallet session.
type SessionSource interface {
	Snapshot() session.Snapshot
	Subscribe() session.Subscriber
	Unsubscribe(session.Subscriber)
}

// Watcher manages background refreshes and state.
type Watcher struct {
	source   DataSource
	session  SessionSource
	interval time.Duration
	log      *log.Logger

	dashboard models.Dashboard
	snapshot  session.Snapshot
	history   []models.DepositPoint
	lastTx    *actions.Result

	subscribers []Subscriber
	mu          sync.RWMutex
	refreshCh   chan struct{}
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWatcher creates a Watcher refreshing every interval.
func NewWatcher(source DataSource, sess SessionSource, interval time.Duration, logger *log.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	w := &Watcher{
		source:    source,
		session:   sess,
		interval:  interval,
		log:       logger.With("component", "watcher"),
		refreshCh: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
	if sess != nil {
		w.snapshot = sess.Snapshot()
	}
	return w
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			w.log.Debug("dropping event for slow subscriber", "type", event.Type)
		}
	}
}

// Start begins the refresh loop.
func (w *Watcher) Start(ctx context.Context) {
	var sub session.Subscriber
	if w.session != nil {
		sub = w.session.Subscribe()
	}
	go w.pollingLoop(ctx, sub)
}

// Stop stops the refresh loop.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Refresh asks the loop for an immediate refresh. Requests made while one is
// already queued are merged.
func (w *Watcher) Refresh() {
	select {
	case w.refreshCh <- struct{}{}:
	default:
	}
}

// Notify records an action result and refreshes when the transaction may have
// changed on-chain state.
func (w *Watcher) Notify(r actions.Result) {
	w.mu.Lock()
	w.lastTx = &r
	w.mu.Unlock()
	w.notify(Event{Type: EventTxStatus, Data: r})
	if r.Status != actions.StatusFailed {
		w.Refresh()
	}
}

func (w *Watcher) pollingLoop(ctx context.Context, sub session.Subscriber) {
	if sub != nil {
		defer w.session.Unsubscribe(sub)
	}

	w.fetchAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.fetchAll(ctx)
		case <-w.refreshCh:
			w.fetchAll(ctx)
		case snap, ok := <-sub:
			if !ok {
				sub = nil
				continue
			}
			if w.updateSession(snap) {
				w.fetchAll(ctx)
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// updateSession stores snap and reports whether the account or chain moved.
func (w *Watcher) updateSession(snap session.Snapshot) bool {
	w.mu.Lock()
	prev := w.snapshot
	w.snapshot = snap
	w.mu.Unlock()
	w.notify(Event{Type: EventSessionChanged, Data: snap})

	if prev.Account != snap.Account || prev.IsConnected != snap.IsConnected {
		return true
	}
	if (prev.ChainID == nil) != (snap.ChainID == nil) {
		return true
	}
	return prev.ChainID != nil && prev.ChainID.Cmp(snap.ChainID) != 0
}

// account is the connected account to fetch for. The live session wins over
// the last event so a missed update cannot pin refreshes to an old account.
func (w *Watcher) account() common.Address {
	var snap session.Snapshot
	if w.session != nil {
		snap = w.session.Snapshot()
	} else {
		w.mu.RLock()
		snap = w.snapshot
		w.mu.RUnlock()
	}
	if !snap.IsConnected || snap.Account == "" {
		return common.Address{}
	}
	return common.HexToAddress(snap.Account)
}

func (w *Watcher) fetchAll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	account := w.account()
	start := time.Now()
	d := w.source.Dashboard(ctx, account)
	if ctx.Err() == context.Canceled {
		return
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}

	w.mu.Lock()
	w.dashboard = d
	if d.TotalDeposited != nil {
		w.history = append(w.history, models.DepositPoint{
			Timestamp: d.UpdatedAt,
			Value:     utils.UnitsToFloat(d.TotalDeposited, d.DepositToken.Decimals),
		})
		if len(w.history) > maxHistory {
			w.history = w.history[len(w.history)-maxHistory:]
		}
	}
	w.mu.Unlock()

	w.log.Debug("dashboard refreshed", "account", account.Hex(), "pools", len(d.Pools), "took", time.Since(start))
	w.notify(Event{Type: EventDashboardUpdated, Data: d})
}

// GetDashboard returns the last fetched dashboard.
func (w *Watcher) GetDashboard() models.Dashboard {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dashboard
}

// GetSession returns the last session snapshot seen by the watcher.
func (w *Watcher) GetSession() session.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// GetHistory returns a copy of the total-deposited samples, oldest first.
func (w *Watcher) GetHistory() []models.DepositPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]models.DepositPoint, len(w.history))
	copy(cp, w.history)
	return cp
}

// LastTx returns the most recent action result, if any.
func (w *Watcher) LastTx() (actions.Result, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastTx == nil {
		return actions.Result{}, false
	}
	return *w.lastTx, true
}
