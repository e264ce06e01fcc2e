package tui

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"stakedash/pkg/actions"
	"stakedash/pkg/config"
	"stakedash/pkg/models"
	"stakedash/pkg/session"
	"stakedash/pkg/wallet"
	"stakedash/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountHex = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

type fakeSession struct {
	snap        session.Snapshot
	connectErr  error
	disconnects int
}

func (f *fakeSession) Connect(ctx context.Context) (common.Address, error) {
	if f.connectErr != nil {
		return common.Address{}, f.connectErr
	}
	f.snap = connected()
	return common.HexToAddress(accountHex), nil
}

func (f *fakeSession) Disconnect() {
	f.disconnects++
	f.snap = session.Snapshot{State: session.Disconnected}
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

type fakeActions struct {
	Actions
	staked    []string
	transfers [][3]string
	approvals [][3]string
}

func (f *fakeActions) Transfer(ctx context.Context, token, to, amount string) actions.Result {
	f.transfers = append(f.transfers, [3]string{token, to, amount})
	return actions.Result{Action: "transfer", Status: actions.StatusSuccess, TxHash: "0x1234567890abcdef"}
}

func (f *fakeActions) Approve(ctx context.Context, token, spender, amount string) actions.Result {
	f.approvals = append(f.approvals, [3]string{token, spender, amount})
	return actions.Result{Action: "approve", Status: actions.StatusSuccess, TxHash: "0x1234567890abcdef"}
}

func (f *fakeActions) Stake(ctx context.Context, pool int, amount string) actions.Result {
	f.staked = append(f.staked, amount)
	return actions.Result{Action: "stake", Status: actions.StatusSuccess, TxHash: "0x1234567890abcdef"}
}

func connected() session.Snapshot {
	return session.Snapshot{
		State:         session.Connected,
		IsConnected:   true,
		Account:       accountHex,
		ChainID:       big.NewInt(11155111),
		TargetChainID: big.NewInt(11155111),
	}
}

type staticSource struct{ d models.Dashboard }

func (s staticSource) Dashboard(ctx context.Context, a common.Address) models.Dashboard { return s.d }

func testModel(t *testing.T, s *fakeSession, a Actions) model {
	t.Helper()
	logger := log.Default().With()
	logger.SetLevel(log.FatalLevel)
	w := watcher.NewWatcher(staticSource{}, nil, time.Hour, logger)
	m := initialModel(context.Background(), w, s, a, config.DefaultConfig())
	t.Cleanup(func() { w.Unsubscribe(m.sub) })
	return m
}

func pools() []models.Pool {
	return []models.Pool{
		{ID: 0, DepositToken: models.TokenInfo{Symbol: "DEP", Decimals: 6}, APY: big.NewInt(10), LockDays: big.NewInt(7)},
		{ID: 1, DepositToken: models.TokenInfo{Symbol: "DEP", Decimals: 6}, APY: big.NewInt(20), LockDays: big.NewInt(30)},
	}
}

func press(m model, key string) (model, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestConnectionLabel(t *testing.T) {
	label, warn := connectionLabel(session.Snapshot{})
	assert.Equal(t, "Disconnected", label)
	assert.False(t, warn)

	label, _ = connectionLabel(session.Snapshot{IsLoading: true})
	assert.Equal(t, "Connecting...", label)

	label, warn = connectionLabel(connected())
	assert.Equal(t, "Connected: 0x7099...79c8", label)
	assert.False(t, warn)

	snap := connected()
	snap.NetworkMismatch = true
	snap.ChainID = big.NewInt(1)
	label, warn = connectionLabel(snap)
	assert.Contains(t, label, "wrong network: chain 1, expected 11155111")
	assert.True(t, warn)

	label, warn = connectionLabel(session.Snapshot{Error: "wallet provider unavailable"})
	assert.Equal(t, "Disconnected: wallet provider unavailable", label)
	assert.True(t, warn)
}

func TestLockRemaining(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Zero(t, lockRemaining(models.Pool{}, now))
	assert.Zero(t, lockRemaining(models.Pool{LockUntil: now.Add(-time.Hour)}, now))
	assert.Equal(t, 90*time.Minute, lockRemaining(models.Pool{LockUntil: now.Add(90*time.Minute + 30*time.Second)}, now))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateAmount(6)("1.5"))
	assert.Error(t, validateAmount(6)("0"))
	assert.Error(t, validateAmount(6)("0.0000001"))
	assert.Error(t, validateAmount(0)("1.5"))
	assert.Error(t, validateAmount(18)("abc"))

	assert.NoError(t, validateAddress(accountHex))
	assert.Error(t, validateAddress("0x123"))

	assert.NoError(t, validateUint("12"))
	assert.Error(t, validateUint("-1"))
	assert.Error(t, validateUint("1.2"))
}

func TestHistoryValues(t *testing.T) {
	pts := []models.DepositPoint{{Value: 1}, {Value: 2.5}}
	assert.Equal(t, []float64{1, 2.5}, historyValues(pts))
	assert.Empty(t, historyValues(nil))
}

func TestResultStatus(t *testing.T) {
	text, isErr := resultStatus(actions.Result{Action: "add_pool", Status: actions.StatusPending, TxHash: "0x1234567890abcdef"})
	assert.Equal(t, "add pool still pending (0x1234...cdef)", text)
	assert.False(t, isErr)

	text, isErr = resultStatus(actions.Result{Action: "buy", Status: actions.StatusFailed, Message: "Not enough tokens"})
	assert.Equal(t, "buy failed: Not enough tokens", text)
	assert.True(t, isErr)
}

func TestUpdate_WatcherEvents(t *testing.T) {
	m := testModel(t, &fakeSession{}, &fakeActions{})
	m.selectedPool = 5

	next, cmd := m.Update(watcher.Event{Type: watcher.EventDashboardUpdated, Data: models.Dashboard{Pools: pools(), UpdatedAt: time.Now()}})
	m = next.(model)
	assert.NotNil(t, cmd, "keeps listening for the next event")
	assert.False(t, m.loading)
	assert.Len(t, m.dashboard.Pools, 2)
	assert.Equal(t, 1, m.selectedPool)

	next, _ = m.Update(watcher.Event{Type: watcher.EventSessionChanged, Data: connected()})
	m = next.(model)
	assert.True(t, m.snapshot.IsConnected)
}

func TestUpdate_PoolSelection(t *testing.T) {
	m := testModel(t, &fakeSession{}, &fakeActions{})
	m.dashboard.Pools = pools()

	m, _ = press(m, "down")
	assert.Equal(t, 1, m.selectedPool)
	m, _ = press(m, "down")
	assert.Equal(t, 1, m.selectedPool)
	m, _ = press(m, "up")
	assert.Equal(t, 0, m.selectedPool)
}

func TestUpdate_ActionsRequireConnection(t *testing.T) {
	m := testModel(t, &fakeSession{}, &fakeActions{})
	m.dashboard.Pools = pools()

	m, _ = press(m, "s")
	assert.Equal(t, screenMain, m.screen)
	assert.Equal(t, "Connect a wallet first (c)", m.statusMessage)
	assert.True(t, m.statusIsErr)
}

func TestUpdate_StakeFormFlow(t *testing.T) {
	fa := &fakeActions{}
	m := testModel(t, &fakeSession{snap: connected()}, fa)
	m.snapshot = connected()
	m.dashboard.Pools = pools()

	m, _ = press(m, "s")
	require.Equal(t, screenForm, m.screen)
	require.NotNil(t, m.form)
	assert.Equal(t, formStake, m.formKind)

	// Bypass the form widgets and submit what it would have collected.
	m.values.Amount = "2.5"
	cmd := m.submitForm()
	assert.Equal(t, screenMain, m.screen)
	assert.Equal(t, "stake", m.busy)
	require.NotNil(t, cmd)

	done := fa.Stake(context.Background(), 0, "2.5")
	next, _ := m.Update(actionDoneMsg{result: done})
	m = next.(model)
	assert.Empty(t, m.busy)
	assert.Equal(t, "stake confirmed (0x1234...cdef)", m.statusMessage)
	require.NotNil(t, m.lastTx)
}

func TestUpdate_EscClosesForm(t *testing.T) {
	m := testModel(t, &fakeSession{}, &fakeActions{})
	m.snapshot = connected()
	m.dashboard.Pools = pools()

	m, _ = press(m, "u")
	require.Equal(t, screenForm, m.screen)
	m, _ = press(m, "esc")
	assert.Equal(t, screenMain, m.screen)
	assert.Nil(t, m.form)
}

func TestUpdate_AdminGate(t *testing.T) {
	m := testModel(t, &fakeSession{}, &fakeActions{})
	m.snapshot = connected()

	m, _ = press(m, "a")
	assert.Equal(t, screenMain, m.screen)
	assert.Equal(t, "Admin actions require the contract owner", m.statusMessage)

	m.dashboard.IsStakingOwner = true
	m, _ = press(m, "a")
	assert.Equal(t, screenForm, m.screen)
	assert.Equal(t, formAdmin, m.formKind)

	// Choosing an admin action opens its form.
	m.values.Menu = string(formSweep)
	m.submitForm()
	assert.Equal(t, screenForm, m.screen)
	assert.Equal(t, formSweep, m.formKind)
	assert.Equal(t, m.config.Contracts.DepositToken, m.values.Token)
}

func TestUpdate_TokenForms(t *testing.T) {
	const recipient = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	fa := &fakeActions{}
	m := testModel(t, &fakeSession{}, fa)
	m.config.Contracts.DepositToken = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
	m.config.Contracts.Staking = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	m, _ = press(m, "t")
	assert.Equal(t, screenMain, m.screen, "needs a connected wallet")

	m.snapshot = connected()
	m, _ = press(m, "t")
	require.Equal(t, screenForm, m.screen)
	assert.Equal(t, formTokens, m.formKind)

	m.values.Menu = string(formTransfer)
	m.submitForm()
	require.Equal(t, formTransfer, m.formKind)
	assert.Equal(t, m.config.Contracts.DepositToken, m.values.Token)
	assert.Empty(t, m.values.Target)

	m.values.Target = recipient
	m.values.Amount = "4.5"
	cmd := m.submitForm()
	require.NotNil(t, cmd)
	assert.Equal(t, "transfer", m.busy)
	assert.Equal(t, "transfer", actionResult(t, cmd).Action)
	assert.Equal(t, [][3]string{{m.config.Contracts.DepositToken, recipient, "4.5"}}, fa.transfers)

	m.busy = ""
	m, _ = press(m, "t")
	m.values.Menu = string(formApprove)
	m.submitForm()
	require.Equal(t, formApprove, m.formKind)
	assert.Equal(t, m.config.Contracts.Staking, m.values.Target, "spender defaults to the staking contract")

	m.values.Amount = "100"
	cmd = m.submitForm()
	require.NotNil(t, cmd)
	assert.Equal(t, "approve", m.busy)
	assert.Equal(t, "approve", actionResult(t, cmd).Action)
	require.Len(t, fa.approvals, 1)
	assert.Equal(t, m.config.Contracts.Staking, fa.approvals[0][1])
}

// actionResult runs the batched commands of a submitted form and returns the
// action outcome.
func actionResult(t *testing.T, cmd tea.Cmd) actions.Result {
	t.Helper()
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		if c == nil {
			continue
		}
		if done, ok := c().(actionDoneMsg); ok {
			return done.result
		}
	}
	require.Fail(t, "no action in batch")
	return actions.Result{}
}

func TestUpdate_ConnectAndDisconnect(t *testing.T) {
	s := &fakeSession{}
	m := testModel(t, s, &fakeActions{})

	m, cmd := press(m, "c")
	assert.True(t, m.connecting)
	require.NotNil(t, cmd)

	account, err := s.Connect(context.Background())
	require.NoError(t, err)
	next, _ := m.Update(connectResultMsg{account: account})
	m = next.(model)
	assert.False(t, m.connecting)
	assert.True(t, m.snapshot.IsConnected)
	assert.Contains(t, m.statusMessage, "Connected 0x7099")

	m, _ = press(m, "x")
	assert.Equal(t, 1, s.disconnects)
	assert.False(t, m.snapshot.IsConnected)
}

func TestUpdate_ConnectRejected(t *testing.T) {
	s := &fakeSession{connectErr: &wallet.Error{Kind: wallet.KindUserRejected, Err: errors.New("denied")}}
	m := testModel(t, s, &fakeActions{})

	next, _ := m.Update(connectResultMsg{err: s.connectErr})
	m = next.(model)
	assert.Equal(t, "Connection request rejected in wallet", m.statusMessage)
	assert.True(t, m.statusIsErr)
}

func TestView_Renders(t *testing.T) {
	m := testModel(t, &fakeSession{}, &fakeActions{})
	m.width, m.height = 120, 40
	m.loading = false
	m.dashboard = models.Dashboard{Pools: pools(), UpdatedAt: time.Now(), ICO: models.ICOInfo{Address: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"}}

	out := m.View()
	assert.Contains(t, out, "Staking Dashboard")
	assert.Contains(t, out, "DEP")

	m.screen = screenChart
	assert.Contains(t, m.View(), "Not enough data yet")

	m.screen = screenQR
	assert.Contains(t, m.View(), "No account connected")
}
