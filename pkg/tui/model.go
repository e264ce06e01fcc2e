package tui

import (
	"context"
	"time"

	"stakedash/pkg/actions"
	"stakedash/pkg/config"
	"stakedash/pkg/models"
	"stakedash/pkg/session"
	"stakedash/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
)

// Version is set by Start()
var Version = "dev"

// Session is the wallet session as the dashboard drives it.
type Session interface {
	Connect(ctx context.Context) (common.Address, error)
	Disconnect()
	Snapshot() session.Snapshot
}

// Actions dispatches the transactions offered by the dashboard.
type Actions interface {
	Stake(ctx context.Context, pool int, amount string) actions.Result
	Unstake(ctx context.Context, pool int, amount string) actions.Result
	Claim(ctx context.Context, pool int) actions.Result
	BuyTokens(ctx context.Context, amount string) actions.Result
	AddPool(ctx context.Context, depositToken, rewardToken, apy, lockDays string) actions.Result
	ModifyPool(ctx context.Context, pool int, apy string) actions.Result
	Sweep(ctx context.Context, token, amount string) actions.Result
	UpdateToken(ctx context.Context, token string) actions.Result
	UpdateTokenPrice(ctx context.Context, priceEth string) actions.Result
	WithdrawAllTokens(ctx context.Context) actions.Result
	Transfer(ctx context.Context, token, to, amount string) actions.Result
	Approve(ctx context.Context, token, spender, amount string) actions.Result
}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

type connectResultMsg struct {
	account common.Address
	err     error
}

type actionDoneMsg struct {
	result actions.Result
}

// --- Screens ---

type screen int

const (
	screenMain screen = iota
	screenHelp
	screenChart
	screenNotifications
	screenQR
	screenForm
)

// formKind names the action a form collects input for.
type formKind string

const (
	formStake       formKind = "stake"
	formUnstake     formKind = "unstake"
	formClaim       formKind = "claim"
	formBuy         formKind = "buy"
	formAdmin       formKind = "admin"
	formAddPool     formKind = "add_pool"
	formModifyPool  formKind = "modify_pool"
	formSweep       formKind = "sweep"
	formUpdateToken formKind = "update_token"
	formUpdatePrice formKind = "update_price"
	formWithdraw    formKind = "withdraw_tokens"
	formTokens      formKind = "tokens"
	formTransfer    formKind = "transfer"
	formApprove     formKind = "approve"
)

// formValues holds the fields bound to the active huh form. It lives behind a
// pointer so the bindings survive the model being copied on every Update.
type formValues struct {
	Amount      string
	Token       string
	RewardToken string
	Target      string // transfer recipient or approved spender
	APY         string
	LockDays    string
	Price       string
	Menu        string // choice made in a menu form
	Confirm     bool
}

// --- Model ---

type model struct {
	ctx     context.Context
	watcher *watcher.Watcher
	sub     watcher.Subscriber
	session Session
	actions Actions
	config  config.Config

	width         int
	height        int
	loading       bool
	connecting    bool
	busy          string
	lastUpdate    time.Time
	spinner       spinner.Model
	statusMessage string
	statusIsErr   bool
	privacyMode   bool

	screen       screen
	dashboard    models.Dashboard
	snapshot     session.Snapshot
	history      []models.DepositPoint
	lastTx       *actions.Result
	selectedPool int
	noteIdx      int

	form     *huh.Form
	formKind formKind
	values   *formValues
}

func initialModel(ctx context.Context, w *watcher.Watcher, s Session, a Actions, cfg config.Config) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := model{
		ctx:      ctx,
		watcher:  w,
		session:  s,
		actions:  a,
		config:   cfg,
		loading:  true,
		spinner:  sp,
		snapshot: s.Snapshot(),
		values:   &formValues{},
	}
	if w != nil {
		m.sub = w.Subscribe()
		m.dashboard = w.GetDashboard()
		m.history = w.GetHistory()
		m.loading = m.dashboard.UpdatedAt.IsZero()
	}
	return m
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd

	if m.sub != nil {
		cmds = append(cmds, listenForWatcher(m.sub))
	}
	cmds = append(cmds, m.spinner.Tick)
	cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))
	return tea.Batch(cmds...)
}
