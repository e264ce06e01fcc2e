package tui

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"stakedash/pkg/actions"
	"stakedash/pkg/models"
	"stakedash/pkg/session"
	"stakedash/pkg/utils"
	"stakedash/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"
)

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return clearStatusMsg{} })
}

func (m *model) setStatus(msg string, isErr bool) tea.Cmd {
	m.statusMessage = msg
	m.statusIsErr = isErr
	return clearStatusAfter(4 * time.Second)
}

// currentPool returns the highlighted pool, if there is one.
func (m model) currentPool() (models.Pool, bool) {
	if m.selectedPool < 0 || m.selectedPool >= len(m.dashboard.Pools) {
		return models.Pool{}, false
	}
	return m.dashboard.Pools[m.selectedPool], true
}

func (m model) isAdmin() bool {
	return m.dashboard.IsStakingOwner || m.dashboard.IsICOOwner
}

// connectionLabel describes the session for the header.
func connectionLabel(s session.Snapshot) (string, bool) {
	switch {
	case s.IsLoading:
		return "Connecting...", false
	case s.IsConnected && s.NetworkMismatch:
		return fmt.Sprintf("Connected: %s (wrong network: chain %s, expected %s)",
			utils.ShortenAddress(s.Account), bigString(s.ChainID), bigString(s.TargetChainID)), true
	case s.IsConnected:
		return "Connected: " + utils.ShortenAddress(s.Account), false
	case s.Error != "":
		return "Disconnected: " + s.Error, true
	default:
		return "Disconnected", false
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "?"
	}
	return v.String()
}

// lockRemaining is the time until a pool position unlocks, zero once unlocked.
func lockRemaining(p models.Pool, now time.Time) time.Duration {
	if p.LockUntil.IsZero() || !p.LockUntil.After(now) {
		return 0
	}
	return p.LockUntil.Sub(now).Truncate(time.Minute)
}

// historyValues extracts the chart series from the deposit history.
func historyValues(points []models.DepositPoint) []float64 {
	vals := make([]float64, len(points))
	for i, p := range points {
		vals[i] = p.Value
	}
	return vals
}

func validateAmount(decimals uint8) func(string) error {
	return func(s string) error {
		v, err := utils.ParseUnits(s, decimals)
		if err != nil {
			return err
		}
		if v.Sign() == 0 {
			return errors.New("amount must be greater than 0")
		}
		return nil
	}
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return errors.New("invalid ethereum address")
	}
	return nil
}

func validateUint(s string) error {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return errors.New("must be a whole number")
	}
	return nil
}

// --- Forms ---

func (m *model) openForm(kind formKind) tea.Cmd {
	*m.values = formValues{}
	v := m.values
	var groups []*huh.Group

	switch kind {
	case formStake, formUnstake:
		p, ok := m.currentPool()
		if !ok {
			return m.setStatus("No pool selected", true)
		}
		tok := p.DepositToken
		title := fmt.Sprintf("Stake %s in pool #%d", tok.Symbol, p.ID)
		desc := fmt.Sprintf("Wallet balance: %s %s", utils.FormatUnits(tok.Balance, tok.Decimals, 6), tok.Symbol)
		if kind == formUnstake {
			title = fmt.Sprintf("Unstake %s from pool #%d", tok.Symbol, p.ID)
			desc = fmt.Sprintf("Staked: %s %s", utils.FormatUnits(p.UserStaked, tok.Decimals, 6), tok.Symbol)
			if d := lockRemaining(p, time.Now()); d > 0 {
				desc += fmt.Sprintf(" (locked for %s)", d)
			}
		}
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(desc).
				Value(&v.Amount).
				Placeholder("0.0").
				Validate(validateAmount(tok.Decimals)),
		))
	case formClaim:
		p, ok := m.currentPool()
		if !ok {
			return m.setStatus("No pool selected", true)
		}
		groups = append(groups, huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Claim %s %s from pool #%d?",
					utils.FormatUnits(p.PendingReward, p.RewardToken.Decimals, 6), p.RewardToken.Symbol, p.ID)).
				Value(&v.Confirm),
		))
	case formBuy:
		ico := m.dashboard.ICO
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Buy %s", ico.Token.Symbol)).
				Description(fmt.Sprintf("Price: %s %s per token. Whole tokens only.",
					utils.FormatUnits(ico.Price, 18, 6), m.config.Network.Currency.Symbol)).
				Value(&v.Amount).
				Placeholder("1").
				Validate(validateAmount(0)),
		))
	case formAdmin:
		if !m.isAdmin() {
			return m.setStatus("Admin actions require the contract owner", true)
		}
		var opts []huh.Option[string]
		if m.dashboard.IsStakingOwner {
			opts = append(opts,
				huh.NewOption("Add pool", string(formAddPool)),
				huh.NewOption("Modify pool APY", string(formModifyPool)),
				huh.NewOption("Sweep tokens", string(formSweep)),
			)
		}
		if m.dashboard.IsICOOwner {
			opts = append(opts,
				huh.NewOption("Update sale token", string(formUpdateToken)),
				huh.NewOption("Update sale price", string(formUpdatePrice)),
				huh.NewOption("Withdraw unsold tokens", string(formWithdraw)),
			)
		}
		groups = append(groups, huh.NewGroup(
			huh.NewSelect[string]().
				Title("Admin action").
				Options(opts...).
				Value(&v.Menu),
		))
	case formTokens:
		groups = append(groups, huh.NewGroup(
			huh.NewSelect[string]().
				Title("Token action").
				Options(
					huh.NewOption("Transfer tokens", string(formTransfer)),
					huh.NewOption("Approve a spender", string(formApprove)),
				).
				Value(&v.Menu),
		))
	case formTransfer, formApprove:
		v.Token = m.config.Contracts.DepositToken
		target := huh.NewInput().Title("Recipient").Value(&v.Target).Placeholder("0x...").Validate(validateAddress)
		desc := fmt.Sprintf("%s balance: %s", m.dashboard.DepositToken.Symbol,
			utils.FormatUnits(m.dashboard.DepositToken.Balance, m.dashboard.DepositToken.Decimals, 6))
		if kind == formApprove {
			v.Target = m.config.Contracts.Staking
			target = huh.NewInput().Title("Spender").Value(&v.Target).Placeholder("0x...").Validate(validateAddress)
			desc = "Sets the allowance to this amount, replacing any previous one."
		}
		groups = append(groups, huh.NewGroup(
			huh.NewInput().Title("Token").Value(&v.Token).Placeholder("0x...").Validate(validateAddress),
			target,
			huh.NewInput().
				Title("Amount").
				Description(desc).
				Value(&v.Amount).
				Placeholder("0.0").
				Validate(validateAmount(18)),
		))
	case formAddPool:
		v.Token = m.config.Contracts.DepositToken
		v.RewardToken = m.config.Contracts.RewardToken
		groups = append(groups, huh.NewGroup(
			huh.NewInput().Title("Deposit token").Value(&v.Token).Placeholder("0x...").Validate(validateAddress),
			huh.NewInput().Title("Reward token").Value(&v.RewardToken).Placeholder("0x...").Validate(validateAddress),
			huh.NewInput().Title("APY (%)").Value(&v.APY).Placeholder("10").Validate(validateUint),
			huh.NewInput().Title("Lock days").Value(&v.LockDays).Placeholder("30").Validate(validateUint),
		))
	case formModifyPool:
		p, ok := m.currentPool()
		if !ok {
			return m.setStatus("No pool selected", true)
		}
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("New APY for pool #%d", p.ID)).
				Description(fmt.Sprintf("Current: %s%%", bigString(p.APY))).
				Value(&v.APY).
				Validate(validateUint),
		))
	case formSweep:
		v.Token = m.config.Contracts.DepositToken
		groups = append(groups, huh.NewGroup(
			huh.NewInput().Title("Token").Value(&v.Token).Placeholder("0x...").Validate(validateAddress),
			huh.NewInput().
				Title("Amount").
				Description(fmt.Sprintf("Spare %s: %s", m.dashboard.DepositToken.Symbol,
					utils.FormatUnits(m.dashboard.SpareBalance, m.dashboard.DepositToken.Decimals, 6))).
				Value(&v.Amount).
				Placeholder("0.0"),
		))
	case formUpdateToken:
		groups = append(groups, huh.NewGroup(
			huh.NewInput().Title("Sale token address").Value(&v.Token).Placeholder("0x...").Validate(validateAddress),
		))
	case formUpdatePrice:
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Price per token (%s)", m.config.Network.Currency.Symbol)).
				Description(fmt.Sprintf("Current: %s", utils.FormatUnits(m.dashboard.ICO.Price, 18, 6))).
				Value(&v.Price).
				Placeholder("0.001").
				Validate(validateAmount(18)),
		))
	case formWithdraw:
		groups = append(groups, huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Withdraw %s unsold %s?",
					utils.FormatUnits(m.dashboard.ICO.Available, m.dashboard.ICO.Token.Decimals, 4), m.dashboard.ICO.Token.Symbol)).
				Value(&v.Confirm),
		))
	default:
		return nil
	}

	m.form = huh.NewForm(groups...).WithTheme(huh.ThemeCatppuccin()).WithShowHelp(true)
	m.formKind = kind
	m.screen = screenForm
	return m.form.Init()
}

func (m *model) closeForm() {
	m.form = nil
	m.formKind = ""
	m.screen = screenMain
}

// submitForm turns a completed form into the action command, or opens the
// follow-up form for the admin menu.
func (m *model) submitForm() tea.Cmd {
	kind := m.formKind
	v := *m.values
	m.closeForm()

	if kind == formAdmin || kind == formTokens {
		return m.openForm(formKind(v.Menu))
	}
	if (kind == formClaim || kind == formWithdraw) && !v.Confirm {
		return m.setStatus("Cancelled", false)
	}

	pool := -1
	if p, ok := m.currentPool(); ok {
		pool = p.ID
	}
	run := m.actionFunc(kind, pool, v)
	if run == nil {
		return nil
	}
	m.busy = string(kind)
	ctx := m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return actionDoneMsg{result: run(ctx)}
	})
}

func (m model) actionFunc(kind formKind, pool int, v formValues) func(context.Context) actions.Result {
	a := m.actions
	switch kind {
	case formStake:
		return func(ctx context.Context) actions.Result { return a.Stake(ctx, pool, v.Amount) }
	case formUnstake:
		return func(ctx context.Context) actions.Result { return a.Unstake(ctx, pool, v.Amount) }
	case formClaim:
		return func(ctx context.Context) actions.Result { return a.Claim(ctx, pool) }
	case formBuy:
		return func(ctx context.Context) actions.Result { return a.BuyTokens(ctx, v.Amount) }
	case formAddPool:
		return func(ctx context.Context) actions.Result {
			return a.AddPool(ctx, v.Token, v.RewardToken, v.APY, v.LockDays)
		}
	case formModifyPool:
		return func(ctx context.Context) actions.Result { return a.ModifyPool(ctx, pool, v.APY) }
	case formSweep:
		return func(ctx context.Context) actions.Result { return a.Sweep(ctx, v.Token, v.Amount) }
	case formUpdateToken:
		return func(ctx context.Context) actions.Result { return a.UpdateToken(ctx, v.Token) }
	case formUpdatePrice:
		return func(ctx context.Context) actions.Result { return a.UpdateTokenPrice(ctx, v.Price) }
	case formWithdraw:
		return func(ctx context.Context) actions.Result { return a.WithdrawAllTokens(ctx) }
	case formTransfer:
		return func(ctx context.Context) actions.Result { return a.Transfer(ctx, v.Token, v.Target, v.Amount) }
	case formApprove:
		return func(ctx context.Context) actions.Result { return a.Approve(ctx, v.Token, v.Target, v.Amount) }
	}
	return nil
}

func (m model) connectCmd() tea.Cmd {
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		account, err := s.Connect(ctx)
		return connectResultMsg{account: account, err: err}
	}
}

// resultStatus renders an action result for the status line.
func resultStatus(r actions.Result) (string, bool) {
	name := strings.ReplaceAll(r.Action, "_", " ")
	switch r.Status {
	case actions.StatusSuccess:
		return fmt.Sprintf("%s confirmed (%s)", name, utils.ShortenAddress(r.TxHash)), false
	case actions.StatusPending:
		return fmt.Sprintf("%s still pending (%s)", name, utils.ShortenAddress(r.TxHash)), false
	default:
		return fmt.Sprintf("%s failed: %s", name, r.Message), true
	}
}
