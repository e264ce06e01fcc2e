package tui

import (
	"fmt"
	"strings"
	"time"

	"stakedash/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/mdp/qrterminal/v3"
)

func (m model) View() string {
	switch m.screen {
	case screenHelp:
		return m.viewHelp()
	case screenChart:
		return m.viewChart()
	case screenNotifications:
		return m.viewNotifications()
	case screenQR:
		return m.viewQR()
	case screenForm:
		if m.form != nil {
			return m.viewForm()
		}
	}
	return m.viewMain()
}

func (m model) place(content, footer string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", subtleStyle.Render(footer)))
}

func (m model) viewMain() string {
	d := m.dashboard

	// Top Bar
	netName := m.config.Network.Name
	if netName == "" {
		netName = fmt.Sprintf("chain %d", m.config.Network.ChainID)
	}
	netRendered := subtleStyle.Render(fmt.Sprintf(" %s (%d)", netName, m.config.Network.ChainID))
	connText, connWarn := connectionLabel(m.snapshot)
	connStyle := infoStyle
	if connWarn {
		connStyle = errStyle
	} else if !m.snapshot.IsConnected {
		connStyle = subtleStyle
	}
	if m.connecting {
		connText = m.spinner.View() + " Connecting..."
	}
	leftBlock := lipgloss.JoinHorizontal(lipgloss.Top, netRendered, subtleStyle.Render(" • "), connStyle.Render(connText))

	spinnerView := ""
	if m.loading || m.busy != "" {
		spinnerView = m.spinner.View() + " "
	}
	lastUpd := "never"
	if !m.lastUpdate.IsZero() {
		lastUpd = m.lastUpdate.Format("15:04:05")
	}
	privacyIndicator := ""
	if m.privacyMode {
		privacyIndicator = "🔒 "
	}
	rightBlock := subtleStyle.Render(fmt.Sprintf("%s%sLast updated: %s ", privacyIndicator, spinnerView, lastUpd))
	gap := m.width - lipgloss.Width(leftBlock) - lipgloss.Width(rightBlock)
	if gap < 0 {
		gap = 0
	}
	topBar := lipgloss.JoinHorizontal(lipgloss.Top, leftBlock, strings.Repeat(" ", gap), rightBlock)

	targetWidth := m.width - 4
	if targetWidth < 40 {
		targetWidth = 40
	}

	var sections []string
	sections = append(sections, titleStyle.Render("Staking Dashboard"))

	if m.loading && d.UpdatedAt.IsZero() {
		sections = append(sections, "Loading contract data...")
	} else {
		sections = append(sections, m.renderBalances(), "", m.renderPools(), "", m.renderICO())
		if admin := m.renderAdmin(); admin != "" {
			sections = append(sections, "", admin)
		}
	}
	if m.lastTx != nil {
		text, isErr := resultStatus(*m.lastTx)
		style := subtleStyle
		if isErr {
			style = errStyle
		}
		sections = append(sections, "", style.Render("Last tx: "+text))
	}
	if m.busy != "" {
		sections = append(sections, warnStyle.Render(fmt.Sprintf("%s %s in progress, confirm in your wallet...", m.spinner.View(), strings.ReplaceAll(m.busy, "_", " "))))
	}

	content := boxStyle.Width(targetWidth).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))

	// Footer
	line1 := "c:connect • x:disconnect • r:refresh • ↑/↓:pool • s:stake • u:unstake • w:claim • b:buy • t:tokens"
	line2 := "y:copy • Q:qr • g:chart • n:activity • o:open tx • P:privacy • ?:help • q:quit"
	if m.isAdmin() {
		line2 = "a:admin • " + line2
	}
	line2 += fmt.Sprintf(" • v%s", Version)

	var footer string
	if m.width > 0 {
		l1 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line1)
		l2 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line2)
		footer = lipgloss.JoinVertical(lipgloss.Center, l1, l2)
	} else {
		footer = subtleStyle.Render(line1 + "\n" + line2)
	}
	if m.statusMessage != "" {
		style := infoStyle
		if m.statusIsErr {
			style = errStyle
		}
		footer = lipgloss.JoinVertical(lipgloss.Center, style.Render(m.statusMessage), footer)
	}

	h := m.height - 1
	if h < 0 {
		h = 0
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		topBar,
		lipgloss.Place(
			m.width,
			h,
			lipgloss.Center,
			lipgloss.Center,
			lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
		),
	)
}

func (m model) renderBalances() string {
	d := m.dashboard
	if !m.snapshot.IsConnected {
		return subtleStyle.Render("Connect a wallet to see your balances and positions.")
	}
	return fmt.Sprintf("Wallet: %s %s • %s %s",
		m.displayUnits(d.DepositToken.Balance, d.DepositToken.Decimals), d.DepositToken.Symbol,
		m.displayUnits(d.RewardToken.Balance, d.RewardToken.Decimals), d.RewardToken.Symbol)
}

func (m model) renderPools() string {
	d := m.dashboard
	header := tableHeaderStyle.Render(fmt.Sprintf("  %-4s %-10s %-10s %6s %6s %14s %14s %14s %-10s",
		"ID", "DEPOSIT", "REWARD", "APY", "LOCK", "TVL", "STAKED", "PENDING", "UNLOCK"))
	if len(d.Pools) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, subtleStyle.Render("Pools"), subtleStyle.Render("No pools found"))
	}
	now := time.Now()
	rows := []string{subtleStyle.Render(fmt.Sprintf("Pools (total deposited: %s %s)",
		m.displayUnits(d.TotalDeposited, d.DepositToken.Decimals), d.DepositToken.Symbol)), header}
	for i, p := range d.Pools {
		unlock := "-"
		if r := lockRemaining(p, now); r > 0 {
			unlock = r.String()
		} else if p.UserStaked != nil && p.UserStaked.Sign() > 0 {
			unlock = "unlocked"
		}
		row := fmt.Sprintf("%-4d %-10s %-10s %5s%% %5sd %14s %14s %14s %-10s",
			p.ID,
			utils.TruncateString(p.DepositToken.Symbol, 10),
			utils.TruncateString(p.RewardToken.Symbol, 10),
			bigString(p.APY),
			bigString(p.LockDays),
			m.displayUnits(p.DepositedAmount, p.DepositToken.Decimals),
			m.displayUnits(p.UserStaked, p.DepositToken.Decimals),
			m.displayUnits(p.PendingReward, p.RewardToken.Decimals),
			unlock,
		)
		if i == m.selectedPool {
			row = selectedStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		rows = append(rows, row)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m model) renderICO() string {
	ico := m.dashboard.ICO
	if ico.Address == "" {
		return subtleStyle.Render("Token sale not configured")
	}
	lines := []string{
		subtleStyle.Render(fmt.Sprintf("Token Sale %s", m.maskAddress(ico.Address))),
		fmt.Sprintf("%s (%s) • Price: %s %s • Sold: %s • Available: %s",
			ico.Token.Name, ico.Token.Symbol,
			utils.FormatUnits(ico.Price, 18, 6), m.config.Network.Currency.Symbol,
			bigString(ico.Sold),
			m.displayUnits(ico.Available, ico.Token.Decimals)),
	}
	if m.snapshot.IsConnected {
		lines = append(lines, fmt.Sprintf("Your balance: %s %s", m.displayUnits(ico.UserBalance, ico.Token.Decimals), ico.Token.Symbol))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) renderAdmin() string {
	d := m.dashboard
	var parts []string
	if d.IsStakingOwner {
		parts = append(parts, fmt.Sprintf("staking owner (spare %s: %s)",
			d.DepositToken.Symbol, m.displayUnits(d.SpareBalance, d.DepositToken.Decimals)))
	}
	if d.IsICOOwner {
		parts = append(parts, "sale owner")
	}
	if len(parts) == 0 {
		return ""
	}
	return warnStyle.Render("Admin: " + strings.Join(parts, " • "))
}

func (m model) viewForm() string {
	title := titleStyle.Render(strings.ReplaceAll(strings.ToUpper(string(m.formKind)), "_", " "))
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View()))
	return m.place(content, "Enter to continue • Esc to cancel")
}

func (m model) viewHelp() string {
	rows := [][2]string{
		{"c", "Connect wallet"},
		{"x", "Disconnect wallet"},
		{"r", "Refresh now"},
		{"↑/↓ k/j", "Select pool"},
		{"s", "Stake in selected pool"},
		{"u", "Unstake from selected pool"},
		{"w", "Claim pool rewards"},
		{"b", "Buy sale tokens"},
		{"t", "Transfer or approve ERC20 tokens"},
		{"a", "Admin actions (owner only)"},
		{"y", "Copy connected address"},
		{"Q", "Show address QR code"},
		{"g", "Total deposited chart"},
		{"n", "Staking activity"},
		{"o", "Open last transaction in explorer"},
		{"P", "Toggle privacy mode"},
		{"q", "Quit"},
	}
	var lines []string
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%-10s %s", infoStyle.Render(r[0]), r[1]))
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Help"), "", strings.Join(lines, "\n")))
	return m.place(content, "q/esc: back")
}

func (m model) viewChart() string {
	header := titleStyle.Render(fmt.Sprintf("Total Deposited (%s)", m.dashboard.DepositToken.Symbol))
	values := historyValues(m.history)

	var graph string
	if len(values) < 2 {
		graph = subtleStyle.Render("Not enough data yet, samples are taken on every refresh.")
	} else {
		width := m.width - 20
		if width < 20 {
			width = 20
		}
		height := m.height - 12
		if height < 5 {
			height = 5
		}
		graph = asciigraph.Plot(values,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(fmt.Sprintf("%s to %s",
				m.history[0].Timestamp.Format("15:04"), m.history[len(m.history)-1].Timestamp.Format("15:04"))),
		)
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", graph))
	return m.place(content, "q/esc: back")
}

func (m model) viewNotifications() string {
	header := titleStyle.Render("Staking Activity")
	notes := m.dashboard.Notifications
	if len(notes) == 0 {
		return m.place(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", "No activity found")), "q/esc: back")
	}

	headers := tableHeaderStyle.Render(fmt.Sprintf("  %-16s %-10s %-5s %14s %-13s %-13s", "TIME", "TYPE", "POOL", "AMOUNT", "USER", "TX"))
	rows := []string{headers}
	limit := m.height - 10
	if limit < 5 {
		limit = 5
	}
	start := 0
	if m.noteIdx >= limit {
		start = m.noteIdx - limit + 1
	}
	for i := start; i < len(notes) && i < start+limit; i++ {
		n := notes[i]
		row := fmt.Sprintf("%-16s %-10s %-5d %14s %-13s %-13s",
			n.Timestamp.Format("2006-01-02 15:04"),
			utils.TruncateString(n.TypeOf, 10),
			n.PoolID,
			m.displayUnits(n.Amount, m.poolDecimals(n.PoolID)),
			m.maskAddress(n.User),
			utils.ShortenAddress(n.TxHash),
		)
		if i == m.noteIdx {
			row = selectedStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		rows = append(rows, row)
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "", strings.Join(rows, "\n")))
	return m.place(content, "↑/↓: select • o/enter: open in explorer • q/esc: back")
}

// poolDecimals is the deposit token decimals of a pool, 18 when unknown.
func (m model) poolDecimals(id int) uint8 {
	for _, p := range m.dashboard.Pools {
		if p.ID == id {
			return p.DepositToken.Decimals
		}
	}
	return 18
}

func (m model) viewQR() string {
	header := titleStyle.Render("Connected Address")
	if !m.snapshot.IsConnected {
		return m.place(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", "No account connected")), "q/esc: back")
	}
	var qr strings.Builder
	qrterminal.GenerateHalfBlock(m.snapshot.Account, qrterminal.L, &qr)
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "", qr.String(), m.snapshot.Account))
	return m.place(content, "y: copy • q/esc: back")
}
