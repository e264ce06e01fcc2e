package tui

import (
	"fmt"
	"strings"
	"time"

	"stakedash/pkg/actions"
	"stakedash/pkg/models"
	"stakedash/pkg/session"
	"stakedash/pkg/wallet"
	"stakedash/pkg/watcher"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The active form sees every message first. Keys stop there; everything
	// else also reaches the handlers below.
	if m.screen == screenForm && m.form != nil {
		key, isKey := msg.(tea.KeyMsg)
		if isKey && key.String() == "esc" {
			m.closeForm()
			return m, nil
		}
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}
		switch m.form.State {
		case huh.StateCompleted:
			cmds = append(cmds, m.submitForm())
		case huh.StateAborted:
			m.closeForm()
		default:
			cmds = append(cmds, cmd)
		}
		if isKey {
			return m, tea.Batch(cmds...)
		}
	}

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.form != nil {
			m.form = m.form.WithWidth(min(60, msg.Width-8))
		}

	case watcher.Event:
		// Keep listening on the same subscription.
		cmds = append(cmds, listenForWatcher(m.sub))

		switch msg.Type {
		case watcher.EventDashboardUpdated:
			if d, ok := msg.Data.(models.Dashboard); ok {
				m.dashboard = d
				m.loading = false
				m.lastUpdate = d.UpdatedAt
				if m.selectedPool >= len(d.Pools) {
					m.selectedPool = max(0, len(d.Pools)-1)
				}
				if m.watcher != nil {
					m.history = m.watcher.GetHistory()
				}
			}
		case watcher.EventSessionChanged:
			if s, ok := msg.Data.(session.Snapshot); ok {
				m.snapshot = s
			}
		case watcher.EventTxStatus:
			if r, ok := msg.Data.(actions.Result); ok {
				m.lastTx = &r
			}
		}

	case connectResultMsg:
		m.connecting = false
		m.snapshot = m.session.Snapshot()
		if msg.err != nil {
			text := msg.err.Error()
			if wallet.KindOf(msg.err) == wallet.KindUserRejected {
				text = "Connection request rejected in wallet"
			}
			cmds = append(cmds, m.setStatus(text, true))
		} else if m.snapshot.NetworkMismatch {
			cmds = append(cmds, m.setStatus("Connected, but the wallet is on the wrong network", true))
		} else {
			cmds = append(cmds, m.setStatus("Connected "+m.maskAddress(msg.account.Hex()), false))
		}

	case actionDoneMsg:
		m.busy = ""
		r := msg.result
		m.lastTx = &r
		text, isErr := resultStatus(r)
		cmds = append(cmds, m.setStatus(text, isErr))

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsErr = false
	}

	if m.loading || m.connecting || m.busy != "" {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes a key press on the non-form screens.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit, true
	}

	if m.screen != screenMain {
		switch key {
		case "q", "esc", "backspace":
			m.screen = screenMain
			return nil, true
		}
		if m.screen == screenNotifications {
			return m.handleNotificationKey(key), true
		}
		if m.screen == screenHelp && key == "?" {
			m.screen = screenMain
		}
		return nil, true
	}

	switch key {
	case "q":
		return tea.Quit, true
	case "?":
		m.screen = screenHelp
	case "P":
		m.privacyMode = !m.privacyMode
	case "c":
		if m.snapshot.IsConnected {
			return m.setStatus("Already connected", false), true
		}
		m.connecting = true
		m.snapshot.IsLoading = true
		return tea.Batch(m.spinner.Tick, m.connectCmd()), true
	case "x":
		m.session.Disconnect()
		m.snapshot = m.session.Snapshot()
		return m.setStatus("Disconnected", false), true
	case "r":
		if m.watcher != nil {
			m.watcher.Refresh()
		}
		m.loading = true
		return tea.Batch(m.spinner.Tick, m.setStatus("Refreshing data...", false)), true
	case "up", "k":
		if m.selectedPool > 0 {
			m.selectedPool--
		}
	case "down", "j":
		if m.selectedPool < len(m.dashboard.Pools)-1 {
			m.selectedPool++
		}
	case "s", "u", "w", "b", "t", "a":
		if m.busy != "" {
			return m.setStatus(fmt.Sprintf("Waiting for %s to finish", strings.ReplaceAll(m.busy, "_", " ")), true), true
		}
		if !m.snapshot.IsConnected {
			return m.setStatus("Connect a wallet first (c)", true), true
		}
		kinds := map[string]formKind{"s": formStake, "u": formUnstake, "w": formClaim, "b": formBuy, "t": formTokens, "a": formAdmin}
		return m.openForm(kinds[key]), true
	case "y":
		if !m.snapshot.IsConnected {
			return m.setStatus("No connected account", true), true
		}
		if err := clipboard.WriteAll(m.snapshot.Account); err != nil {
			return m.setStatus("Failed to copy to clipboard", true), true
		}
		if m.privacyMode {
			return m.setStatus("Full address copied (Privacy Mode active)!", false), true
		}
		return m.setStatus("Full address copied to clipboard!", false), true
	case "Q":
		m.screen = screenQR
	case "g":
		m.screen = screenChart
	case "n":
		m.noteIdx = 0
		m.screen = screenNotifications
	case "o":
		if m.lastTx == nil || m.lastTx.Link == "" {
			return m.setStatus("No transaction link to open", true), true
		}
		return m.openLink(m.lastTx.Link), true
	default:
		return nil, false
	}
	return nil, true
}

func (m *model) handleNotificationKey(key string) tea.Cmd {
	notes := m.dashboard.Notifications
	switch key {
	case "up", "k":
		if m.noteIdx > 0 {
			m.noteIdx--
		}
	case "down", "j":
		if m.noteIdx < len(notes)-1 {
			m.noteIdx++
		}
	case "o", "enter":
		if m.noteIdx < len(notes) && notes[m.noteIdx].Link != "" {
			return m.openLink(notes[m.noteIdx].Link)
		}
		return m.setStatus("Explorer URL not configured", true)
	}
	return nil
}

func (m *model) openLink(url string) tea.Cmd {
	if err := openBrowser(url); err != nil {
		return m.setStatus(fmt.Sprintf("Failed to open browser: %v", err), true)
	}
	return m.setStatus("Opened in browser", false)
}
