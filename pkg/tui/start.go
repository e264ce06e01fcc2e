package tui

import (
	"context"
	"fmt"

	"stakedash/pkg/config"
	"stakedash/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the dashboard until the user quits or ctx is cancelled.
func Start(ctx context.Context, w *watcher.Watcher, s Session, a Actions, cfg config.Config, version string) error {
	Version = version
	m := initialModel(ctx, w, s, a, cfg)
	defer w.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
