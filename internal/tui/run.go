package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"codeguard/internal/progress"
)

type Options struct {
	// Events is optional; it feeds the event log panel.
	Events <-chan progress.Event
	// Results is closed by the producer once every file has been analyzed.
	Results <-chan FileResult
}

func Run(opts Options) error {
	if opts.Results == nil {
		return fmt.Errorf("tui results channel is required")
	}

	m := newModel(opts.Events, opts.Results)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
