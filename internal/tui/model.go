package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/indexsync/indexsync/internal/reconcile"
)

type statsMsg reconcile.Stats

type finishMsg struct {
	ok    bool
	stats reconcile.Stats
	err   error
}

// model is the bubbletea model for a reconcile pass, adapted from
// internal/ui's indexingModel, trimmed to this domain's single rolling
// counter set instead of a multi-stage embedding pipeline.
type model struct {
	spinner   spinner.Model
	styles    styles
	stats     reconcile.Stats
	started   time.Time
	finished  bool
	ok        bool
	finishErr error
	quitting  bool
}

func newModel(st styles) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime))
	return &model{
		spinner: s,
		styles:  st,
		started: time.Now(),
	}
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case statsMsg:
		m.stats = reconcile.Stats(msg)
		return m, nil
	case finishMsg:
		m.finished = true
		m.ok = msg.ok
		m.stats = msg.stats
		m.finishErr = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.finished {
		return m.renderFinished()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s reconciling... (%s)\n", m.spinner.View(), time.Since(m.started).Round(time.Second)))
	b.WriteString(m.renderCounters())

	return m.styles.Panel.Render(b.String())
}

func (m *model) renderCounters() string {
	rows := []struct {
		label string
		n     int
		style lipgloss.Style
	}{
		{"new", m.stats.New, m.styles.Success},
		{"updated", m.stats.Updated, m.styles.Active},
		{"equal", m.stats.Equal, m.styles.Dim},
		{"skipped", m.stats.Skipped, m.styles.Dim},
		{"symlinks skipped", m.stats.SymlinksSkipped, m.styles.Dim},
		{"errors", m.stats.Errors, m.styles.Error},
	}
	var parts []string
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%s %s", r.style.Render(fmt.Sprintf("%d", r.n)), m.styles.Label.Render(r.label)))
	}
	return strings.Join(parts, "  ")
}

func (m *model) renderFinished() string {
	status := m.styles.Success.Render("done")
	if !m.ok {
		status = m.styles.Error.Render("aborted")
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s in %s\n", status, time.Since(m.started).Round(time.Second)))
	b.WriteString(m.renderCounters())
	if m.finishErr != nil {
		b.WriteString("\n" + m.styles.Error.Render(m.finishErr.Error()))
	}
	return m.styles.Panel.Render(b.String())
}
