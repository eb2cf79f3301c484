// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package tui is the interactive read-only viewer: a live picture of the
// sequencer graph that refreshes itself as the kernel announces changes.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/midimind/internal/snapshot"
)

var (
	colorAccent = lipgloss.Color("63")
	colorDim    = lipgloss.Color("241")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	helpStyle  = lipgloss.NewStyle().Foreground(colorDim)
)

// pollInterval is how often the viewer drains the announcement queue.
const pollInterval = 250 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the viewer state.
type Model struct {
	snap *snapshot.Snapshot

	ports table.Model
	conns table.Model

	width  int
	height int
}

// NewModel builds a viewer over an existing snapshot.
func NewModel(snap *snapshot.Snapshot) Model {
	ports := table.New(
		table.WithColumns([]table.Column{
			{Title: "Addr", Width: 8},
			{Title: "Client", Width: 24},
			{Title: "Port", Width: 24},
			{Title: "Dir", Width: 3},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	conns := table.New(
		table.WithColumns([]table.Column{
			{Title: "Sender", Width: 34},
			{Title: "Dest", Width: 34},
		}),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorAccent).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Bold(false)
	ports.SetStyles(s)
	conns.SetStyles(s)

	m := Model{snap: snap, ports: ports, conns: conns}
	m.reload()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// reload rebuilds the table rows from the snapshot.
func (m *Model) reload() {
	rows := make([]table.Row, 0, len(m.snap.Ports))
	for _, p := range m.snap.Ports {
		rows = append(rows, table.Row{
			p.Addr.String(),
			p.Client,
			p.Port,
			snapshot.AddressDirStr(p),
		})
	}
	m.ports.SetRows(rows)

	crows := make([]table.Row, 0, len(m.snap.Connections))
	for _, c := range m.snap.Connections {
		crows = append(crows, table.Row{
			fmt.Sprintf("%s:%s", c.Sender.Client, c.Sender.Port),
			fmt.Sprintf("%s:%s", c.Dest.Client, c.Dest.Port),
		})
	}
	m.conns.SetRows(crows)
}

// drainAnnouncements empties the gateway's event queue, reporting
// whether anything arrived.
func (m *Model) drainAnnouncements() bool {
	changed := false
	sq := m.snap.Sequencer()
	for {
		if _, ok := sq.EventInput(); !ok {
			return changed
		}
		changed = true
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.snap.Refresh()
			m.reload()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		half := (msg.Height - 8) / 2
		if half < 4 {
			half = 4
		}
		m.ports.SetHeight(half)
		m.conns.SetHeight(half)
		return m, nil

	case tickMsg:
		// The kernel announces every graph change on the watch port; any
		// pending announcement means the picture is stale.
		if m.drainAnnouncements() {
			m.snap.Refresh()
			m.reload()
		}
		return m, tick()
	}

	var cmd tea.Cmd
	m.ports, cmd = m.ports.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	out := titleStyle.Render("midimind viewer") + "\n\n"
	out += titleStyle.Render("Ports") + "\n"
	out += m.ports.View() + "\n\n"
	out += titleStyle.Render("Connections") + "\n"
	out += m.conns.View() + "\n"
	out += helpStyle.Render("r: refresh  q: quit")
	return out
}

// Run starts the viewer program and blocks until the user quits.
func Run(snap *snapshot.Snapshot) error {
	p := tea.NewProgram(NewModel(snap), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
