package viz

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/tendaim/epifit/internal/epi"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

type tickMsg time.Time

// LiveModel advances a sim one day per tick and plots the infectious
// curve as it grows.
type LiveModel struct {
	sim     *epi.Sim
	days    int
	day     int
	history []float64
	paused  bool
	err     error
}

func NewLiveModel(sim *epi.Sim) LiveModel {
	return LiveModel{
		sim:     sim,
		days:    sim.Params.Days(),
		history: make([]float64, 0),
	}
}

func tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m LiveModel) Init() tea.Cmd { return tick() }

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		}
	case tickMsg:
		if m.paused {
			return m, tick()
		}
		if m.day >= m.days || m.err != nil {
			return m, nil
		}
		if err := m.sim.Step(m.day); err != nil {
			m.err = err
			return m, nil
		}
		m.day++
		m.history = append(m.history, float64(m.sim.Infectious()))
		return m, tick()
	}
	return m, nil
}

func (m LiveModel) View() string {
	s := headerStyle.Render(fmt.Sprintf("epifit live: %s", m.sim.Label)) + "\n"

	if len(m.history) > 1 {
		s += graphStyle.Render(asciigraph.Plot(m.history,
			asciigraph.Height(12),
			asciigraph.Width(plotWidth),
			asciigraph.Caption("currently infectious"),
		)) + "\n"
	}

	date := m.sim.Params.StartDay.AddDate(0, 0, m.day)
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}
	s += row("day", fmt.Sprintf("%d / %d (%s)", m.day, m.days, date.Format(epi.DateLayout)))
	s += row("infectious", fmt.Sprintf("%d", m.sim.Infectious()))

	if m.err != nil {
		s += row("error", m.err.Error())
	}
	if m.day >= m.days {
		s += helpStyle.Render("finished, q to quit")
	} else {
		s += helpStyle.Render("space to pause, q to quit")
	}
	return s
}

// RunLive drives the live view to completion.
func RunLive(sim *epi.Sim) error {
	p := tea.NewProgram(NewLiveModel(sim))
	_, err := p.Run()
	return err
}
