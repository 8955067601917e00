// Package tui implements a terminal inspector for the scheduling core:
// playhead position, loop region, per-instrument voice occupancy, and
// pending event counts, refreshed on the same ~16ms tick cadence the
// teacher tracker's editor used for its own playback display
// (pkg/tui/model.go), generalized from a pattern editor into a
// read-only transport/voice dashboard.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alperkosan/dawg-sub005/pkg/engine"
)

// InstrumentStatus is one row of the voice-occupancy table.
type InstrumentStatus struct {
	ID           string
	ActiveVoices int
	MaxVoices    int
}

// Model is the inspector's bubbletea model.
type Model struct {
	Engine *engine.Engine

	Width  int
	Height int

	PositionTicks int64
	BPM           float64
	Playing       bool
	LoopStart     int64
	LoopEnd       int64
	LoopEnabled   bool
	PendingEvents int
	Instruments   []InstrumentStatus

	StatusMsg string
}

// NewModel wires an inspector around an already-running engine.
func NewModel(eng *engine.Engine) Model {
	return Model{
		Engine: eng,
		Width:  100,
		Height: 24,
	}
}

// WithInstrumentStatuses returns a copy of m with its voice-occupancy
// table set, since pkg/engine keeps its instrument map private (§9
// non-owning references only) — the host application tracks its own
// instrument IDs and polls their voice pools to build this list.
func (m Model) WithInstrumentStatuses(statuses []InstrumentStatus) Model {
	m.Instruments = statuses
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, tickCmd())
}

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) refresh() {
	if m.Engine == nil {
		return
	}
	t := m.Engine.Transport
	m.PositionTicks = t.NowTicks()
	m.BPM = t.BPM()
	m.Playing = t.IsPlaying()
	m.LoopStart, m.LoopEnd, m.LoopEnabled = t.Loop()
	m.PendingEvents = m.Engine.Scheduler.Len()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.Engine != nil {
			m.Engine.Shutdown()
		}
		return m, tea.Quit

	case " ":
		if m.Engine == nil {
			return m, nil
		}
		if m.Playing {
			m.Engine.Transport.Pause()
			m.StatusMsg = "paused"
		} else {
			m.Engine.Transport.Resume()
			m.StatusMsg = "playing"
		}

	case "s":
		if m.Engine != nil {
			m.Engine.Transport.Stop()
			m.Engine.Manager.StopAll()
			m.StatusMsg = "stopped"
		}

	case "home":
		if m.Engine != nil {
			m.Engine.Transport.Seek(0)
			m.StatusMsg = "sought to 0"
		}

	case "l":
		if m.Engine != nil {
			_, _, enabled := m.Engine.Transport.Loop()
			start, end, _ := m.Engine.Transport.Loop()
			m.Engine.Transport.SetLoop(start, end, !enabled)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")
	b.WriteString(m.transportView())
	b.WriteString("\n\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Render("DAWGCORE INSPECTOR")
	status := "STOPPED"
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	if m.Playing {
		status = "PLAYING"
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
	return title + "  " + style.Render(status)
}

func (m Model) transportView() string {
	bars := m.PositionTicks / (4 * 96)
	beat := (m.PositionTicks / 96) % 4
	tickInBeat := m.PositionTicks % 96

	loopStr := "off"
	if m.LoopEnabled {
		loopStr = fmt.Sprintf("[%d..%d]", m.LoopStart, m.LoopEnd)
	}

	lines := []string{
		fmt.Sprintf("position   bar %d beat %d tick %d  (tick %d)", bars+1, beat+1, tickInBeat, m.PositionTicks),
		fmt.Sprintf("bpm        %.1f", m.BPM),
		fmt.Sprintf("loop       %s", loopStr),
		fmt.Sprintf("pending    %d scheduled events", m.PendingEvents),
	}

	for _, inst := range m.Instruments {
		lines = append(lines, fmt.Sprintf("%-12s %d/%d voices", inst.ID, inst.ActiveVoices, inst.MaxVoices))
	}

	return strings.Join(lines, "\n")
}

func (m Model) footerView() string {
	keys := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).
		Render("[space] play/pause  [s] stop  [home] seek 0  [l] toggle loop  [q] quit")
	if m.StatusMsg != "" {
		keys += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.StatusMsg)
	}
	return keys
}
