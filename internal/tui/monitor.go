// Package tui renders a live terminal view of a running session: the
// scrolling transcript plus a status line with map and puzzle progress.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/autoplay/internal/orchestrator"
)

var (
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	statusStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			Foreground(lipgloss.Color("#AAAAAA"))

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)
)

type eventMsg struct {
	evt orchestrator.Event
}

type model struct {
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	transcript string
	turn       int
	room       string
	puzzles    int
	mazes      int
	finished   string
}

// Monitor is an orchestrator hook rendering events into a bubbletea
// program. Run it on its own goroutine; OnEvent is safe to call from
// the game loop.
type Monitor struct {
	program *tea.Program
}

// NewMonitor builds the monitor and its underlying program.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.program = tea.NewProgram(model{}, tea.WithAltScreen())
	return m
}

// Run blocks until the user quits the view.
func (m *Monitor) Run() error {
	_, err := m.program.Run()
	return err
}

// OnEvent implements orchestrator.Hook.
func (m *Monitor) OnEvent(evt orchestrator.Event) {
	m.program.Send(eventMsg{evt: evt})
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-2)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 2
		}
		m.viewport.SetContent(m.transcript)
		m.viewport.GotoBottom()

	case eventMsg:
		m.apply(msg.evt)
		if m.ready {
			m.viewport.SetContent(m.transcript)
			m.viewport.GotoBottom()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) apply(evt orchestrator.Event) {
	if evt.Turn > m.turn {
		m.turn = evt.Turn
	}
	switch evt.Type {
	case orchestrator.EventTurnEnd:
		m.transcript += commandStyle.Render(fmt.Sprintf("[%d] > %s", evt.Turn, evt.Command)) + "\n"
		m.transcript += gameStyle.Render(evt.Output) + "\n\n"
	case orchestrator.EventRoomEnter:
		m.room = evt.Detail
	case orchestrator.EventPuzzleFound:
		m.puzzles++
		m.transcript += alertStyle.Render("puzzle: " + evt.Detail) + "\n"
	case orchestrator.EventPuzzleSolved:
		m.transcript += alertStyle.Render("solved: " + evt.Detail) + "\n"
	case orchestrator.EventMazeDetected:
		m.mazes++
		m.transcript += alertStyle.Render("maze detected: " + evt.Detail) + "\n"
	case orchestrator.EventMazeCompleted:
		m.transcript += alertStyle.Render("maze mapped: " + evt.Detail) + "\n"
	case orchestrator.EventGameEnd:
		m.finished = evt.Detail
	}
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}
	status := fmt.Sprintf(" turn %d | room: %s | puzzles found: %d | mazes: %d",
		m.turn, m.room, m.puzzles, m.mazes)
	if m.finished != "" {
		status += " | finished: " + m.finished
	}
	return m.viewport.View() + "\n" + statusStyle.Width(m.width).Render(status)
}
