// Package term is the terminal shell for the countdown.
package term

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tock/internal/core/countdown"
	"tock/internal/core/finish"
)

// Controller is the countdown surface the shell drives.
type Controller interface {
	Subscribe(buffer int) <-chan countdown.Event
	Snapshot() countdown.Snapshot
	Toggle() error
	Reset()
	Adjust(deltaSeconds int) error
	Refresh() countdown.Snapshot
}

// VariantStore reads and writes the voice preference.
type VariantStore interface {
	Variant() finish.Variant
	SetVariant(finish.Variant) error
}

var (
	timeStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(1, 4).
			Border(lipgloss.RoundedBorder())
	runningColor  = lipgloss.Color("#E8BE42")
	idleColor     = lipgloss.Color("#A0A0A0")
	finishedColor = lipgloss.Color("#E05A47")
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	errorStyle    = lipgloss.NewStyle().Foreground(finishedColor)
)

type eventMsg countdown.Event

type closedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	controller Controller
	variants   VariantStore
	events     <-chan countdown.Event
	step       int

	snapshot countdown.Snapshot
	variant  finish.Variant
	err      error
	width    int
}

// New creates the model. step is the +/- adjustment in seconds.
func New(controller Controller, variants VariantStore, step int) Model {
	if step <= 0 {
		step = 5
	}
	model := Model{
		controller: controller,
		variants:   variants,
		events:     controller.Subscribe(16),
		step:       step,
		snapshot:   controller.Snapshot(),
		variant:    finish.VariantA,
	}
	if variants != nil {
		model.variant = variants.Variant()
	}
	return model
}

// Run starts the program and blocks until the user quits.
func Run(controller Controller, variants VariantStore, step int) error {
	program := tea.NewProgram(New(controller, variants, step), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := program.Run()
	return err
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.FocusMsg:
		m.snapshot = m.controller.Refresh()
		return m, nil

	case eventMsg:
		m.snapshot = m.controller.Snapshot()
		return m, m.waitForEvent()

	case closedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "enter", "s":
		m.err = m.controller.Toggle()
	case "r":
		m.controller.Reset()
	case "+", "=":
		m.err = m.controller.Adjust(m.step)
	case "-", "_":
		m.err = m.controller.Adjust(-m.step)
	case "up", "k":
		m.err = m.controller.Adjust(60)
	case "down", "j":
		m.err = m.controller.Adjust(-60)
	case "v":
		m.err = m.toggleVariant()
	}
	m.snapshot = m.controller.Snapshot()
	return m, nil
}

func (m *Model) toggleVariant() error {
	next := finish.VariantB
	if m.variant == finish.VariantB {
		next = finish.VariantA
	}
	if m.variants != nil {
		if err := m.variants.SetVariant(next); err != nil {
			return err
		}
	}
	m.variant = next
	return nil
}

func (m Model) View() string {
	color := idleColor
	switch m.snapshot.Status {
	case countdown.StatusRunning:
		color = runningColor
	case countdown.StatusFinished:
		color = finishedColor
	}

	var b strings.Builder
	b.WriteString(timeStyle.BorderForeground(color).Foreground(color).Render(m.snapshot.Remaining.String()))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s · set %s · voice %s\n", statusLabel(m.snapshot.Status), m.snapshot.Initial, m.variant)
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("space start/pause · r reset · +/- %ds · ↑/↓ 1m · v voice · q quit", m.step)))
	return b.String()
}

func statusLabel(status countdown.Status) string {
	switch status {
	case countdown.StatusRunning:
		return "running"
	case countdown.StatusPaused:
		return "paused"
	case countdown.StatusFinished:
		return "time's up"
	default:
		return "ready"
	}
}
