// Package dashboard is a bubbletea TUI that subscribes to an
// internal/livebridge websocket and renders committed traces and lane
// telemetry as they arrive.
//
// Structurally grounded on cmd/vango/internal/ui's Model/Init/Update/View
// split and its lipgloss style-variable palette (render.go), generalized
// from a multi-step project-creation wizard down to a single scrolling,
// read-only event log — there is no user input to collect here, only a
// feed to display.
package dashboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

var (
	primaryColor = lipgloss.Color("#3b82f6")
	mutedColor   = lipgloss.Color("#94a3b8")
	successColor = lipgloss.Color("#10b981")
	errorColor   = lipgloss.Color("#ef4444")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	laneStyle  = lipgloss.NewStyle().Foreground(successColor)
	errStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primaryColor).Padding(0, 1)
)

// event mirrors livebridge.Event's wire shape. Duplicated rather than
// imported so this package's only dependency on the rest of the module is
// the websocket URL it is told to dial — a dashboard binary could be built
// standalone against any server speaking this JSON shape.
type event struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq"`
	Root      string    `json:"root,omitempty"`
	Trace     []string  `json:"trace,omitempty"`
	Pending   string    `json:"pending,omitempty"`
	Suspended string    `json:"suspended,omitempty"`
	Expired   string    `json:"expired,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

type connectedMsg struct{ conn *websocket.Conn }
type eventMsg event
type disconnectedMsg struct{ err error }
type retryMsg struct{}

// Model is the dashboard's bubbletea state: a connection to url, a bounded
// scrollback of received events, and a spinner shown until the first event
// arrives.
type Model struct {
	url     string
	conn    *websocket.Conn
	events  []event
	maxRows int
	err     error
	width   int
	height  int
	spinner spinner.Model
	ready   bool
}

// New builds a dashboard Model that will dial url (a ws:// URL) once
// started.
func New(url string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return Model{url: url, maxRows: 200, spinner: s}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, connect(m.url))
}

func connect(url string) tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func listen(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			return disconnectedMsg{err: err}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" || msg.String() == "esc" {
			if m.conn != nil {
				m.conn.Close()
			}
			return m, tea.Quit
		}
		return m, nil

	case connectedMsg:
		m.conn = msg.conn
		m.ready = true
		m.err = nil
		return m, listen(m.conn)

	case eventMsg:
		m.events = append(m.events, event(msg))
		if len(m.events) > m.maxRows {
			m.events = m.events[len(m.events)-m.maxRows:]
		}
		return m, listen(m.conn)

	case disconnectedMsg:
		m.ready = false
		m.err = msg.err
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg { return retryMsg{} })

	case retryMsg:
		return m, connect(m.url)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("reconcile dashboard"))
	b.WriteString("\n")

	status := mutedStyle.Render("connecting…")
	if m.err != nil {
		status = errStyle.Render(fmt.Sprintf("disconnected: %v (retrying)", m.err))
	} else if m.ready {
		status = laneStyle.Render(fmt.Sprintf("connected: %s", m.url))
	}
	b.WriteString(status)
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString(mutedStyle.Render(m.spinner.View() + " waiting for events…"))
		return boxStyle.Render(b.String())
	}

	start := 0
	if max := m.visibleRows(); len(m.events) > max {
		start = len(m.events) - max
	}
	for _, ev := range m.events[start:] {
		b.WriteString(renderEvent(ev))
		b.WriteString("\n")
	}
	return boxStyle.Render(b.String())
}

func (m Model) visibleRows() int {
	if m.height <= 6 {
		return 20
	}
	return m.height - 6
}

func renderEvent(ev event) string {
	switch ev.Type {
	case "commit":
		header := fmt.Sprintf("[%05d] commit root=%s pending=%s suspended=%s expired=%s",
			ev.Seq, ev.Root, ev.Pending, ev.Suspended, ev.Expired)
		lines := []string{laneStyle.Render(header)}
		for _, t := range ev.Trace {
			lines = append(lines, mutedStyle.Render("    "+t))
		}
		return strings.Join(lines, "\n")
	case "message":
		return mutedStyle.Render(fmt.Sprintf("[%05d] %s", ev.Seq, ev.Message))
	default:
		return mutedStyle.Render(fmt.Sprintf("[%05d] %s", ev.Seq, ev.Type))
	}
}

// Run starts a bubbletea program rendering a live dashboard sourced from
// url until the user quits.
func Run(url string) error {
	p := tea.NewProgram(New(url))
	_, err := p.Run()
	return err
}
