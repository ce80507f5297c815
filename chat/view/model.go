// Package view is the terminal chat screen: a bubbletea program that renders
// room.Session snapshots and forwards keystrokes back to the session.
package view

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/room"
)

const (
	defaultSendTimeout = 15 * time.Second
	maxDraftLen        = 4000
	inputHeight        = 3
	sidebarWidth       = 24
)

// Controller is the part of room.Session the view drives.
type Controller interface {
	SelectRoom(r api.Room) error
	Leave() error
	Type(draft string) error
	Send(ctx context.Context) error
}

// SnapshotMsg carries a new session state into the program.
type SnapshotMsg room.Snapshot

// NotificationMsg shows a transient notification.
type NotificationMsg room.Notification

// ErrMsg ends the program with Err, e.g. when the connection drops.
type ErrMsg struct{ Err error }

type (
	selectMsg  struct{ room api.Room }
	dismissMsg struct{ id int }
	sentMsg    struct{ err error }
)

type activeNote struct {
	id int
	room.Notification
}

// Options configures New.
type Options struct {
	User       api.User
	Controller Controller
	// Room is selected as soon as the program starts.
	Room *api.Room
	// OnRoomChange observes selections; nil means the room was left.
	OnRoomChange func(r *api.Room)
	SendTimeout  time.Duration
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	user         api.User
	ctrl         Controller
	initial      *api.Room
	onRoomChange func(*api.Room)
	sendTimeout  time.Duration

	input    textarea.Model
	viewport viewport.Model
	snap     room.Snapshot
	lastSent uint64
	notes    []activeNote
	nextNote int
	showHelp bool

	width, height int
	err           error
}

func New(opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = maxDraftLen
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	m := Model{
		user:         opts.User,
		ctrl:         opts.Controller,
		initial:      opts.Room,
		onRoomChange: opts.OnRoomChange,
		sendTimeout:  timeout,
		input:        ta,
		viewport:     viewport.New(80, 10),
		snap:         room.Snapshot{State: room.StateIdle},
	}
	m.resize(80, 24)
	return m
}

// Err is the reason the program stopped, if it stopped on an error.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if r := m.initial; r != nil {
		sel := *r
		cmds = append(cmds, func() tea.Msg { return selectMsg{room: sel} })
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		m.snap = room.Snapshot(msg)
		if m.snap.Sent > m.lastSent {
			m.lastSent = m.snap.Sent
			if m.snap.Draft == "" {
				m.input.Reset()
			}
		}
		m.refresh()
		return m, nil

	case NotificationMsg:
		cmd := m.pushNote(room.Notification(msg))
		return m, cmd

	case dismissMsg:
		for i, n := range m.notes {
			if n.id == msg.id {
				m.notes = append(m.notes[:i:i], m.notes[i+1:]...)
				break
			}
		}
		return m, nil

	case selectMsg:
		cmd := m.selectRoom(msg.room)
		return m, cmd

	case sentMsg:
		if errors.Is(msg.err, room.ErrClosed) {
			m.err = msg.err
			return m, tea.Quit
		}
		return m, nil

	case ErrMsg:
		m.err = msg.Err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyEnter:
		if !msg.Alt {
			return m.submit()
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	after := m.input.Value()
	if after != before && !strings.HasPrefix(strings.TrimSpace(after), "/") {
		if err := m.ctrl.Type(after); err != nil {
			failCmd := m.fail(err)
			return m, tea.Batch(cmd, failCmd)
		}
	}
	return m, cmd
}

// submit handles the confirm key: a slash command or a send.
func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(line, "/") {
		m.input.Reset()
		if err := m.ctrl.Type(""); err != nil {
			cmd := m.fail(err)
			return m, cmd
		}
		return m.runCommand(parseCommand(line))
	}
	if line == "" {
		return m, nil
	}
	ctrl, timeout := m.ctrl, m.sendTimeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sentMsg{err: ctrl.Send(ctx)}
	}
}

func (m Model) runCommand(c command) (tea.Model, tea.Cmd) {
	switch c.name {
	case "join":
		if len(c.args) == 0 {
			cmd := m.pushNote(room.Notification{Level: room.LevelError, Title: "Usage", Message: "/join <room-id> [name]"})
			return m, cmd
		}
		r := api.Room{ID: c.args[0], Name: strings.Join(c.args[1:], " ")}
		if r.Name == "" {
			r.Name = r.ID
		}
		cmd := m.selectRoom(r)
		return m, cmd
	case "leave":
		if err := m.ctrl.Leave(); err != nil {
			cmd := m.fail(err)
			return m, cmd
		}
		if m.onRoomChange != nil {
			m.onRoomChange(nil)
		}
		return m, nil
	case "quit", "exit":
		return m, tea.Quit
	case "help":
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil
	default:
		cmd := m.pushNote(room.Notification{Level: room.LevelError, Title: "Unknown command", Message: "/" + c.name})
		return m, cmd
	}
}

func (m *Model) selectRoom(r api.Room) tea.Cmd {
	if err := m.ctrl.SelectRoom(r); err != nil {
		return m.fail(err)
	}
	if m.onRoomChange != nil {
		m.onRoomChange(&r)
	}
	return nil
}

func (m *Model) fail(err error) tea.Cmd {
	if errors.Is(err, room.ErrClosed) {
		m.err = err
		return tea.Quit
	}
	return m.pushNote(room.Notification{Level: room.LevelError, Title: "Error", Message: err.Error()})
}

func (m *Model) pushNote(n room.Notification) tea.Cmd {
	if n.Duration <= 0 {
		n.Duration = room.NotificationDuration
	}
	m.nextNote++
	id := m.nextNote
	m.notes = append(m.notes, activeNote{id: id, Notification: n})
	return tea.Tick(n.Duration, func(time.Time) tea.Msg { return dismissMsg{id: id} })
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.input.SetWidth(max(w-sidebarWidth-2, 10))
	m.viewport.Width = max(w-sidebarWidth-2, 10)
	// header, separator, notice line and the input box
	m.viewport.Height = max(h-inputHeight-3, 1)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

type command struct {
	name string
	args []string
}

// parseCommand splits "/join 1 general chat" into name and arguments.
func parseCommand(line string) command {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return command{}
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}
}
