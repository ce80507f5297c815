// Package room runs the client side of one chat session: which room is
// selected, its message list, who is present and who is typing.
//
// All state belongs to a single goroutine that drains a command queue.
// Realtime handlers, HTTP results and timers only ever touch state by
// enqueueing a command, so the session behaves as one logical thread.
package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/realtime"
)

const (
	// DefaultTypingIdle is how long after the last keystroke stop typing fires.
	DefaultTypingIdle = 2 * time.Second
	// NotificationDuration is how long a transient notification stays visible.
	NotificationDuration = 3 * time.Second

	commandBuffer = 256
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("chat session closed")

// State is the lifecycle of the current room selection.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateActive   State = "active"
	StateTornDown State = "torn-down"
)

// API is the slice of the HTTP API a session needs.
type API interface {
	Messages(ctx context.Context, token, roomID string) ([]api.Message, error)
	PostMessage(ctx context.Context, token, roomID, content string) (api.Message, error)
}

// Config wires a session to its collaborators.
type Config struct {
	User    api.User
	API     API
	Channel realtime.Channel

	// OnChange receives a copy of the state after every mutation. It runs on
	// the session goroutine and must not call back into the session.
	OnChange func(Snapshot)
	// Notify receives transient notifications, under the same rules as OnChange.
	Notify func(Notification)

	// TypingIdle overrides DefaultTypingIdle.
	TypingIdle time.Duration
}

// Session is the chat view's state machine. Create it with New and release it
// with Close.
type Session struct {
	user       api.User
	api        API
	channel    realtime.Channel
	onChange   func(Snapshot)
	notify     func(Notification)
	typingIdle time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	commands  chan func(*Session)
	closing   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	state         State
	room          *api.Room
	gen           uint64
	messages      []api.Message
	seen          map[string]struct{}
	members       []api.User
	typing        map[string]struct{}
	subs          []func()
	cancelHistory context.CancelFunc

	draft       string
	isTyping    bool
	typingTimer *time.Timer
	timerSeq    uint64
	sending     bool
	sent        uint64
}

// New starts a session for cfg.User. No room is selected.
func New(cfg Config) *Session {
	idle := cfg.TypingIdle
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		user:       cfg.User,
		api:        cfg.API,
		channel:    cfg.Channel,
		onChange:   cfg.OnChange,
		notify:     cfg.Notify,
		typingIdle: idle,
		ctx:        ctx,
		cancel:     cancel,
		commands:   make(chan func(*Session), commandBuffer),
		closing:    make(chan struct{}),
		closed:     make(chan struct{}),
		state:      StateIdle,
		seen:       make(map[string]struct{}),
		typing:     make(map[string]struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.closed)
	for {
		select {
		case fn := <-s.commands:
			fn(s)
		case <-s.closing:
			return
		}
	}
}

func (s *Session) enqueue(fn func(*Session)) bool {
	select {
	case s.commands <- fn:
		return true
	case <-s.closing:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(fn func(*Session)) error {
	done := make(chan struct{})
	if !s.enqueue(func(s *Session) {
		fn(s)
		close(done)
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

// User is the identity the session was built for.
func (s *Session) User() api.User { return s.user }

// SelectRoom makes r the selected room, tearing down any previous selection
// first.
func (s *Session) SelectRoom(r api.Room) error {
	var err error
	if cerr := s.call(func(s *Session) {
		if s.state == StateTornDown {
			err = ErrClosed
			return
		}
		s.selectRoom(r)
	}); cerr != nil {
		return cerr
	}
	return err
}

// Leave deselects the current room, if any.
func (s *Session) Leave() error {
	return s.call(func(s *Session) {
		if s.room == nil {
			return
		}
		s.teardown()
		s.reset()
		s.state = StateIdle
		s.changed()
	})
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.call(func(s *Session) { snap = s.snapshot() })
	return snap, err
}

// Close tears down the current selection and stops the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.call(func(s *Session) {
			s.teardown()
			s.stopTypingTimer()
			s.state = StateTornDown
		})
		close(s.closing)
		<-s.closed
		s.cancel()
	})
}

func (s *Session) selectRoom(r api.Room) {
	s.teardown()
	s.reset()

	s.gen++
	gen := s.gen
	s.room = &r
	s.state = StateLoading

	s.subscribe(gen)
	if err := s.channel.Emit(realtime.EventJoinRoom, r.ID); err != nil {
		log.Warn().Err(err).Str("room", r.ID).Msg("[chat] emit join room")
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelHistory = cancel
	go s.loadHistory(ctx, gen, r.ID)

	log.Debug().Str("room", r.ID).Uint64("gen", gen).Msg("[chat] room selected")
	s.changed()
}

// teardown ends the current selection: stop the typing timer, emit leave,
// then deregister every handler of that selection.
func (s *Session) teardown() {
	if s.room == nil {
		return
	}
	s.stopTypingTimer()
	s.isTyping = false

	if err := s.channel.Emit(realtime.EventLeaveRoom, s.room.ID); err != nil {
		log.Warn().Err(err).Str("room", s.room.ID).Msg("[chat] emit leave room")
	}
	for _, off := range s.subs {
		off()
	}
	s.subs = nil

	if s.cancelHistory != nil {
		s.cancelHistory()
		s.cancelHistory = nil
	}
	log.Debug().Str("room", s.room.ID).Uint64("gen", s.gen).Msg("[chat] room torn down")
	s.gen++
	s.room = nil
	s.state = StateTornDown
}

func (s *Session) reset() {
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.members = nil
	s.typing = make(map[string]struct{})
}

func (s *Session) loadHistory(ctx context.Context, gen uint64, roomID string) {
	msgs, err := s.api.Messages(ctx, s.user.Token, roomID)
	s.enqueue(func(s *Session) {
		if s.gen != gen {
			log.Debug().Str("room", roomID).Msg("[chat] ignore stale history")
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("room", roomID).Msg("[chat] load history")
		} else {
			s.mergeHistory(msgs)
		}
		s.state = StateActive
		s.changed()
	})
}

// mergeHistory puts history first and keeps messages that arrived live
// while it was in flight, dropping duplicates by id.
func (s *Session) mergeHistory(history []api.Message) {
	live := s.messages
	s.messages = make([]api.Message, 0, len(history)+len(live))
	s.seen = make(map[string]struct{}, len(history)+len(live))
	for _, m := range history {
		s.appendMessage(m)
	}
	for _, m := range live {
		s.appendMessage(m)
	}
}

// appendMessage appends m unless a message with the same id is present.
func (s *Session) appendMessage(m api.Message) bool {
	if m.ID != "" {
		if _, dup := s.seen[m.ID]; dup {
			return false
		}
		s.seen[m.ID] = struct{}{}
	}
	s.messages = append(s.messages, m)
	return true
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange(s.snapshot())
	}
}

func (s *Session) emitNotification(n Notification) {
	if n.Duration == 0 {
		n.Duration = NotificationDuration
	}
	if s.notify != nil {
		s.notify(n)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Messages: append([]api.Message(nil), s.messages...),
		Members:  append([]api.User(nil), s.members...),
		Typing:   make([]string, 0, len(s.typing)),
		Draft:    s.draft,
		IsTyping: s.isTyping,
		Sending:  s.sending,
		Sent:     s.sent,
	}
	if s.room != nil {
		r := *s.room
		snap.Room = &r
	}
	for name := range s.typing {
		snap.Typing = append(snap.Typing, name)
	}
	sort.Strings(snap.Typing)
	return snap
}
