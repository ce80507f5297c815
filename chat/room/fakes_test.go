package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/realtime"
)

type emitted struct {
	Event   string
	Payload any
}

type fakeReg struct {
	h realtime.Handler
}

// fakeChannel records outbound events and lets tests push inbound ones.
type fakeChannel struct {
	mu       sync.Mutex
	out      []emitted
	handlers map[string][]*fakeReg
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]*fakeReg)}
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, emitted{Event: event, Payload: payload})
	return nil
}

func (c *fakeChannel) On(event string, h realtime.Handler) func() {
	reg := &fakeReg{h: h}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], reg)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		regs := c.handlers[event]
		for i, r := range regs {
			if r == reg {
				c.handlers[event] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// deliver invokes every handler currently registered for event.
func (c *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	for _, h := range c.handlersFor(event) {
		h(raw)
	}
}

func (c *fakeChannel) handlersFor(event string) []realtime.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Handler, 0, len(c.handlers[event]))
	for _, r := range c.handlers[event] {
		out = append(out, r.h)
	}
	return out
}

func (c *fakeChannel) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, regs := range c.handlers {
		n += len(regs)
	}
	return n
}

func (c *fakeChannel) emitted(events ...string) []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []emitted
	for _, e := range c.out {
		for _, want := range events {
			if e.Event == want {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func (c *fakeChannel) count(event string) int {
	return len(c.emitted(event))
}

// fakeAPI serves canned history and stores posted messages.
type fakeAPI struct {
	mu         sync.Mutex
	user       api.User
	history    map[string][]api.Message
	historyErr error
	gates      map[string]chan struct{}
	served     int
	postErr    error
	postGate   chan struct{}
	posts      []string
	nextID     int
}

func newFakeAPI(user api.User) *fakeAPI {
	return &fakeAPI{
		user:    user,
		history: make(map[string][]api.Message),
		gates:   make(map[string]chan struct{}),
	}
}

// gate makes the history request for roomID block until the returned func runs.
func (a *fakeAPI) gate(roomID string) (release func()) {
	ch := make(chan struct{})
	a.mu.Lock()
	a.gates[roomID] = ch
	a.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (a *fakeAPI) Messages(_ context.Context, token, roomID string) ([]api.Message, error) {
	a.mu.Lock()
	gate := a.gates[roomID]
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.served++
	if token != a.user.Token {
		return nil, &api.Error{Status: 401, Message: "Not authorized"}
	}
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return append([]api.Message(nil), a.history[roomID]...), nil
}

// gatePost makes every message POST block until the returned func runs.
func (a *fakeAPI) gatePost() (release func()) {
	ch := make(chan struct{})
	a.mu.Lock()
	a.postGate = ch
	a.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (a *fakeAPI) PostMessage(_ context.Context, token, roomID, content string) (api.Message, error) {
	a.mu.Lock()
	gate := a.postGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.postErr != nil {
		return api.Message{}, a.postErr
	}
	a.posts = append(a.posts, content)
	a.nextID++
	return api.Message{
		ID:        fmt.Sprintf("m%d", a.nextID),
		Sender:    api.User{ID: a.user.ID, Username: a.user.Username},
		Content:   content,
		CreatedAt: time.Now(),
	}, nil
}

func (a *fakeAPI) postCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.posts)
}

func (a *fakeAPI) servedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.served
}

// notes collects notifications.
type notes struct {
	mu  sync.Mutex
	all []Notification
}

func (n *notes) add(x Notification) {
	n.mu.Lock()
	n.all = append(n.all, x)
	n.mu.Unlock()
}

func (n *notes) list() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.all...)
}
