package realtime_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/internal/chattest"
	"github.com/gosuda/portal-chat/chat/realtime"
)

func dial(t *testing.T, srv *chattest.Server, u api.User) *realtime.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := realtime.Dial(ctx, srv.SocketURL(), u.Token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// inbox collects the payloads of one event.
type inbox struct {
	mu  sync.Mutex
	got []json.RawMessage
}

func (b *inbox) handler(data json.RawMessage) {
	b.mu.Lock()
	b.got = append(b.got, append(json.RawMessage(nil), data...))
	b.mu.Unlock()
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.got)
}

func (b *inbox) last(t *testing.T, v any) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.got)
	require.NoError(t, json.Unmarshal(b.got[len(b.got)-1], v))
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestDialRequiresToken(t *testing.T) {
	srv := chattest.New(t)

	_, err := realtime.Dial(context.Background(), srv.SocketURL(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestRoomEvents(t *testing.T) {
	srv := chattest.New(t)
	alice := srv.AddUser("alice@example.com", "pw", "alice")
	bob := srv.AddUser("bob@example.com", "pw", "bob")

	a := dial(t, srv, alice)
	b := dial(t, srv, bob)

	var (
		aUsers, aJoined, aNotes, aTyping, aStop, aMsgs, aLeft inbox
		bUsers                                                inbox
	)
	a.On(realtime.EventUsersInRoom, aUsers.handler)
	a.On(realtime.EventUserJoined, aJoined.handler)
	a.On(realtime.EventNotification, aNotes.handler)
	a.On(realtime.EventUserTyping, aTyping.handler)
	a.On(realtime.EventUserStopTyping, aStop.handler)
	a.On(realtime.EventMessageReceive, aMsgs.handler)
	a.On(realtime.EventUserLeft, aLeft.handler)
	b.On(realtime.EventUsersInRoom, bUsers.handler)

	require.NoError(t, a.Emit(realtime.EventJoinRoom, "1"))
	eventually(t, func() bool { return aUsers.len() == 1 })

	require.NoError(t, b.Emit(realtime.EventJoinRoom, "1"))
	eventually(t, func() bool { return bUsers.len() == 1 && aJoined.len() == 1 && aNotes.len() == 1 })

	var users []api.User
	bUsers.last(t, &users)
	assert.Len(t, users, 2)

	var joined api.User
	aJoined.last(t, &joined)
	assert.Equal(t, bob.ID, joined.ID)

	var note realtime.Notification
	aNotes.last(t, &note)
	assert.Equal(t, realtime.NotificationUserJoined, note.Type)

	require.NoError(t, b.Emit(realtime.EventTyping, realtime.Typing{GroupID: "1", Username: "bob"}))
	require.NoError(t, b.Emit(realtime.EventStopTyping, realtime.StopTyping{GroupID: "1"}))
	eventually(t, func() bool { return aTyping.len() == 1 && aStop.len() == 1 })

	var typing realtime.TypingUser
	aStop.last(t, &typing)
	assert.Equal(t, "bob", typing.Username)

	require.NoError(t, b.Emit(realtime.EventNewMessage, api.Message{ID: "m1", Content: "hi", GroupID: "1", Sender: bob}))
	eventually(t, func() bool { return aMsgs.len() == 1 })
	var m api.Message
	aMsgs.last(t, &m)
	assert.Equal(t, "hi", m.Content)

	require.NoError(t, b.Emit(realtime.EventLeaveRoom, "1"))
	eventually(t, func() bool { return aLeft.len() == 1 })
	var left string
	aLeft.last(t, &left)
	assert.Equal(t, bob.ID, left)
	assert.Equal(t, []string{alice.ID}, srv.Members("1"))
}

func TestHandlerRegistry(t *testing.T) {
	srv := chattest.New(t)
	alice := srv.AddUser("alice@example.com", "pw", "alice")
	c := dial(t, srv, alice)

	var first, second, last inbox
	off1 := c.On(realtime.EventMessageReceive, first.handler)
	off2 := c.On(realtime.EventMessageReceive, second.handler)
	c.On(realtime.EventMessageReceive, last.handler)

	off1()
	off1()

	require.NoError(t, c.Emit(realtime.EventJoinRoom, "1"))
	eventually(t, func() bool { return len(srv.Members("1")) == 1 })
	srv.Push("1", realtime.EventMessageReceive, api.Message{ID: "m1", Content: "pushed"})
	eventually(t, func() bool { return last.len() == 1 })
	assert.Equal(t, 1, second.len())
	assert.Zero(t, first.len())

	off2()
	srv.Push("1", realtime.EventMessageReceive, api.Message{ID: "m2", Content: "again"})
	eventually(t, func() bool { return last.len() == 2 })
	assert.Equal(t, 1, second.len())
	assert.Zero(t, first.len())
}

func TestCloseFlushesQueuedEvents(t *testing.T) {
	srv := chattest.New(t)
	alice := srv.AddUser("alice@example.com", "pw", "alice")
	c := dial(t, srv, alice)

	require.NoError(t, c.Emit(realtime.EventJoinRoom, "1"))
	require.NoError(t, c.Emit(realtime.EventLeaveRoom, "1"))
	require.NoError(t, c.Close())

	eventually(t, func() bool { return srv.Received(realtime.EventLeaveRoom) == 1 })
	assert.ErrorIs(t, c.Emit(realtime.EventTyping, nil), realtime.ErrClosed)
	<-c.Done()
	assert.NoError(t, c.Err())
}

func TestServerDropReportsError(t *testing.T) {
	srv := chattest.New(t)
	alice := srv.AddUser("alice@example.com", "pw", "alice")
	c := dial(t, srv, alice)

	require.NoError(t, c.Emit(realtime.EventJoinRoom, "1"))
	eventually(t, func() bool { return srv.Received(realtime.EventJoinRoom) == 1 })
	srv.DropClients()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection not stopped after server close")
	}
	require.Error(t, c.Err())
	assert.Contains(t, c.Err().Error(), "connection lost")
}

func TestNewFrame(t *testing.T) {
	f, err := realtime.NewFrame(realtime.EventStopTyping, realtime.StopTyping{GroupID: "7"})
	require.NoError(t, err)
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stop typing","data":{"groupId":"7"}}`, string(raw))

	f, err = realtime.NewFrame(realtime.EventJoinRoom, nil)
	require.NoError(t, err)
	raw, err = json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"join room"}`, string(raw))
}
