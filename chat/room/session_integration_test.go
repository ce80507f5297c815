package room_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/internal/chattest"
	"github.com/gosuda/portal-chat/chat/realtime"
	"github.com/gosuda/portal-chat/chat/room"
)

func TestSessionOverSocket(t *testing.T) {
	srv := chattest.New(t)
	srv.SetEchoSender(true)
	alice := srv.AddUser("alice@example.com", "pw", "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := realtime.Dial(ctx, srv.SocketURL(), alice.Token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s := room.New(room.Config{
		User:       alice,
		API:        api.New(srv.URL),
		Channel:    conn,
		TypingIdle: 50 * time.Millisecond,
	})
	t.Cleanup(s.Close)

	snapshot := func() room.Snapshot {
		snap, err := s.Snapshot()
		require.NoError(t, err)
		return snap
	}

	general := api.Room{ID: "1", Name: "general"}
	require.NoError(t, s.SelectRoom(general))
	require.Eventually(t, func() bool {
		snap := snapshot()
		return snap.State == room.StateActive && len(snap.Members) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{alice.ID}, srv.Members(general.ID))

	require.NoError(t, s.Type("hi"))
	require.NoError(t, s.Send(ctx))
	require.Eventually(t, func() bool {
		return srv.Received(realtime.EventNewMessage) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// the backend loops the message back to its sender
	assert.Never(t, func() bool {
		return len(snapshot().Messages) != 1
	}, 300*time.Millisecond, 10*time.Millisecond)

	snap := snapshot()
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, alice.ID, snap.Messages[0].Sender.ID)
	assert.Empty(t, snap.Draft)
	assert.Equal(t, 1, srv.Posts())
	require.Len(t, srv.History(general.ID), 1)
	assert.Equal(t, srv.History(general.ID)[0].ID, snap.Messages[0].ID)

	require.NoError(t, s.Leave())
	require.Eventually(t, func() bool {
		return srv.Received(realtime.EventLeaveRoom) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Received(realtime.EventJoinRoom))
	assert.Equal(t, 1, srv.Received(realtime.EventTyping))
	assert.Equal(t, 1, srv.Received(realtime.EventStopTyping))
	assert.Empty(t, srv.Members(general.ID))
}
