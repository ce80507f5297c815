package view

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gosuda/portal-chat/chat/room"
)

// Bridge forwards session callbacks to a running program without blocking
// the session loop. Snapshots coalesce to the latest one; notifications queue.
type Bridge struct {
	mu    sync.Mutex
	snap  *room.Snapshot
	notes []room.Notification
	wake  chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// Snapshot is a room.Config.OnChange callback.
func (b *Bridge) Snapshot(s room.Snapshot) {
	b.mu.Lock()
	b.snap = &s
	b.mu.Unlock()
	b.signal()
}

// Notify is a room.Config.Notify callback.
func (b *Bridge) Notify(n room.Notification) {
	b.mu.Lock()
	b.notes = append(b.notes, n)
	b.mu.Unlock()
	b.signal()
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run delivers pending updates through send until ctx is done. send is
// usually (*tea.Program).Send.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake:
		}
		b.mu.Lock()
		snap, notes := b.snap, b.notes
		b.snap, b.notes = nil, nil
		b.mu.Unlock()

		if snap != nil {
			send(SnapshotMsg(*snap))
		}
		for _, n := range notes {
			send(NotificationMsg(n))
		}
	}
}
