package room

import (
	"time"

	"github.com/gosuda/portal-chat/chat/api"
)

// Snapshot is an immutable copy of the session state handed to the view.
type Snapshot struct {
	State    State
	Room     *api.Room
	Messages []api.Message
	Members  []api.User
	Typing   []string // usernames, sorted
	Draft    string
	IsTyping bool   // the local user is in a typing burst
	Sending  bool   // a send is in flight
	Sent     uint64 // successful sends so far
}

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a transient, self-dismissing message for the user.
type Notification struct {
	Level    Level
	Title    string
	Message  string
	Duration time.Duration
}
