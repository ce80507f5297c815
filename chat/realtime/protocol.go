package realtime

import "encoding/json"

// Outbound event names.
const (
	EventJoinRoom   = "join room"
	EventLeaveRoom  = "leave room"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
	EventNewMessage = "new message"
)

// Inbound event names.
const (
	EventMessageReceive = "message receive"
	EventUsersInRoom    = "users in room"
	EventUserJoined     = "user joined"
	EventUserLeft       = "user left"
	EventNotification   = "notification"
	EventUserTyping     = "user typing"
	EventUserStopTyping = "user stop typing"
)

// NotificationUserJoined is the notification type sent when someone enters a room.
const NotificationUserJoined = "USER_JOINED"

// Frame is the envelope of every websocket text message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Typing is the payload of an outbound typing event.
type Typing struct {
	GroupID  string `json:"groupId"`
	Username string `json:"username"`
}

// StopTyping is the payload of an outbound stop typing event.
type StopTyping struct {
	GroupID string `json:"groupId"`
}

// TypingUser is the payload of the inbound user typing / user stop typing events.
type TypingUser struct {
	Username string `json:"username"`
}

// Notification is a server-pushed informational event.
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Handler receives the raw data of one inbound event.
type Handler func(data json.RawMessage)

// Channel is the room-scoped event channel a chat session talks through.
type Channel interface {
	// Emit queues one outbound event.
	Emit(event string, payload any) error
	// On registers h for event and returns a func that removes exactly that
	// registration.
	On(event string, h Handler) (off func())
}

// NewFrame marshals payload into a frame for event.
func NewFrame(event string, payload any) (Frame, error) {
	f := Frame{Event: event}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Data = raw
	return f, nil
}
