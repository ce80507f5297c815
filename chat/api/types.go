package api

import "time"

// User is an account as returned by the backend. Token is only present on the
// login response and on the locally persisted session record.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Room is a chat group.
type Room struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Message is a single chat line scoped to a room.
type Message struct {
	ID        string    `json:"_id"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	GroupID   string    `json:"groupId,omitempty"` // set on outbound relay only
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type userEnvelope struct {
	User User `json:"user"`
}

type newMessage struct {
	Content string `json:"content"`
	GroupID string `json:"groupId"`
}
