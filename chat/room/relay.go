package room

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/realtime"
)

// subscribe registers the room-scoped handlers for selection gen. Their
// deregistration funcs are kept for teardown.
func (s *Session) subscribe(gen uint64) {
	on := func(event string, apply func(*Session, json.RawMessage) error) {
		s.subs = append(s.subs, s.channel.On(event, s.relay(gen, event, apply)))
	}
	on(realtime.EventMessageReceive, (*Session).onMessage)
	on(realtime.EventUsersInRoom, (*Session).onUsersInRoom)
	on(realtime.EventUserJoined, (*Session).onUserJoined)
	on(realtime.EventUserLeft, (*Session).onUserLeft)
	on(realtime.EventNotification, (*Session).onNotification)
	on(realtime.EventUserTyping, (*Session).onUserTyping)
	on(realtime.EventUserStopTyping, (*Session).onUserStopTyping)
}

// relay moves an inbound event onto the session loop and drops it when its
// selection is no longer current.
func (s *Session) relay(gen uint64, event string, apply func(*Session, json.RawMessage) error) realtime.Handler {
	return func(data json.RawMessage) {
		s.enqueue(func(s *Session) {
			if s.gen != gen {
				return
			}
			if err := apply(s, data); err != nil {
				log.Debug().Err(err).Str("event", event).Msg("[chat] drop malformed event")
				return
			}
			s.changed()
		})
	}
}

func (s *Session) onMessage(data json.RawMessage) error {
	var m api.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.appendMessage(m)
	return nil
}

func (s *Session) onUsersInRoom(data json.RawMessage) error {
	var users []api.User
	if err := json.Unmarshal(data, &users); err != nil {
		return err
	}
	s.members = s.members[:0]
	for _, u := range users {
		s.members = addMember(s.members, u)
	}
	return nil
}

func (s *Session) onUserJoined(data json.RawMessage) error {
	var u api.User
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	s.members = addMember(s.members, u)
	return nil
}

func (s *Session) onUserLeft(data json.RawMessage) error {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	s.members = removeMember(s.members, id)
	return nil
}

func (s *Session) onNotification(data json.RawMessage) error {
	var n realtime.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	title := "Notification"
	if n.Type == realtime.NotificationUserJoined {
		title = "New User"
	}
	s.emitNotification(Notification{Level: LevelInfo, Title: title, Message: n.Message})
	return nil
}

func (s *Session) onUserTyping(data json.RawMessage) error {
	var p realtime.TypingUser
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	s.typing[p.Username] = struct{}{}
	return nil
}

func (s *Session) onUserStopTyping(data json.RawMessage) error {
	var p realtime.TypingUser
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	delete(s.typing, p.Username)
	return nil
}

// addMember inserts u, replacing an entry with the same id in place.
func addMember(members []api.User, u api.User) []api.User {
	for i := range members {
		if members[i].ID == u.ID {
			members[i] = u
			return members
		}
	}
	return append(members, u)
}

func removeMember(members []api.User, id string) []api.User {
	out := members[:0]
	for _, m := range members {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
