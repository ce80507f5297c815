package room

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/realtime"
)

// Send submits the current draft to the selected room. A blank draft, no
// selected room or a send already in flight make it a silent no-op. The POST
// runs on the caller's goroutine; its outcome is applied on the session loop.
func (s *Session) Send(ctx context.Context) error {
	var (
		content string
		room    api.Room
		gen     uint64
		ok      bool
	)
	err := s.call(func(s *Session) {
		if s.room == nil || s.sending || strings.TrimSpace(s.draft) == "" {
			return
		}
		content, room, gen, ok = s.draft, *s.room, s.gen, true
		s.sending = true
		s.changed()
	})
	if err != nil || !ok {
		return err
	}

	msg, err := s.api.PostMessage(ctx, s.user.Token, room.ID, content)
	s.enqueue(func(s *Session) {
		s.sending = false
		if err != nil {
			log.Warn().Err(err).Str("room", room.ID).Msg("[chat] send message")
			s.emitNotification(Notification{Level: LevelError, Title: "Error sending message"})
			s.changed()
			return
		}
		s.delivered(msg, room, gen, content)
	})
	return err
}

func (s *Session) delivered(msg api.Message, room api.Room, gen uint64, content string) {
	relay := msg
	relay.GroupID = room.ID
	if err := s.channel.Emit(realtime.EventNewMessage, relay); err != nil {
		log.Warn().Err(err).Str("room", room.ID).Msg("[chat] emit new message")
	}
	if s.gen == gen {
		s.appendMessage(msg)
	}
	if s.draft == content {
		s.draft = ""
	}
	s.sent++
	s.changed()
}
