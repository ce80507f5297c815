package room

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat/realtime"
)

// Type records a keystroke: the draft becomes draft, typing is announced
// once per burst and the idle timer restarts.
func (s *Session) Type(draft string) error {
	return s.call(func(s *Session) { s.typed(draft) })
}

func (s *Session) typed(draft string) {
	s.draft = draft
	if !s.isTyping && s.room != nil {
		err := s.channel.Emit(realtime.EventTyping, realtime.Typing{GroupID: s.room.ID, Username: s.user.Username})
		if err != nil {
			log.Warn().Err(err).Str("room", s.room.ID).Msg("[chat] emit typing")
		}
		s.isTyping = true
	}
	s.armTypingTimer()
	s.changed()
}

// armTypingTimer replaces the single idle timer. A firing that lost the race
// with a newer arm or a stop is ignored through timerSeq.
func (s *Session) armTypingTimer() {
	s.stopTypingTimer()
	seq := s.timerSeq
	s.typingTimer = time.AfterFunc(s.typingIdle, func() {
		s.enqueue(func(s *Session) {
			if s.timerSeq != seq {
				return
			}
			s.typingTimer = nil
			s.typingIdleExpired()
		})
	})
}

func (s *Session) stopTypingTimer() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.timerSeq++
}

func (s *Session) typingIdleExpired() {
	if !s.isTyping || s.room == nil {
		return
	}
	if err := s.channel.Emit(realtime.EventStopTyping, realtime.StopTyping{GroupID: s.room.ID}); err != nil {
		log.Warn().Err(err).Str("room", s.room.ID).Msg("[chat] emit stop typing")
	}
	s.isTyping = false
	s.changed()
}
