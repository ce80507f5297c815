// Package auth keeps the locally persisted login session.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat/api"
)

// Storage keys.
const (
	UserInfoKey = "userInfo"
	LastRoomKey = "lastRoom"
)

// ErrUnauthenticated means there is no usable persisted session.
var ErrUnauthenticated = errors.New("not logged in")

// KV is the key/value backend the store persists into.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Store reads and writes the userInfo record.
type Store struct {
	kv  KV
	now func() time.Time
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Load returns the persisted user. Missing, malformed, token-less or expired
// records all yield ErrUnauthenticated.
func (s *Store) Load() (api.User, error) {
	raw, ok, err := s.kv.Get(UserInfoKey)
	if err != nil {
		return api.User{}, fmt.Errorf("read %s: %w", UserInfoKey, err)
	}
	if !ok || raw == "" || raw == "undefined" {
		return api.User{}, ErrUnauthenticated
	}
	var u api.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Debug().Err(err).Msg("[auth] malformed session record")
		return api.User{}, ErrUnauthenticated
	}
	if u.Token == "" {
		return api.User{}, ErrUnauthenticated
	}
	if exp, ok := tokenExpiry(u.Token); ok && !s.now().Before(exp) {
		log.Debug().Time("exp", exp).Msg("[auth] session token expired")
		return api.User{}, ErrUnauthenticated
	}
	return u, nil
}

// Save persists u as the current session.
func (s *Store) Save(u api.User) error {
	if strings.TrimSpace(u.Token) == "" {
		return errors.New("refusing to persist a user without token")
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.kv.Set(UserInfoKey, string(raw))
}

// Clear forgets the session and the last selected room.
func (s *Store) Clear() error {
	if err := s.kv.Remove(UserInfoKey); err != nil {
		return err
	}
	return s.kv.Remove(LastRoomKey)
}

// LastRoom returns the id of the room selected in a previous run, if any.
func (s *Store) LastRoom() string {
	id, ok, err := s.kv.Get(LastRoomKey)
	if err != nil || !ok {
		return ""
	}
	return id
}

func (s *Store) SetLastRoom(id string) error {
	if id == "" {
		return s.kv.Remove(LastRoomKey)
	}
	return s.kv.Set(LastRoomKey, id)
}

// tokenExpiry reads the exp claim of a JWT bearer token without verifying it;
// the signature is the server's business. Opaque tokens report ok=false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
