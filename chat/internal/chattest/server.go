// Package chattest runs an in-process chat backend for tests: the HTTP API
// and the websocket event hub, with knobs for failure injection.
package chattest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gosuda/portal-chat/chat/api"
)

type account struct {
	user     api.User
	password string
}

// Server is a fake chat backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]*account // by email
	tokens   map[string]api.User
	messages map[string][]api.Message
	posts    int

	failPost     bool
	historyDelay time.Duration

	hub *hub
}

// New starts a server and closes it when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		accounts: make(map[string]*account),
		tokens:   make(map[string]api.User),
		messages: make(map[string][]api.Message),
		hub:      newHub(),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.hub.closeAll()
		s.Server.Close()
	})
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/users/register", s.handleRegister)
	r.Post("/api/users/login", s.handleLogin)
	r.Get("/api/messages/{roomId}", s.handleHistory)
	r.Post("/api/messages", s.handlePost)
	r.Get("/socket", s.handleSocket)
	return r
}

// SocketURL is the websocket address of the event hub.
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/socket"
}

// AddUser registers an account and returns it with a valid token.
func (s *Server) AddUser(email, password, username string) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := api.User{ID: uuid.NewString(), Username: username, Email: email, Token: uuid.NewString()}
	s.accounts[email] = &account{user: u, password: password}
	s.tokens[u.Token] = u
	return u
}

// Seed appends history to roomID.
func (s *Server) Seed(roomID string, msgs ...api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[roomID] = append(s.messages[roomID], msgs...)
}

// History returns what the server stores for roomID.
func (s *Server) History(roomID string) []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Message(nil), s.messages[roomID]...)
}

// Posts counts accepted POST /api/messages requests.
func (s *Server) Posts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts
}

// SetFailPost makes POST /api/messages answer 500.
func (s *Server) SetFailPost(fail bool) {
	s.mu.Lock()
	s.failPost = fail
	s.mu.Unlock()
}

// SetHistoryDelay delays every history response by d.
func (s *Server) SetHistoryDelay(d time.Duration) {
	s.mu.Lock()
	s.historyDelay = d
	s.mu.Unlock()
}

// SetEchoSender makes relayed messages come back to their sender too.
func (s *Server) SetEchoSender(echo bool) { s.hub.setEcho(echo) }

// Received counts inbound socket events by name.
func (s *Server) Received(event string) int { return s.hub.received(event) }

// Members lists the user ids joined to roomID.
func (s *Server) Members(roomID string) []string { return s.hub.members(roomID) }

// Push sends event to every socket joined to roomID.
func (s *Server) Push(roomID, event string, payload any) { s.hub.toRoom(roomID, event, payload, nil) }

// DropClients closes every socket from the server side.
func (s *Server) DropClients() { s.hub.closeAll() }

func (s *Server) authenticate(r *http.Request) (api.User, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return api.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	return u, ok
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" || in.Username == "" {
		writeError(w, http.StatusBadRequest, "Please fill all the fields")
		return
	}
	s.mu.Lock()
	_, exists := s.accounts[in.Email]
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}
	u := s.AddUser(in.Email, in.Password, in.Username)
	writeJSON(w, http.StatusCreated, map[string]api.User{"user": u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[in.Email]
	s.mu.Unlock()
	if !ok || acc.password != in.Password {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]api.User{"user": acc.user})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
		return
	}
	s.mu.Lock()
	delay := s.historyDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	msgs := s.History(chi.URLParam(r, "roomId"))
	if msgs == nil {
		msgs = []api.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
		return
	}
	var in struct {
		Content string `json:"content"`
		GroupID string `json:"groupId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Content == "" || in.GroupID == "" {
		writeError(w, http.StatusBadRequest, "Invalid data passed into request")
		return
	}
	s.mu.Lock()
	fail := s.failPost
	s.mu.Unlock()
	if fail {
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}
	m := api.Message{
		ID:        uuid.NewString(),
		Sender:    api.User{ID: u.ID, Username: u.Username},
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.messages[in.GroupID] = append(s.messages[in.GroupID], m)
	s.posts++
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
		return
	}
	s.hub.serve(w, r, u)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
