package chattest

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/realtime"
)

const writeWait = 5 * time.Second

type client struct {
	user  api.User
	conn  *websocket.Conn
	mu    sync.Mutex // serialises writes
	rooms map[string]struct{}
}

func (c *client) write(event string, payload any) {
	f, err := realtime.NewFrame(event, payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(f)
}

// hub relays room-scoped events between sockets.
type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	counts  map[string]int
	echo    bool
}

func newHub() *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
		counts:  make(map[string]int),
	}
}

func (h *hub) setEcho(echo bool) {
	h.mu.Lock()
	h.echo = echo
	h.mu.Unlock()
}

func (h *hub) received(event string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[event]
}

func (h *hub) members(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		out = append(out, c.user.ID)
	}
	sort.Strings(out)
	return out
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request, u api.User) {
	upgrader := websocket.Upgrader{
		CheckOrigin:      func(r *http.Request) bool { return true },
		HandshakeTimeout: 10 * time.Second,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{user: u, conn: conn, rooms: make(map[string]struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		rooms := make([]string, 0, len(c.rooms))
		for id := range c.rooms {
			rooms = append(rooms, id)
		}
		h.mu.Unlock()
		for _, id := range rooms {
			h.leave(c, id)
		}
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var f realtime.Frame
		if err := conn.ReadJSON(&f); err != nil {
			log.Debug().Err(err).Str("user", u.Username).Msg("[chattest] socket closed")
			return
		}
		h.mu.Lock()
		h.counts[f.Event]++
		h.mu.Unlock()
		h.handle(c, f)
	}
}

func (h *hub) handle(c *client, f realtime.Frame) {
	switch f.Event {
	case realtime.EventJoinRoom:
		var id string
		if json.Unmarshal(f.Data, &id) == nil {
			h.join(c, id)
		}
	case realtime.EventLeaveRoom:
		var id string
		if json.Unmarshal(f.Data, &id) == nil {
			h.leave(c, id)
		}
	case realtime.EventTyping:
		var p realtime.Typing
		if json.Unmarshal(f.Data, &p) == nil {
			h.toRoom(p.GroupID, realtime.EventUserTyping, realtime.TypingUser{Username: p.Username}, c)
		}
	case realtime.EventStopTyping:
		var p realtime.StopTyping
		if json.Unmarshal(f.Data, &p) == nil {
			h.toRoom(p.GroupID, realtime.EventUserStopTyping, realtime.TypingUser{Username: c.user.Username}, c)
		}
	case realtime.EventNewMessage:
		var m api.Message
		if json.Unmarshal(f.Data, &m) != nil || m.GroupID == "" {
			return
		}
		room := m.GroupID
		m.GroupID = ""
		h.mu.RLock()
		echo := h.echo
		h.mu.RUnlock()
		except := c
		if echo {
			except = nil
		}
		h.toRoom(room, realtime.EventMessageReceive, m, except)
	}
}

func (h *hub) join(c *client, roomID string) {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	c.rooms[roomID] = struct{}{}
	users := make([]api.User, 0, len(h.rooms[roomID]))
	seen := make(map[string]struct{})
	for m := range h.rooms[roomID] {
		if _, ok := seen[m.user.ID]; ok {
			continue
		}
		seen[m.user.ID] = struct{}{}
		users = append(users, api.User{ID: m.user.ID, Username: m.user.Username})
	}
	h.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	c.write(realtime.EventUsersInRoom, users)
	joined := api.User{ID: c.user.ID, Username: c.user.Username}
	h.toRoom(roomID, realtime.EventUserJoined, joined, c)
	h.toRoom(roomID, realtime.EventNotification, realtime.Notification{
		Type:    realtime.NotificationUserJoined,
		Message: c.user.Username + " joined the room",
	}, c)
}

func (h *hub) leave(c *client, roomID string) {
	h.mu.Lock()
	_, in := h.rooms[roomID][c]
	delete(h.rooms[roomID], c)
	delete(c.rooms, roomID)
	h.mu.Unlock()
	if in {
		h.toRoom(roomID, realtime.EventUserLeft, c.user.ID, nil)
	}
}

// toRoom writes event to every client in roomID except skip.
func (h *hub) toRoom(roomID, event string, payload any, skip *client) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.write(event, payload)
	}
}

func (h *hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), time.Now().Add(writeWait))
		_ = c.conn.Close()
		c.mu.Unlock()
	}
}
