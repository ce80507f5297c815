package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	maxFrameSize   = 1 << 20
)

// ErrClosed is returned by Emit once the connection is shut down.
var ErrClosed = errors.New("realtime: connection closed")

type registration struct {
	id uint64
	h  Handler
}

// Conn is a websocket connection to the chat backend's event channel.
type Conn struct {
	id   string
	conn *websocket.Conn
	send chan Frame

	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   uint64

	stopOnce   sync.Once
	done       chan struct{}
	writerDone chan struct{}
	closed     atomic.Bool
	err        error
}

// Dial connects to the event channel at url authenticating with token.
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := newConn(ws)
	log.Debug().Str("conn", c.id).Str("url", url).Msg("[realtime] connected")
	return c, nil
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		id:         uuid.NewString(),
		conn:       ws,
		send:       make(chan Frame, sendBufferSize),
		handlers:   make(map[string][]registration),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// On registers h for event. Handlers run on the connection's read goroutine
// in registration order.
func (c *Conn) On(event string, h Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], registration{id: id, h: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(event, id) })
	}
}

func (c *Conn) remove(event string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	regs := c.handlers[event]
	for i, r := range regs {
		if r.id == id {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(c.handlers, event)
		return
	}
	c.handlers[event] = regs
}

// Emit queues an event for the write loop.
func (c *Conn) Emit(event string, payload any) error {
	f, err := NewFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encode %q: %w", event, err)
	}
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Done is closed once the connection stops, locally or remotely.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection stopped: nil after a local Close, the read or
// write failure otherwise (a server-side close included).
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close flushes queued events, sends a close frame and releases the socket.
func (c *Conn) Close() error {
	c.stop(nil)
	select {
	case <-c.writerDone:
	case <-time.After(writeWait):
	}
	return c.conn.Close()
}

func (c *Conn) stop(err error) {
	c.stopOnce.Do(func() {
		c.err = err
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Conn) readLoop() {
	defer func() {
		<-c.writerDone
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				log.Debug().Err(err).Str("conn", c.id).Msg("[realtime] read")
			}
			c.stop(fmt.Errorf("connection lost: %w", err))
			return
		}
		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil || f.Event == "" {
			log.Debug().Str("conn", c.id).Msg("[realtime] drop malformed frame")
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f Frame) {
	c.mu.RLock()
	regs := append([]registration(nil), c.handlers[f.Event]...)
	c.mu.RUnlock()
	if len(regs) == 0 {
		log.Debug().Str("conn", c.id).Str("event", f.Event).Msg("[realtime] no handler")
		return
	}
	for _, r := range regs {
		r.h(f.Data)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				log.Debug().Err(err).Str("conn", c.id).Str("event", f.Event).Msg("[realtime] write")
				c.stop(err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop(err)
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is still queued so a final leave reaches the server.
func (c *Conn) flush() {
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(f Frame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}
