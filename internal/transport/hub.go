package transport

import (
	"context"
	"sync"
	"time"

	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/pkg/tttdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	sendBuffer     = 64
	maxMessageSize = 4096
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan tttdto.Envelope

	done     chan struct{}
	doneOnce sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{id: id, conn: conn, send: make(chan tttdto.Envelope, sendBuffer), done: make(chan struct{})}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case env := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(wctx, c.conn, env)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("client_id", c.id), zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

// Hub tracks live connections and which room each one listens to.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
	roomOf  map[string]string
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
		roomOf:  make(map[string]string),
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	h.leaveLocked(id)
}

// subscribe moves a connection to roomID's broadcast group.
func (h *Hub) subscribe(roomID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(id)
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[id] = struct{}{}
	h.roomOf[id] = roomID
}

func (h *Hub) leaveLocked(id string) {
	roomID, ok := h.roomOf[id]
	if !ok {
		return
	}
	delete(h.roomOf, id)
	if members := h.rooms[roomID]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// SendTo queues env for one connection.
func (h *Hub) SendTo(id string, env tttdto.Envelope) {
	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c != nil {
		h.enqueue(c, env)
	}
}

// Broadcast queues env for every connection subscribed to roomID.
func (h *Hub) Broadcast(roomID string, env tttdto.Envelope) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		if c := h.clients[id]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, env)
	}
}

// Members returns the connection ids subscribed to roomID.
func (h *Hub) Members(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		out = append(out, id)
	}
	return out
}

// A connection whose buffer is full is too slow to follow the game; it is dropped.
func (h *Hub) enqueue(c *client, env tttdto.Envelope) {
	select {
	case <-c.done:
	case c.send <- env:
	default:
		obslog.L().Warn("ws_slow_client", zap.String("client_id", c.id), zap.String("event", env.Event))
		c.close(websocket.StatusPolicyViolation, "send buffer full")
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close(websocket.StatusGoingAway, "server shutdown")
	}
}
