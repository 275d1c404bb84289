// Package ws is the realtime surface: one websocket per client, rooms
// keyed by join code, JSON commands in and JSON events out. The hub
// owns connection lifecycle and fan-out; game semantics stay in the
// live core behind the Core interface.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/victornm/quizlive/internal/game"
	"github.com/victornm/quizlive/internal/telemetry"
)

// Core is the subset of the live coordinator the transport drives.
type Core interface {
	Join(ctx context.Context, code, token, guestName, connectionID string) (*game.JoinResult, error)
	Start(ctx context.Context, code, token string) (*game.AdvanceResult, error)
	Advance(ctx context.Context, code, token string) (*game.AdvanceResult, error)
	SubmitAnswer(ctx context.Context, code, connectionID string, questionID, optionID int64, submittedAt time.Time) (*game.SubmitResult, error)
	Disconnect(ctx context.Context, connectionID string)
}

type HubConfig struct {
	Core Core

	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

func (c *HubConfig) withDefaults() {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// Hub tracks live connections and their room membership, and
// implements the live core's Broadcaster.
type Hub struct {
	core     Core
	config   HubConfig
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*connection]bool
}

type connection struct {
	id   string
	room string // join code; empty until joinGame succeeds
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Hub
}

func NewHub(c HubConfig) *Hub {
	c.withDefaults()

	return &Hub{
		core:   c.Core,
		config: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     c.CheckOrigin,
		},
		rooms: make(map[string]map[*connection]bool),
	}
}

// ServeHTTP upgrades the request and runs the connection until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "ws: upgrade failed", "error", err)
		return
	}

	c := &connection{
		id:   uuid.New().String(),
		conn: wsConn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		hub:  h,
	}

	telemetry.WSConnections.Inc()
	slog.InfoContext(r.Context(), "ws: connection established", "connection_id", c.id)

	go c.writePump()
	c.readPump()
}

// Broadcast marshals the event once and pushes it to every connection
// in the room. A connection whose send buffer is full gets its socket
// closed; its read loop tears the seat down.
func (h *Hub) Broadcast(joinCode, event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		slog.Error("ws: marshal event failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.rooms[joinCode]))
	for c := range h.rooms[joinCode] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			slog.Warn("ws: send buffer full, closing connection",
				"connection_id", c.id,
				"join_code", joinCode,
			)
			c.conn.Close()
		}
	}
}

// assign moves a connection into a room after a successful join,
// evicting it from any room it was in before so a connection is
// targeted by at most one room's broadcasts.
func (h *Hub) assign(c *connection, joinCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)

	if h.rooms[joinCode] == nil {
		h.rooms[joinCode] = make(map[*connection]bool)
	}
	h.rooms[joinCode][c] = true
	c.room = joinCode
}

func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *connection) {
	if c.room == "" {
		return
	}

	if conns, ok := h.rooms[c.room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) roomOf(c *connection) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return c.room
}

func (c *connection) readPump() {
	defer func() {
		c.teardown()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("ws: unexpected close", "connection_id", c.id, "error", err)
			}
			return
		}

		c.hub.dispatch(c, message)
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("ws: write failed", "connection_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown runs once when the read loop exits: release the seat in
// the live core, drop room membership and close the socket. The send
// channel is never closed; a broadcast racing with teardown just
// lands in a buffer nobody drains.
func (c *connection) teardown() {
	seated := c.hub.roomOf(c) != ""

	c.hub.remove(c)
	close(c.done)
	c.conn.Close()
	telemetry.WSConnections.Dec()

	if seated {
		c.hub.core.Disconnect(context.Background(), c.id)
	}

	slog.Info("ws: connection closed", "connection_id", c.id)
}
