package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds a single websocket send so one stalled client cannot
// hold up a broadcast.
const writeTimeout = 5 * time.Second

// Realtime socket frame types.
const (
	frameState  = "state"
	frameEvent  = "event"
	frameStatus = "status"
	frameUsers  = "users"
	framePong   = "pong"
)

// wsFrame is the envelope for every server → client message.
type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// clientMessage is the client → server shape; only ping is recognized.
type clientMessage struct {
	Type string `json:"type"`
}

// connection is a single dashboard client.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks connected dashboard clients and broadcasts frames to them.
// Each process has one Hub owned by the broadcast server.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*connection

	// stateFn builds the seed document sent on every new connection.
	stateFn func() any

	logger *slog.Logger
}

// NewHub creates a connection hub. stateFn supplies the state document sent
// to each client on connect.
func NewHub(stateFn func() any) *Hub {
	return &Hub{
		connections: make(map[string]*connection),
		stateFn:     stateFn,
		logger:      slog.Default().With("component", "broadcast-hub"),
	}
}

// HandleConnection manages the lifecycle of one websocket client: it sends
// the initial state frame, then blocks in the read loop until the connection
// closes.
func (h *Hub) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{
		id:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.connections[c.id] = c
	total := len(h.connections)
	h.mu.Unlock()
	h.logger.Info("Dashboard client connected", "connection_id", c.id, "total", total)

	defer h.unregister(c)

	h.send(c, wsFrame{Type: frameState, Data: h.stateFn()})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Warn("Invalid websocket message", "connection_id", c.id, "error", err)
			continue
		}
		if msg.Type == "ping" {
			h.send(c, wsFrame{Type: framePong})
		}
	}
}

// BroadcastEvent pushes one delivered event to every client.
func (h *Hub) BroadcastEvent(evt any) {
	h.broadcast(wsFrame{Type: frameEvent, Data: evt})
}

// BroadcastStatus pushes a connection-state change.
func (h *Hub) BroadcastStatus(state string) {
	h.broadcast(wsFrame{Type: frameStatus, Data: map[string]string{"connection": state}})
}

// BroadcastUsers pushes a refreshed active-users list.
func (h *Hub) BroadcastUsers(users []string) {
	h.broadcast(wsFrame{Type: frameUsers, Data: users})
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll disconnects every client; used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[string]*connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// broadcast snapshots the connection set under the lock, then sends outside
// it so a slow client (bounded by writeTimeout) cannot stall registrations.
func (h *Hub) broadcast(frame wsFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Warn("Failed to marshal websocket frame", "type", frame.Type, "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.sendRaw(c, data); err != nil {
			h.logger.Warn("Failed to send to dashboard client",
				"connection_id", c.id, "error", err)
		}
	}
}

func (h *Hub) send(c *connection, frame wsFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Warn("Failed to marshal websocket frame", "type", frame.Type, "error", err)
		return
	}
	if err := h.sendRaw(c, data); err != nil {
		h.logger.Warn("Failed to send websocket frame",
			"connection_id", c.id, "type", frame.Type, "error", err)
	}
}

func (h *Hub) sendRaw(c *connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	delete(h.connections, c.id)
	total := len(h.connections)
	h.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("Dashboard client disconnected", "connection_id", c.id, "total", total)
}
