// Package gateway is the websocket transport layer: it upgrades and
// tracks player and observer connections, validates inbound messages
// against a closed tagged set, and fans session events out to the right
// audiences.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/heistnight/internal/events"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024, // drawing payloads ride in register messages
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// Hub manages websocket connections: per-player pools plus the observer
// dashboard pool. It implements events.Sink.
type Hub struct {
	mu        sync.RWMutex
	players   map[uuid.UUID]map[*Conn]bool
	observers map[*Conn]bool

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan events.Event
	core        Core
}

// Conn is one websocket connection to a client.
type Conn struct {
	ID  string
	hub *Hub
	ws  *websocket.Conn

	// Buffered; a full buffer marks the connection dead.
	send chan []byte

	mu       sync.Mutex
	playerID uuid.UUID // uuid.Nil until bound by register
	observer bool
	closed   bool // send channel closed; no further enqueues

	connectedAt time.Time
	lastPing    time.Time
}

// NewHub creates a hub bound to the session core.
func NewHub(config ConnectionConfig, core Core) *Hub {
	return &Hub{
		players:   make(map[uuid.UUID]map[*Conn]bool),
		observers: make(map[*Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan events.Event, 1000),
		core:        core,
	}
}

// Run processes broadcast events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case ev := <-h.broadcastCh:
			h.handleBroadcast(ev)
		}
	}
}

// Deliver implements events.Sink.
func (h *Hub) Deliver(ev events.Event) {
	select {
	case h.broadcastCh <- ev:
	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("broadcast channel full, dropping event")
	}
}

// Upgrade turns an HTTP request into a tracked connection. Observer
// connections join the dashboard pool; player connections start
// unbound and bind on register, or immediately when the client supplies
// a known player_id (reconnect).
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, observer bool) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &Conn{
		ID:          uuid.New().String(),
		hub:         h,
		ws:          ws,
		send:        make(chan []byte, 256),
		observer:    observer,
		connectedAt: time.Now(),
		lastPing:    time.Now(),
	}

	if observer {
		h.mu.Lock()
		h.observers[conn] = true
		h.mu.Unlock()
	} else if raw := r.URL.Query().Get("player_id"); raw != "" {
		if playerID, err := uuid.Parse(raw); err == nil {
			h.bindPlayer(conn, playerID)
			h.core.MarkReconnected(playerID)
		}
	}

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Bool("observer", observer).
		Msg("websocket connection established")
	return nil
}

// bindPlayer associates a connection with a player id.
func (h *Hub) bindPlayer(conn *Conn, playerID uuid.UUID) {
	conn.mu.Lock()
	conn.playerID = playerID
	conn.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.players[playerID] == nil {
		h.players[playerID] = make(map[*Conn]bool)
	}
	h.players[playerID][conn] = true
}

// unregister drops a connection. When a player's last connection goes
// away, the core marks them disconnected (soft delete).
func (h *Hub) unregister(conn *Conn) {
	conn.mu.Lock()
	playerID := conn.playerID
	observer := conn.observer
	conn.mu.Unlock()

	h.mu.Lock()
	lastForPlayer := false
	if observer {
		if _, ok := h.observers[conn]; ok {
			delete(h.observers, conn)
			conn.closeSend()
		}
	} else if playerID != uuid.Nil {
		if pool, ok := h.players[playerID]; ok {
			if _, ok := pool[conn]; ok {
				delete(pool, conn)
				conn.closeSend()
				if len(pool) == 0 {
					delete(h.players, playerID)
					lastForPlayer = true
				}
			}
		}
	}
	h.mu.Unlock()

	if lastForPlayer {
		h.core.MarkDisconnected(playerID)
	}
	log.Info().Str("connection_id", conn.ID).Msg("connection closed")
}

// handleBroadcast routes one event to its audience.
func (h *Hub) handleBroadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	h.mu.RLock()
	var targets []*Conn
	switch ev.Audience.Scope {
	case events.ScopeAll:
		for _, pool := range h.players {
			for conn := range pool {
				targets = append(targets, conn)
			}
		}
		for conn := range h.observers {
			targets = append(targets, conn)
		}
	case events.ScopePlayers:
		for _, id := range ev.Audience.PlayerIDs {
			for conn := range h.players[id] {
				targets = append(targets, conn)
			}
		}
	case events.ScopeObservers:
		for conn := range h.observers {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		conn.enqueue(data)
	}
}

// closeSend closes the send channel exactly once. Enqueues racing the
// close observe the flag under the connection lock and drop instead of
// sending on a closed channel.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// enqueue sends bytes to a connection, closing it when the buffer is
// full. Replies from the read pump and broadcasts from the hub loop
// both land here, so the closed flag is checked under the lock.
func (c *Conn) enqueue(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, closing connection")
		c.hub.unregister(c)
		c.ws.Close()
	}
}

// reply marshals and enqueues a direct response on this connection.
func (c *Conn) reply(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("type", resp.Type).Msg("failed to marshal response")
		return
	}
	c.enqueue(data)
}

// writePump sends queued messages and periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.mu.Lock()
			c.lastPing = time.Now()
			c.mu.Unlock()
		}
	}
}

// readPump reads frames and dispatches them. Pongs double as liveness
// heartbeats for the bound player.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.mu.Lock()
		c.lastPing = time.Now()
		playerID := c.playerID
		c.mu.Unlock()
		if playerID != uuid.Nil {
			c.hub.core.Heartbeat(playerID)
		}
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		c.hub.dispatch(c, message)
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// Stats returns connection counts for the info endpoint.
func (h *Hub) Stats() (playerConns, observerConns int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, pool := range h.players {
		playerConns += len(pool)
	}
	return playerConns, len(h.observers)
}
