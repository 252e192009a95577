package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/subhasta/internal/common"
	"github.com/ternarybob/subhasta/internal/jobs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard only
	},
}

// statusMessage is the frame pushed to connected dashboard clients
type statusMessage struct {
	Type             string        `json:"type"`
	ServerInstanceID string        `json:"server_instance_id"`
	Jobs             []interface{} `json:"jobs"`
	Timestamp        time.Time     `json:"timestamp"`
}

// WebSocketHandler streams job status snapshots to dashboard clients.
// Writes to each connection are serialized with a per-client mutex, and
// broadcasts are throttled so a burst of job updates cannot flood slow
// clients.
type WebSocketHandler struct {
	registry    *jobs.Registry
	logger      arbor.ILogger
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex

	throttler *rate.Limiter
	interval  time.Duration

	// clients use this to detect a server restart and resync
	serverInstanceID string
}

func NewWebSocketHandler(registry *jobs.Registry, statusInterval time.Duration, logger arbor.ILogger) *WebSocketHandler {
	if statusInterval <= 0 {
		statusInterval = 2 * time.Second
	}

	h := &WebSocketHandler{
		registry:         registry,
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		throttler:        rate.NewLimiter(rate.Every(statusInterval/2), 1),
		interval:         statusInterval,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Dur("status_interval", statusInterval).
		Msg("WebSocket handler initialized")

	return h
}

// HandleWebSocket upgrades the connection and registers the client.
// The read loop exists only to observe the close.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	// initial snapshot so the dashboard renders without waiting a tick
	h.sendTo(conn, h.snapshot())

	common.SafeGo(h.logger, "ws-read", func() {
		defer h.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// Start runs the periodic status broadcast until ctx is done
func (h *WebSocketHandler) Start(ctx context.Context) {
	common.SafeGo(h.logger, "ws-status-loop", func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Broadcast()
			}
		}
	})
}

// Broadcast pushes the current job table to every client, subject to the
// throttle.
func (h *WebSocketHandler) Broadcast() {
	h.mu.RLock()
	empty := len(h.clients) == 0
	h.mu.RUnlock()
	if empty {
		return
	}

	if !h.throttler.Allow() {
		return
	}

	msg := h.snapshot()

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.sendTo(conn, msg)
	}
}

func (h *WebSocketHandler) snapshot() statusMessage {
	list := h.registry.List()
	jobList := make([]interface{}, len(list))
	for i := range list {
		jobList[i] = list[i]
	}
	return statusMessage{
		Type:             "status",
		ServerInstanceID: h.serverInstanceID,
		Jobs:             jobList,
		Timestamp:        time.Now().UTC(),
	}
}

func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg statusMessage) {
	h.mu.RLock()
	writeMu := h.clientMutex[conn]
	h.mu.RUnlock()
	if writeMu == nil {
		return
	}

	writeMu.Lock()
	err := conn.WriteJSON(msg)
	writeMu.Unlock()

	if err != nil {
		h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
		h.removeClient(conn)
	}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
