package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taxi-assistant/server/internal/agent/model"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/metrics"
)

const (
	roleUnity = "unity"
	roleChat  = "chat"
)

// conn serializes writes on a websocket. gorilla allows one concurrent writer.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *conn {
	return &conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Hub tracks the simulator socket and one chat socket per session. It is the
// Simulator and ClientNotifier of the pipeline.
type Hub struct {
	mu    sync.RWMutex
	unity *conn
	chats map[string]*conn
}

func NewHub() *Hub {
	return &Hub{chats: make(map[string]*conn)}
}

var (
	_ model.Simulator      = (*Hub)(nil)
	_ model.ClientNotifier = (*Hub)(nil)
)

// =========== Registration ===========

// registerUnity makes c the simulator socket, replacing any previous one.
func (h *Hub) registerUnity(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unity == c {
		return
	}
	if h.unity != nil {
		metrics.ConnectionClosed(roleUnity)
	}
	h.unity = c
	metrics.ConnectionOpened(roleUnity)
	logx.Info().Msg("unity client registered")
}

func (h *Hub) unregisterUnity(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unity != c {
		return
	}
	h.unity = nil
	metrics.ConnectionClosed(roleUnity)
	logx.Info().Msg("unity client disconnected")
}

// registerChat binds c to a session unless another socket already holds it.
func (h *Hub) registerChat(sessionID string, c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.chats[sessionID]; ok {
		return false
	}
	h.chats[sessionID] = c
	metrics.ConnectionOpened(roleChat)
	logx.Info().Str("session_id", sessionID).Msg("chat client registered")
	return true
}

func (h *Hub) unregisterChat(sessionID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chats[sessionID] != c {
		return
	}
	delete(h.chats, sessionID)
	metrics.ConnectionClosed(roleChat)
	logx.Info().Str("session_id", sessionID).Msg("chat client disconnected")
}

// ChatClients returns the number of registered chat sockets.
func (h *Hub) ChatClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats)
}

// =========== Delivery ===========

func (h *Hub) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.unity != nil
}

// Send writes msg to the simulator. It reports false when no simulator is
// registered or the write fails.
func (h *Hub) Send(ctx context.Context, msg any) bool {
	h.mu.RLock()
	c := h.unity
	h.mu.RUnlock()
	if c == nil {
		logx.Warn().Msg("no unity connection available")
		return false
	}
	if err := c.writeJSON(msg); err != nil {
		logx.Error().Err(err).Msg("failed to send to unity")
		return false
	}
	return true
}

// Notify pushes msg to the chat socket of a session.
func (h *Hub) Notify(ctx context.Context, sessionID string, msg any) bool {
	h.mu.RLock()
	c := h.chats[sessionID]
	h.mu.RUnlock()
	if c == nil {
		logx.Warn().Str("session_id", sessionID).Msg("chat client not found")
		return false
	}
	if err := c.writeJSON(msg); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to send to chat client")
		return false
	}
	return true
}
