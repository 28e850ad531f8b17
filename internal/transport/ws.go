package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/taxi-assistant/server/internal/agent/model"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

// FrameHandler answers one raw inbound frame.
type FrameHandler interface {
	HandleFrame(ctx context.Context, raw []byte) *model.Response
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// frameHeader carries the fields used to identify who is on the socket.
type frameHeader struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}

// peer is the identity of one socket, learned from its frames.
type peer struct {
	conn      *conn
	unity     bool
	sessionID string
}

// identify registers the socket on its first identifying frame. A unity ping
// marks the simulator; any other frame with a new session id marks a chat client.
func (h *Hub) identify(p *peer, raw []byte) {
	var hdr frameHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return
	}
	if hdr.Type == model.TypeUnityMessage {
		if hdr.Action == "ping" && !p.unity {
			p.unity = true
			h.registerUnity(p.conn)
			logx.Info().Str("session_id", hdr.SessionID).Msg("identified unity client")
		}
		return
	}
	if p.unity || p.sessionID != "" || hdr.SessionID == "" {
		return
	}
	if h.registerChat(hdr.SessionID, p.conn) {
		p.sessionID = hdr.SessionID
	}
}

func (h *Hub) release(p *peer) {
	if p.unity {
		h.unregisterUnity(p.conn)
	}
	if p.sessionID != "" {
		h.unregisterChat(p.sessionID, p.conn)
	}
}

// serveWS upgrades the request and answers every frame with exactly one response.
func (s *Server) serveWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logx.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()
	ws.SetReadLimit(s.config.ReadLimit)
	logx.Info().Str("remote", c.ClientIP()).Msg("websocket connection accepted")

	p := &peer{conn: newConn(ws, s.config.WriteTimeout)}
	defer s.hub.release(p)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	if s.config.PingInterval > 0 {
		go keepAlive(ctx, p.conn, s.config.PingInterval)
	}

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logx.Warn().Err(err).Msg("websocket read failed")
			}
			break
		}

		s.hub.identify(p, raw)
		resp := s.handleFrame(ctx, raw)
		if err := p.conn.writeJSON(resp); err != nil {
			logx.Error().Err(err).Str("session_id", resp.SessionID).Msg("websocket write failed")
			break
		}
	}
	logx.Info().Bool("unity", p.unity).Str("session_id", p.sessionID).Msg("websocket disconnected")
}

// handleFrame turns a handler panic into an error frame so the socket survives.
func (s *Server) handleFrame(ctx context.Context, raw []byte) (resp *model.Response) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Interface("panic", r).Msg("frame handler panicked")
			resp = model.ErrorResponse("", "Internal error")
		}
	}()
	resp = s.handler.HandleFrame(ctx, raw)
	if resp == nil {
		resp = model.ErrorResponse("", "Internal error")
	}
	return resp
}

func keepAlive(ctx context.Context, c *conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				logx.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		}
	}
}
