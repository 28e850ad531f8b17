// Package transport exposes the assistant over HTTP and WebSocket.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/session"
	errx "github.com/taxi-assistant/server/internal/core/error"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

const (
	residentialCategory = "Residenziale"
	defaultSearchLimit  = 5
	maxSearchLimit      = 50
)

// Catalog is the read side of the knowledge base served over HTTP.
type Catalog interface {
	POIByID(ctx context.Context, id string) (*model.POI, error)
	SearchPOIs(ctx context.Context, query string, limit int) ([]model.POI, error)
	UserHome(ctx context.Context, userID string) (*model.POI, error)
	PolicyParameters(ctx context.Context, name string) (*model.PolicyParameters, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server. Locker must be the one the
// pipeline serializes sessions with.
type Deps struct {
	Handler  FrameHandler
	Catalog  Catalog
	Sessions model.SessionStore
	Locker   *session.Locker
	Hub      *Hub
	Config   Config
}

type Server struct {
	handler  FrameHandler
	catalog  Catalog
	sessions model.SessionStore
	locker   *session.Locker
	hub      *Hub
	config   Config
	engine   *gin.Engine
}

func New(d Deps) *Server {
	if d.Hub == nil {
		d.Hub = NewHub()
	}
	if d.Locker == nil {
		d.Locker = session.NewLocker()
	}
	s := &Server{
		handler:  d.Handler,
		catalog:  d.Catalog,
		sessions: d.Sessions,
		locker:   d.Locker,
		hub:      d.Hub,
		config:   d.Config.withDefaults(),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.config.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	logx.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(), recovery())

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.serveWS)
	r.POST("/api/message", s.message)

	api := r.Group("/api")
	api.GET("/pois/search", s.searchPOIs)
	api.GET("/pois/:id", s.getPOI)
	api.GET("/policies/:name", s.policyParameters)

	music := r.Group("/music")
	music.GET("/genres", s.musicGenres)
	music.GET("/state/:session_id", s.musicState)
	music.POST("/control", s.musicControl)
	music.GET("/:genre", s.streamMusic)
	return r
}

// =========== Status ===========

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "taxi-backend"})
}

func (s *Server) health(c *gin.Context) {
	status, db := "ok", "connected"
	if err := s.catalog.Ping(c.Request.Context()); err != nil {
		logx.Warn().Err(err).Msg("database health check failed")
		status, db = "degraded", "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"db":           db,
		"unity":        s.hub.IsConnected(),
		"chat_clients": s.hub.ChatClients(),
	})
}

// message accepts the same payloads as the websocket, for testing without one.
func (s *Server) message(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse("", "Invalid JSON format"))
		return
	}
	c.JSON(http.StatusOK, s.handleFrame(c.Request.Context(), raw))
}

// =========== Knowledge base ===========

type policyResponse struct {
	model.PolicyParameters
	Source string `json:"source"`
}

// policyParameters serves the vehicle dynamics of a policy; unknown policies
// and store failures fall back to the default parameters.
func (s *Server) policyParameters(c *gin.Context) {
	name := c.Param("name")
	params, err := s.catalog.PolicyParameters(c.Request.Context(), name)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, policyResponse{PolicyParameters: *params, Source: "database"})
	case errx.IsNotFound(err):
		c.JSON(http.StatusOK, policyResponse{PolicyParameters: model.FallbackPolicyParameters(), Source: "default_fallback"})
	default:
		logx.Error().Err(err).Str("policy", name).Msg("failed to load policy parameters")
		c.JSON(http.StatusOK, policyResponse{PolicyParameters: model.FallbackPolicyParameters(), Source: "error_default"})
	}
}

// searchPOIs is the booking screen autocomplete. With a user id, residences
// other than the user's home are hidden and "casa"/"home" resolves to the home.
func (s *Server) searchPOIs(c *gin.Context) {
	ctx := c.Request.Context()
	q := c.Query("q")
	empty := gin.H{"pois": []model.POI{}}
	if len([]rune(q)) < 2 {
		c.JSON(http.StatusOK, empty)
		return
	}
	limit := defaultSearchLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxSearchLimit)
	}

	userID := c.Query("user_id")
	var home *model.POI
	if userID != "" {
		h, err := s.catalog.UserHome(ctx, userID)
		if err != nil && !errx.IsNotFound(err) {
			s.fail(c, err)
			return
		}
		home = h
		lower := strings.ToLower(q)
		if strings.Contains(lower, "casa") || strings.Contains(lower, "home") {
			if home == nil {
				c.JSON(http.StatusOK, empty)
				return
			}
			c.JSON(http.StatusOK, gin.H{"pois": []model.POI{*home}})
			return
		}
	}

	pois, err := s.catalog.SearchPOIs(ctx, q, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if userID != "" {
		filtered := make([]model.POI, 0, len(pois))
		for _, p := range pois {
			if p.Category == residentialCategory && (home == nil || p.ID != home.ID) {
				continue
			}
			filtered = append(filtered, p)
		}
		pois = filtered
	}
	if pois == nil {
		pois = []model.POI{}
	}
	c.JSON(http.StatusOK, gin.H{"pois": pois})
}

func (s *Server) getPOI(c *gin.Context) {
	poi, err := s.catalog.POIByID(c.Request.Context(), c.Param("id"))
	if errx.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "POI not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, poi)
}

// =========== Music ===========

func (s *Server) musicGenres(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"genres": model.MusicGenres})
}

func (s *Server) musicState(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.MusicSnapshot())
}

type musicControlRequest struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Genre     string `json:"genre"`
}

func (s *Server) musicControl(c *gin.Context) {
	var req musicControlRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session_id or action"})
		return
	}
	ctx := c.Request.Context()
	unlock := s.locker.Lock(req.SessionID)
	defer unlock()

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		s.fail(c, err)
		return
	}

	var body gin.H
	switch req.Action {
	case "play":
		genre, ok := model.NormalizeGenre(req.Genre)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown genre: " + req.Genre})
			return
		}
		sess.StartMusic(genre)
		body = gin.H{"status": "playing", "genre": genre, "url": "/music/" + genre}
	case "stop":
		sess.StopMusic()
		body = gin.H{"status": "stopped"}
	case "pause":
		sess.PauseMusic()
		body = gin.H{"status": "paused"}
	case "resume":
		sess.ResumeMusic()
		body = gin.H{"status": "playing", "genre": sess.Music.Genre}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action: " + req.Action})
		return
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// streamMusic serves <MUSIC_DIR>/<Genre>.mp3.
func (s *Server) streamMusic(c *gin.Context) {
	genre, ok := model.NormalizeGenre(c.Param("genre"))
	notFound := gin.H{"error": "Genre '" + c.Param("genre") + "' not found"}
	if !ok {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	path := filepath.Join(s.config.MusicDir, genre+".mp3")
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}

func (s *Server) fail(c *gin.Context, err error) {
	logx.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(errx.StatusOf(err), gin.H{"error": errx.SystemErrorMessage})
}
