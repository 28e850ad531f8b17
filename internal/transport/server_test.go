package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/classifier"
	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/pipeline"
	"github.com/taxi-assistant/server/internal/agent/repo"
	"github.com/taxi-assistant/server/internal/agent/session"
	"github.com/taxi-assistant/server/internal/agent/tools"
	"github.com/taxi-assistant/server/pkg/database"
)

type env struct {
	server *Server
	hub    *Hub
	store  *session.MemoryStore
	repo   *repo.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := database.Config{Driver: database.DriverSQLite, DSN: "file::memory:"}
	db, err := cfg.Open()
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = database.Close(db) })

	fixtures, err := repo.DefaultFixtures()
	require.NoError(t, err)
	require.NoError(t, repo.Seed(context.Background(), db, fixtures))
	kb := repo.New(db)

	hub := NewHub()
	store := session.NewMemoryStore(model.SessionConfig{TTL: time.Hour})
	locker := session.NewLocker()
	p := pipeline.New(pipeline.Deps{
		Store:      store,
		Locker:     locker,
		Classifier: classifier.New(agenttest.NewScriptedCompleter()),
		Registry:   tools.NewRegistry(tools.Deps{Repo: kb, Simulator: hub}),
		Repo:       kb,
		Simulator:  hub,
		Notifier:   hub,
		Config:     model.DefaultPipelineConfig(),
	})

	srv := New(Deps{
		Handler:  p,
		Catalog:  kb,
		Sessions: store,
		Locker:   locker,
		Hub:      hub,
		Config:   Config{MusicDir: t.TempDir(), PingInterval: time.Minute},
	})
	return &env{server: srv, hub: hub, store: store, repo: kb}
}

func (e *env) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func poiIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	list, ok := body["pois"].([]any)
	require.True(t, ok, "pois must be a list")
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.(map[string]any)["id"].(string))
	}
	return out
}

func TestRootAndHealth(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "ok", "service": "taxi-backend"}, body)

	code, body = e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["db"])
	assert.Equal(t, false, body["unity"])
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestPolicyParametersEndpoint(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/api/policies/eco", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Eco", body["name"])
	assert.Equal(t, 0.7, body["acceleration"])
	assert.Equal(t, "database", body["source"])

	_, body = e.do(t, http.MethodGet, "/api/policies/turbo", "")
	assert.Equal(t, "default_fallback", body["source"])
	assert.Equal(t, float64(40), body["max_speed"])
	assert.Equal(t, float64(10), body["brake_power"])
}

func TestSearchPOIs(t *testing.T) {
	e := newEnv(t)

	t.Run("short query", func(t *testing.T) {
		code, body := e.do(t, http.MethodGet, "/api/pois/search?q=c", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Empty(t, poiIDs(t, body))
	})

	t.Run("anonymous", func(t *testing.T) {
		_, body := e.do(t, http.MethodGet, "/api/pois/search?q=Cinema", "")
		assert.Equal(t, []string{"POI_009"}, poiIDs(t, body))
	})

	t.Run("home query", func(t *testing.T) {
		_, body := e.do(t, http.MethodGet, "/api/pois/search?q=casa&user_id=U1", "")
		assert.Equal(t, []string{"POI_001"}, poiIDs(t, body))
	})

	t.Run("hides other residences", func(t *testing.T) {
		_, body := e.do(t, http.MethodGet, "/api/pois/search?q=Cas&user_id=U2&limit=10", "")
		ids := poiIDs(t, body)
		assert.Contains(t, ids, "POI_002")
		assert.NotContains(t, ids, "POI_001")
		assert.NotContains(t, ids, "POI_003")
	})
}

func TestGetPOI(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/api/pois/POI_004", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Stadio Renzo Barbera", body["name"])
	assert.Equal(t, "3", body["id_unity"])

	code, body = e.do(t, http.MethodGet, "/api/pois/POI_999", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, map[string]any{"error": "POI not found"}, body)
}

func TestMusicEndpoints(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodGet, "/music/genres", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["genres"], len(model.MusicGenres))

	code, body = e.do(t, http.MethodPost, "/music/control", `{"session_id":"s1","action":"play","genre":"hip-hop"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "playing", "genre": "HipHop", "url": "/music/HipHop"}, body)

	_, body = e.do(t, http.MethodPost, "/music/control", `{"session_id":"s1","action":"pause"}`)
	assert.Equal(t, "paused", body["status"])

	_, body = e.do(t, http.MethodGet, "/music/state/s1", "")
	assert.Equal(t, true, body["playing"])
	assert.Equal(t, true, body["paused"])
	assert.Equal(t, "HipHop", body["genre"])
	assert.Equal(t, float64(model.DefaultVolume), body["volume"])

	_, body = e.do(t, http.MethodPost, "/music/control", `{"session_id":"s1","action":"resume"}`)
	assert.Equal(t, map[string]any{"status": "playing", "genre": "HipHop"}, body)

	code, body = e.do(t, http.MethodPost, "/music/control", `{"session_id":"s1","action":"rewind"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Unknown action: rewind", body["error"])

	code, body = e.do(t, http.MethodPost, "/music/control", `{"action":"stop"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing session_id or action", body["error"])

	code, _ = e.do(t, http.MethodGet, "/music/Jazz", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMessageEndpoint(t *testing.T) {
	e := newEnv(t)

	code, body := e.do(t, http.MethodPost, "/api/message", `{"type":"user_message","session_id":"s1","text":"aiuto"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.TypeAssistantResponse, body["type"])
	assert.Equal(t, "s1", body["session_id"])
	assert.NotEmpty(t, body["ui_options"])

	_, body = e.do(t, http.MethodPost, "/api/message", `not json`)
	assert.Equal(t, map[string]any{"type": "error", "session_id": "", "message": "Invalid JSON format", "ui_options": []any{}, "commands": []any{}}, body)
}
