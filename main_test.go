package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/taxi-assistant/server/internal/agent/agenttest"
	"github.com/taxi-assistant/server/internal/agent/classifier"
	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/pipeline"
	"github.com/taxi-assistant/server/internal/agent/session"
	"github.com/taxi-assistant/server/internal/agent/tools"
	"github.com/taxi-assistant/server/internal/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_TTL", "30m")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, core.Production, cfg.Env)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, sessionBackendMemory, cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 10, cfg.Session.MaxHistoryTurns)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, model.DefaultPipelineConfig(), cfg.Pipeline)
	assert.Equal(t, 5, cfg.POI.DefaultLimit)
	assert.Equal(t, float32(0.3), cfg.LLM.Temperature)
}

func TestValidateCollectsEveryError(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "memcached")
	t.Setenv("DATABASE_DRIVER", "oracle")
	t.Setenv("PIPELINE_NEED_THRESHOLD", "1.5")

	_, err := loadConfig("")
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
	assert.ErrorContains(t, err, `unsupported SESSION_BACKEND "memcached"`)
	assert.ErrorContains(t, err, `unsupported DATABASE_DRIVER "oracle"`)
	assert.ErrorContains(t, err, "PIPELINE_NEED_THRESHOLD must be within [0, 1], got 1.5")
}

func TestValidateGeminiKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	_, err := loadConfig("")
	assert.ErrorContains(t, err, "GEMINI_API_KEY is required")
}

func TestConsole(t *testing.T) {
	repo := agenttest.NewMemoryRepository()
	p := pipeline.New(pipeline.Deps{
		Store:      session.NewMemoryStore(model.SessionConfig{}),
		Classifier: classifier.New(agenttest.NewScriptedCompleter()),
		Registry:   tools.NewRegistry(tools.Deps{Repo: repo}),
		Repo:       repo,
		Config:     model.DefaultPipelineConfig(),
	})
	c := console{p: p, sessionID: "console"}

	var out bytes.Buffer
	in := strings.NewReader("ciao\n\n/ask_music\nexit\nignored\n")
	require.NoError(t, c.run(context.Background(), in, &out))

	text := out.String()
	assert.Contains(t, text, "[/genre:Pop]")
	assert.Equal(t, 4, strings.Count(text, "> "))
}
