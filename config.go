package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"

	"github.com/taxi-assistant/server/internal/agent/llm"
	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/core"
	"github.com/taxi-assistant/server/internal/transport"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/database"
	pkgredis "github.com/taxi-assistant/server/pkg/redis"
)

const (
	sessionBackendMemory = "memory"
	sessionBackendRedis  = "redis"
)

// AppConfig defines every configurable parameter of the server, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Env      core.Environment `envconfig:"APP_ENV" default:"development"`
	LogLevel string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Server   transport.Config
	Database database.Config
	Redis    pkgredis.Config

	// Agent configs
	Session  model.SessionConfig
	LLM      llm.Config
	Pipeline model.PipelineConfig
	POI      model.POIConfig
}

// loadConfig reads the optional env file then the process environment.
func loadConfig(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Debug().Err(err).Str("file", envFile).Msg("env file not loaded")
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *AppConfig) Validate() error {
	var err error

	switch c.Session.Backend {
	case sessionBackendMemory, sessionBackendRedis:
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported SESSION_BACKEND %q", c.Session.Backend))
	}
	if c.Session.MaxHistoryTurns < 0 {
		err = multierr.Append(err, fmt.Errorf("SESSION_MAX_HISTORY_TURNS must not be negative, got %d", c.Session.MaxHistoryTurns))
	}

	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver))
	}

	switch c.LLM.Provider {
	case llm.ProviderOllama, llm.ProviderOpenRouter, llm.ProviderGemini:
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider))
	}
	if c.LLM.Provider == llm.ProviderGemini && c.LLM.GeminiAPIKey == "" {
		err = multierr.Append(err, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider"))
	}

	for _, t := range []struct {
		name  string
		value float64
	}{
		{"PIPELINE_TOOL_THRESHOLD", c.Pipeline.ToolThreshold},
		{"PIPELINE_PRE_RIDE_TOOL_THRESHOLD", c.Pipeline.PreRideToolThreshold},
		{"PIPELINE_NEED_THRESHOLD", c.Pipeline.NeedThreshold},
		{"PIPELINE_PRE_RIDE_NEED_THRESHOLD", c.Pipeline.PreRideNeedThreshold},
	} {
		if t.value < 0 || t.value > 1 {
			err = multierr.Append(err, fmt.Errorf("%s must be within [0, 1], got %v", t.name, t.value))
		}
	}

	if c.POI.DefaultLimit <= 0 {
		err = multierr.Append(err, fmt.Errorf("POI_DEFAULT_LIMIT must be positive, got %d", c.POI.DefaultLimit))
	}
	return err
}
