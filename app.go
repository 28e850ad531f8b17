package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/taxi-assistant/server/internal/agent/classifier"
	"github.com/taxi-assistant/server/internal/agent/llm"
	"github.com/taxi-assistant/server/internal/agent/model"
	"github.com/taxi-assistant/server/internal/agent/pipeline"
	"github.com/taxi-assistant/server/internal/agent/repo"
	"github.com/taxi-assistant/server/internal/agent/session"
	"github.com/taxi-assistant/server/internal/agent/tools"
	"github.com/taxi-assistant/server/internal/transport"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/database"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg      *AppConfig
	db       *gorm.DB
	rdb      *goredis.Client
	repo     *repo.Repository
	store    model.SessionStore
	locker   *session.Locker
	hub      *transport.Hub
	pipeline *pipeline.Pipeline
}

func openDatabase(ctx context.Context, cfg database.Config) (*gorm.DB, error) {
	db, err := cfg.Open()
	if err != nil {
		return nil, err
	}
	if !cfg.Seed {
		return db, repo.Migrate(db)
	}
	fixtures, err := repo.DefaultFixtures()
	if err != nil {
		return nil, err
	}
	seeded, err := repo.SeedIfEmpty(ctx, db, fixtures)
	if err != nil {
		return nil, err
	}
	if seeded {
		logx.Info().Str("driver", cfg.Driver).Msg("knowledge base seeded")
	}
	return db, nil
}

// newApp connects the stores and builds the pipeline around the hub.
func newApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	a := &app{cfg: cfg, locker: session.NewLocker(), hub: transport.NewHub()}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.repo = repo.New(db)

	switch cfg.Session.Backend {
	case sessionBackendRedis:
		rdb, err := cfg.Redis.NewContext(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		a.rdb = rdb
		a.store = session.NewRedisStore(rdb, cfg.Session)
	default:
		a.store = session.NewMemoryStore(cfg.Session)
	}

	completer, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to build llm completer: %w", err)
	}

	a.pipeline = pipeline.New(pipeline.Deps{
		Store:      a.store,
		Locker:     a.locker,
		Classifier: classifier.New(completer),
		Registry: tools.NewRegistry(tools.Deps{
			Repo:      a.repo,
			Simulator: a.hub,
			POILimit:  cfg.POI.ToolLimit,
		}),
		Repo:            a.repo,
		Simulator:       a.hub,
		Notifier:        a.hub,
		Config:          cfg.Pipeline,
		POI:             cfg.POI,
		MaxHistoryTurns: cfg.Session.MaxHistoryTurns,
	})

	logx.Info().
		Str("env", cfg.Env.String()).
		Str("session_backend", cfg.Session.Backend).
		Str("database", cfg.Database.Driver).
		Str("llm", completer.Provider()).
		Msg("application wired")
	return a, nil
}

func (a *app) Close() error {
	var err error
	if a.rdb != nil {
		err = multierr.Append(err, a.rdb.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, database.Close(a.db))
	}
	return err
}
