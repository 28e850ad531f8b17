package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taxi-assistant/server/internal/agent/session"
	"github.com/taxi-assistant/server/internal/transport"
	logx "github.com/taxi-assistant/server/pkg/logger"
)

func newServeCmd(cfg *AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the WebSocket hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *AppConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logx.Warn().Err(err).Msg("failed to close stores")
		}
	}()

	srv := transport.New(transport.Deps{
		Handler:  a.pipeline,
		Catalog:  a.repo,
		Sessions: a.store,
		Locker:   a.locker,
		Hub:      a.hub,
		Config:   cfg.Server,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if mem, ok := a.store.(*session.MemoryStore); ok && cfg.Session.JanitorSchedule != "" {
		g.Go(func() error {
			janitor, err := mem.StartJanitor(cfg.Session.JanitorSchedule)
			if err != nil {
				return err
			}
			<-gctx.Done()
			<-janitor.Stop().Done()
			return nil
		})
	}

	err = g.Wait()
	logx.Info().Msg("server stopped")
	return err
}
