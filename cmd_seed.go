package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taxi-assistant/server/internal/agent/repo"
	logx "github.com/taxi-assistant/server/pkg/logger"
	"github.com/taxi-assistant/server/pkg/database"
)

func newSeedCmd(cfg *AppConfig) *cobra.Command {
	var (
		fixturesPath string
		ifEmpty      bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the POI knowledge base into the database",
		Long: `Load the POI knowledge base into the database.

By default the embedded fixtures replace every stored POI, user and policy.

Examples:
  taxi-assistant seed
  taxi-assistant seed --if-empty
  taxi-assistant seed --fixtures ./palermo.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := repo.DefaultFixtures()
			if fixturesPath != "" {
				data, readErr := os.ReadFile(fixturesPath)
				if readErr != nil {
					return fmt.Errorf("failed to read fixtures: %w", readErr)
				}
				fixtures, err = repo.ParseFixtures(data)
			}
			if err != nil {
				return err
			}

			db, err := cfg.Database.Open()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			if ifEmpty {
				seeded, err := repo.SeedIfEmpty(cmd.Context(), db, fixtures)
				if err != nil {
					return err
				}
				logx.Info().Bool("seeded", seeded).Msg("seed finished")
				return nil
			}
			return repo.Seed(cmd.Context(), db, fixtures)
		},
	}
	cmd.Flags().StringVar(&fixturesPath, "fixtures", "", "YAML fixtures file (default: embedded knowledge base)")
	cmd.Flags().BoolVar(&ifEmpty, "if-empty", false, "Seed only when no POI is stored")
	return cmd
}
