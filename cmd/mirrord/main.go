// Package main is the entrypoint for service-mirror (binary name "mirrord").
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/service-mirror/internal/config"
	"github.com/morezero/service-mirror/internal/server"
	"github.com/morezero/service-mirror/pkg/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("mirrord: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mirrord",
		Short: "Mirror a runtime's services, state and status over COMMS",
		Long: `mirrord connects to a runtime over COMMS, keeps a registry of its live
services with a mirrored state per service, aggregates status events and
serves the result over HTTP.

Running mirrord without a command is the same as "mirrord serve".

Environment: COMMS_URL, RUNTIME_NAME, COMMS_CODEC, MIRROR_PROFILE_FILE,
DATABASE_URL (optional journal), MIGRATION_PATH, HTTP_ADDR/HTTP_PORT, LOG_LEVEL.`,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return server.Run()
		},
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEnsureDBCmd(),
		newSendCmd(),
		newQueryCmd(),
		newJournalCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the observer (COMMS, HTTP, optional journal)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return server.Run()
		},
	}
}

// loadConfig loads configuration and installs the logger for one-shot commands.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	return cfg, nil
}

// openPool validates DB config and connects.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}
