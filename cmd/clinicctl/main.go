// Command clinicctl runs maintenance tasks directly against a clinic store:
// seeding, backups, exports and retention cleanup.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"clinic-admin-api/internal/config"
	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/logging"
	"clinic-admin-api/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	backend kv.Backend
	store   *store.Store
}

func (a *app) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

// open loads configuration and opens the configured store.
func open(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if d, _ := cmd.Flags().GetString("driver"); d != "" {
		cfg.StoreDriver = kv.Driver(d)
	}
	if d, _ := cmd.Flags().GetString("dsn"); d != "" {
		cfg.StoreDSN = d
	}
	logger, err := logging.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel, false)
	if err != nil {
		return nil, err
	}
	backend, err := cfg.Backend(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		store:   store.New(backend, store.WithLogger(logger)),
	}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Maintain a clinic admin store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("driver", "", "store driver (memory, dir, sqlite, postgres); overrides STORE_DRIVER")
	root.PersistentFlags().String("dsn", "", "store location; overrides STORE_DSN")

	root.AddCommand(
		newSeedCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newBackupsCmd(),
		newExportCmd(),
		newCleanupCmd(),
	)
	return root
}
