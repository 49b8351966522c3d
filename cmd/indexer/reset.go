package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"activityScope/internal/config"
	"activityScope/internal/storage"
	"activityScope/internal/storage/postgres"
)

func runReset(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReset(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" && cfg.Checkpoint == "" {
		return fmt.Errorf("pg dsn or checkpoint file is required")
	}

	ctx := context.Background()
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		activities := storage.NewActivityStore(store, logger)
		defer activities.Close()
		if err := activities.ResetAll(ctx); err != nil {
			return err
		}
		if err := store.ResetState(ctx); err != nil {
			return err
		}
		logger.Info("postgres reset", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	}

	if cfg.Checkpoint != "" {
		if err := os.Remove(cfg.Checkpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove checkpoint: %w", err)
		}
		logger.Info("checkpoint removed", zap.String("path", cfg.Checkpoint))
	}
	return nil
}
