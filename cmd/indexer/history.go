package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"activityScope/internal/config"
	"activityScope/internal/history"
	"activityScope/internal/indexer"
	"activityScope/internal/storage"
)

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadHistory(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.ExplorerURL == "" {
		return fmt.Errorf("explorer url is required")
	}
	wallet, err := indexer.ParseAddress(cfg.Wallet)
	if err != nil {
		return fmt.Errorf("parse wallet: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackends(ctx, cfg.PGDSN, cfg.Checkpoint, cfg.Out)
	if err != nil {
		return err
	}
	defer be.close()

	transactionStore := storage.NewTransactionStore(be.sink, logger)
	defer transactionStore.Close()

	explorer := history.NewExplorer(history.ExplorerConfig{
		BaseURL:  cfg.ExplorerURL,
		APIKey:   cfg.ExplorerKey,
		Wallet:   wallet,
		Network:  cfg.Network,
		PageSize: cfg.PageSize,
		MaxPages: cfg.MaxPages,
	}, history.NewHTTPTransport(cfg.Timeout, cfg.ExplorerRPS), logger)
	syncer := history.NewSyncer(explorer, transactionStore, be.checkpoints, cfg.StartBlock, logger)

	logger.Info("history start",
		zap.String("wallet", wallet.Hex()),
		zap.Uint64("network", cfg.Network),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Int("max_pages", cfg.MaxPages),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	if err := syncer.Sync(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	records, err := transactionStore.Transactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return err
	}
	logger.Info("history complete", zap.Int("transactions", len(records)))
	return nil
}
