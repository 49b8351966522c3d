package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Wallet activity indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Poll chain events and explorer history and synthesize wallet activities",
		RunE:  runSync,
	}

	syncCmd.Flags().StringSlice("rpc", nil, "RPC URL per network (network=url, comma-separated)")
	syncCmd.Flags().StringSlice("networks", nil, "enabled networks, defaults to every network with an RPC URL")
	syncCmd.Flags().String("wallet", "", "wallet address")
	syncCmd.Flags().String("assets", "", "YAML file with the token list and card scripts")
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN, in-memory storage when empty")
	syncCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path when running without Postgres")
	syncCmd.Flags().String("out", "./data/transactions.jsonl", "transaction JSONL path when running without Postgres")
	syncCmd.Flags().Duration("poll-interval", 15*time.Second, "chain polling interval")
	syncCmd.Flags().Uint64("from", 0, "first block to poll when no checkpoint exists")
	syncCmd.Flags().Uint64("batch-size", 2000, "blocks per log query")
	syncCmd.Flags().Int("max-retries", 5, "maximum retry attempts per RPC call")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	syncCmd.Flags().StringSlice("explorer-url", nil, "explorer API URL per network (network=url, comma-separated)")
	syncCmd.Flags().String("explorer-key", "", "explorer API key")
	syncCmd.Flags().Float64("explorer-rps", 4, "explorer requests per second")
	syncCmd.Flags().Int("page-size", 1000, "explorer transfers per page")
	syncCmd.Flags().Int("max-pages", 100, "explorer pages per sync cycle")
	syncCmd.Flags().Duration("history-interval", time.Minute, "explorer sync interval")
	syncCmd.Flags().Int("workers", 4, "concurrent event queries and contract polls")
	syncCmd.Flags().String("metrics-addr", "", "address serving /metrics and /health, disabled when empty")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(syncCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch a wallet's transfer history from a block explorer",
		RunE:  runHistory,
	}

	historyCmd.Flags().String("explorer-url", "", "explorer API URL")
	historyCmd.Flags().String("explorer-key", "", "explorer API key")
	historyCmd.Flags().Float64("explorer-rps", 4, "explorer requests per second")
	historyCmd.Flags().Duration("timeout", 15*time.Second, "explorer request timeout")
	historyCmd.Flags().String("wallet", "", "wallet address")
	historyCmd.Flags().Uint64("network", 1, "network (chain id) of the explorer")
	historyCmd.Flags().Uint64("start-block", 0, "first block when no checkpoint exists")
	historyCmd.Flags().Int("page-size", 1000, "transfers per page")
	historyCmd.Flags().Int("max-pages", 100, "maximum pages per kind")
	historyCmd.Flags().String("out", "./data/transactions.jsonl", "output JSONL path when running without Postgres")
	historyCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	historyCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path when running without Postgres")
	historyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(historyCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete stored activities and sync checkpoints",
		RunE:  runReset,
	}

	resetCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	resetCmd.Flags().String("checkpoint", "", "checkpoint file to remove")
	resetCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(resetCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
