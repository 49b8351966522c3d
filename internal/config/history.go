package config

import (
	"time"

	"github.com/spf13/pflag"
)

// HistoryConfig holds configuration for the history command.
type HistoryConfig struct {
	ExplorerURL string
	ExplorerKey string
	ExplorerRPS float64
	Timeout     time.Duration
	Wallet      string
	Network     uint64
	StartBlock  uint64
	PageSize    int
	MaxPages    int
	Out         string
	PGDSN       string
	Checkpoint  string
	LogLevel    string
}

// LoadHistory merges config file, environment variables, and flags into HistoryConfig.
func LoadHistory(cfgFile string, flags *pflag.FlagSet) (HistoryConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"network":      uint64(1),
		"explorer-rps": 4.0,
		"timeout":      15 * time.Second,
		"page-size":    1000,
		"max-pages":    100,
		"out":          "./data/transactions.jsonl",
		"checkpoint":   "./data/checkpoint.json",
		"log-level":    "info",
	})
	if err != nil {
		return HistoryConfig{}, err
	}

	return HistoryConfig{
		ExplorerURL: v.GetString("explorer-url"),
		ExplorerKey: v.GetString("explorer-key"),
		ExplorerRPS: v.GetFloat64("explorer-rps"),
		Timeout:     v.GetDuration("timeout"),
		Wallet:      v.GetString("wallet"),
		Network:     v.GetUint64("network"),
		StartBlock:  v.GetUint64("start-block"),
		PageSize:    v.GetInt("page-size"),
		MaxPages:    v.GetInt("max-pages"),
		Out:         v.GetString("out"),
		PGDSN:       v.GetString("pg-dsn"),
		Checkpoint:  v.GetString("checkpoint"),
		LogLevel:    v.GetString("log-level"),
	}, nil
}
