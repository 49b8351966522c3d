package config

import "github.com/spf13/pflag"

// ResetConfig holds configuration for the reset command.
type ResetConfig struct {
	PGDSN      string
	Checkpoint string
	LogLevel   string
}

// LoadReset merges config file, environment variables, and flags into ResetConfig.
func LoadReset(cfgFile string, flags *pflag.FlagSet) (ResetConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"log-level": "info",
	})
	if err != nil {
		return ResetConfig{}, err
	}

	return ResetConfig{
		PGDSN:      v.GetString("pg-dsn"),
		Checkpoint: v.GetString("checkpoint"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}
