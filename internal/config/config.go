package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ACTIVITY"

// Config holds configuration for the sync command.
type Config struct {
	RPC             map[uint64]string
	Networks        []string
	Wallet          string
	Assets          string
	PGDSN           string
	Checkpoint      string
	Out             string
	PollInterval    time.Duration
	FromBlock       uint64
	BatchSize       uint64
	MaxRetries      int
	RetryBackoff    time.Duration
	ExplorerURL     map[uint64]string
	ExplorerKey     string
	ExplorerRPS     float64
	PageSize        int
	MaxPages        int
	HistoryInterval time.Duration
	Workers         int
	MetricsAddr     string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"checkpoint":       "./data/checkpoint.json",
		"out":              "./data/transactions.jsonl",
		"poll-interval":    15 * time.Second,
		"batch-size":       uint64(2000),
		"max-retries":      5,
		"retry-backoff":    500 * time.Millisecond,
		"explorer-rps":     4.0,
		"page-size":        1000,
		"max-pages":        100,
		"history-interval": time.Minute,
		"workers":          4,
		"log-level":        "info",
	})
	if err != nil {
		return Config{}, err
	}

	rpc, err := networkMap(getStringMap(v, "rpc"))
	if err != nil {
		return Config{}, fmt.Errorf("parse rpc: %w", err)
	}
	explorers, err := networkMap(getStringMap(v, "explorer-url"))
	if err != nil {
		return Config{}, fmt.Errorf("parse explorer-url: %w", err)
	}

	cfg := Config{
		RPC:             rpc,
		Networks:        getStringSlice(v, "networks"),
		Wallet:          v.GetString("wallet"),
		Assets:          v.GetString("assets"),
		PGDSN:           v.GetString("pg-dsn"),
		Checkpoint:      v.GetString("checkpoint"),
		Out:             v.GetString("out"),
		PollInterval:    v.GetDuration("poll-interval"),
		FromBlock:       v.GetUint64("from"),
		BatchSize:       v.GetUint64("batch-size"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		ExplorerURL:     explorers,
		ExplorerKey:     v.GetString("explorer-key"),
		ExplorerRPS:     v.GetFloat64("explorer-rps"),
		PageSize:        v.GetInt("page-size"),
		MaxPages:        v.GetInt("max-pages"),
		HistoryInterval: v.GetDuration("history-interval"),
		Workers:         v.GetInt("workers"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogLevel:        v.GetString("log-level"),
	}
	if len(cfg.Networks) == 0 {
		for _, network := range sortedNetworks(rpc) {
			cfg.Networks = append(cfg.Networks, strconv.FormatUint(network, 10))
		}
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// networkMap parses "network=value" pairs keyed by chain id.
func networkMap(raw map[string]string) (map[uint64]string, error) {
	out := make(map[uint64]string, len(raw))
	for key, value := range raw {
		network, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q", key)
		}
		out[network] = value
	}
	return out, nil
}

func sortedNetworks(m map[uint64]string) []uint64 {
	out := make([]uint64, 0, len(m))
	for network := range m {
		out = append(out, network)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return parseStringMap(strings.Join(parts, ","))
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
