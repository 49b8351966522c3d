package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadFromFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	content := []byte(`
wallet: "0x00000000000000000000000000000000000000aa"
rpc:
  "1": https://eth.example
  "137": https://polygon.example
explorer-url: "1=https://api.etherscan.example/api"
max-pages: 5
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("sync", pflag.ContinueOnError)
	flags.Duration("poll-interval", 15*time.Second, "")
	if err := flags.Parse([]string{"--poll-interval=3s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wantRPC := map[uint64]string{1: "https://eth.example", 137: "https://polygon.example"}
	if !reflect.DeepEqual(cfg.RPC, wantRPC) {
		t.Fatalf("rpc mismatch: %v", cfg.RPC)
	}
	if !reflect.DeepEqual(cfg.Networks, []string{"1", "137"}) {
		t.Fatalf("networks should default to the rpc networks: %v", cfg.Networks)
	}
	if cfg.ExplorerURL[1] != "https://api.etherscan.example/api" {
		t.Fatalf("explorer url mismatch: %v", cfg.ExplorerURL)
	}
	if cfg.MaxPages != 5 || cfg.PageSize != 1000 {
		t.Fatalf("unexpected paging: %d %d", cfg.MaxPages, cfg.PageSize)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("flag should override default: %s", cfg.PollInterval)
	}
}

func TestLoadRejectsBadNetworkKey(t *testing.T) {
	t.Setenv("ACTIVITY_RPC", "mainnet=https://eth.example")
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("log-level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, nil); err == nil {
		t.Fatalf("expected an error for a non-numeric network")
	}
}

func TestLoadHistoryEnv(t *testing.T) {
	t.Setenv("ACTIVITY_EXPLORER_URL", "https://api.example/api")
	t.Setenv("ACTIVITY_START_BLOCK", "1200")
	dir := t.TempDir()
	path := filepath.Join(dir, "history.yaml")
	if err := os.WriteFile(path, []byte("network: 137\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadHistory(path, nil)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if cfg.ExplorerURL != "https://api.example/api" || cfg.StartBlock != 1200 || cfg.Network != 137 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MaxPages != 100 {
		t.Fatalf("expected default max pages, got %d", cfg.MaxPages)
	}
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap(" 1 = a , broken, 2=b,=c")
	want := map[string]string{"1": "a", "2": "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
