package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// resetFileConfig points the loader at a temp YAML file (or a missing one) and drops cached values.
func resetFileConfig(t *testing.T, yamlBody string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config-test.yaml")
	if yamlBody != "" {
		if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
			t.Fatalf("write config file: %v", err)
		}
		t.Setenv("CONFIG_FILE", path)
	} else {
		t.Setenv("CONFIG_FILE", "")
		t.Setenv("CONFIG_PHASE", "does-not-exist")
	}

	fileConfig = &runtimeConfig{}
	t.Cleanup(func() { fileConfig = &runtimeConfig{} })
}

func TestLoadAnalyzerConfig_Defaults(t *testing.T) {
	resetFileConfig(t, "")

	cfg, err := LoadAnalyzerConfig()
	if err != nil {
		t.Fatalf("LoadAnalyzerConfig: %v", err)
	}

	if cfg.BatchSize != 100 || cfg.LeaderboardCap != 100 || cfg.ChunkSize != 100 {
		t.Fatalf("unexpected batch sizing: %+v", cfg)
	}
	if cfg.UpdateInterval != 5*time.Second || cfg.RetryBackoff != time.Second {
		t.Fatalf("unexpected loop timing: interval=%s backoff=%s", cfg.UpdateInterval, cfg.RetryBackoff)
	}
	if cfg.Redis.SnapshotTTL != time.Hour || cfg.Redis.URL != defaultRedisURL {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Commitment != rpc.CommitmentConfirmed {
		t.Fatalf("unexpected commitment %q", cfg.Commitment)
	}
	if len(cfg.DEXProgramIDs) != 2 || !cfg.DEXProgramIDs[0].Equals(DefaultRaydiumAMMID) {
		t.Fatalf("unexpected dex programs: %v", cfg.DEXProgramIDs)
	}
	if cfg.TradeAmountDecimals != 9 {
		t.Fatalf("unexpected decimals %d", cfg.TradeAmountDecimals)
	}
	if cfg.MetricsAddr != ":9102" {
		t.Fatalf("unexpected metrics addr %q", cfg.MetricsAddr)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.DBDSN != "" {
		t.Fatalf("optional sinks should be disabled by default: brokers=%v dsn=%q", cfg.KafkaBrokers, cfg.DBDSN)
	}
}

func TestLoadAnalyzerConfig_EnvOverrides(t *testing.T) {
	resetFileConfig(t, "")
	t.Setenv("ANALYZER_BATCH_SIZE", "25")
	t.Setenv("ANALYZER_UPDATE_INTERVAL", "30s")
	t.Setenv("ANALYZER_METRICS_ADDR", "off")
	t.Setenv("SOLANA_COMMITMENT", "finalized")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("ANALYZER_DEX_PROGRAM_IDS", DefaultOrcaSwapID.String()+","+DefaultOrcaSwapID.String())

	cfg, err := LoadAnalyzerConfig()
	if err != nil {
		t.Fatalf("LoadAnalyzerConfig: %v", err)
	}

	if cfg.BatchSize != 25 || cfg.UpdateInterval != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("expected metrics listener disabled, got %q", cfg.MetricsAddr)
	}
	if cfg.Commitment != rpc.CommitmentFinalized {
		t.Fatalf("unexpected commitment %q", cfg.Commitment)
	}
	if strings.Join(cfg.KafkaBrokers, "|") != "a:9092|b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if len(cfg.DEXProgramIDs) != 1 {
		t.Fatalf("expected duplicate program ids to collapse, got %v", cfg.DEXProgramIDs)
	}
}

func TestLoadAnalyzerConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero batch", key: "ANALYZER_BATCH_SIZE", value: "0"},
		{name: "bad duration", key: "ANALYZER_UPDATE_INTERVAL", value: "soon"},
		{name: "bad commitment", key: "SOLANA_COMMITMENT", value: "eventually"},
		{name: "bad pubkey", key: "ANALYZER_WATCH_PROGRAM_ID", value: "not-a-key"},
		{name: "too many decimals", key: "ANALYZER_TRADE_AMOUNT_DECIMALS", value: "30"},
		{name: "max delay below base", key: "ANALYZER_RPC_RETRY_MAX_DELAY", value: "1ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFileConfig(t, "")
			t.Setenv(tt.key, tt.value)

			if _, err := LoadAnalyzerConfig(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadAPIServerConfig_FromYAML(t *testing.T) {
	resetFileConfig(t, `
api_server:
  listen_addr: ":9999"
  allowed_origins:
    - https://a.example
    - https://b.example
  push_interval: 3s
  enable_websocket: false
redis:
  key_prefix: "test:"
snapshot_ttl: 10m
`)
	t.Setenv("API_SERVER_DEFAULT_LIMIT", "20")

	cfg, err := LoadAPIServerConfig()
	if err != nil {
		t.Fatalf("LoadAPIServerConfig: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Fatalf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.PushInterval != 3*time.Second || cfg.EnableWebsocket {
		t.Fatalf("unexpected push settings: interval=%s ws=%v", cfg.PushInterval, cfg.EnableWebsocket)
	}
	if cfg.Redis.KeyPrefix != "test:" || cfg.Redis.SnapshotTTL != 10*time.Minute {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.DefaultLimit != 20 {
		t.Fatalf("env should win over file: %d", cfg.DefaultLimit)
	}

	source, err := CurrentConfigSource()
	if err != nil {
		t.Fatalf("CurrentConfigSource: %v", err)
	}
	if !source.Loaded {
		t.Fatalf("expected yaml source to be marked loaded")
	}
}

func TestLoadAPIServerConfig_ExplicitMissingFile(t *testing.T) {
	resetFileConfig(t, "")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := LoadAPIServerConfig(); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}

func TestNormalizeKeySegment(t *testing.T) {
	tests := map[string]string{
		"redis":          "REDIS",
		"key-prefix":     "KEY_PREFIX",
		"  Snapshot TTL": "SNAPSHOT_TTL",
		"__x__":          "X",
		"":               "",
	}
	for in, want := range tests {
		if got := normalizeKeySegment(in); got != want {
			t.Fatalf("normalizeKeySegment(%q) = %q, want %q", in, got, want)
		}
	}
}
