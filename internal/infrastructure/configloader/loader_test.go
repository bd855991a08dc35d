package configloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("SERVER_PORT", "")
	path := writeConfig(t, "server:\n  port: \"9090\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != ":9090" {
		t.Fatalf("expected port :9090, got %s", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("expected memory backend without redis url, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.PortfolioTTLMillis != 300000 {
		t.Fatalf("expected 5 minute portfolio ttl, got %d", cfg.Cache.PortfolioTTLMillis)
	}
	if cfg.Zerion.RateLimit.Window() != 500*time.Millisecond || cfg.Zerion.RateLimit.MaxCalls != 10 {
		t.Fatalf("unexpected zerion window: %+v", cfg.Zerion.RateLimit)
	}
	if cfg.Zerion.Retry.MaxRetries != 5 || cfg.Zerion.Retry.Backoff != "exponential" || cfg.Zerion.Retry.BaseDelay() != time.Second {
		t.Fatalf("unexpected zerion retry: %+v", cfg.Zerion.Retry)
	}
	if cfg.Etherscan.MinIntervalMillis != 200 || cfg.Etherscan.Retry.BaseDelay() != 2*time.Second {
		t.Fatalf("unexpected etherscan defaults: %+v", cfg.Etherscan)
	}
	if cfg.Alchemy.Retry.Backoff != "linear" || cfg.Alchemy.MaxNetworksPerRequest != 5 {
		t.Fatalf("unexpected alchemy defaults: %+v", cfg.Alchemy)
	}
	if cfg.TokenList.TTLMinutes != 1440 {
		t.Fatalf("expected 24h token list ttl, got %d", cfg.TokenList.TTLMinutes)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ZERION_API_KEY", "zk_env")
	t.Setenv("ALCHEMY_API_KEY", "alk_env")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TRACING_ENABLED", "true")

	path := writeConfig(t, "zerion:\n  apiKey: from-file\nlogging:\n  level: debug\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Zerion.APIKey != "zk_env" || cfg.Alchemy.APIKey != "alk_env" {
		t.Fatalf("env should override api keys: %+v %+v", cfg.Zerion, cfg.Alchemy)
	}
	if cfg.Cache.Backend != "redis" {
		t.Fatalf("redis url should select redis backend, got %s", cfg.Cache.Backend)
	}
	if !cfg.Tracing.Enabled {
		t.Fatalf("tracing should be enabled from env")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected file log level to survive, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing default config should not be fatal: %v", err)
	}
	if cfg.Server.Port != ":8080" {
		t.Fatalf("expected default port, got %s", cfg.Server.Port)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	if _, err := Load(writeConfig(t, "cache:\n  backend: redis\n")); err == nil {
		t.Fatalf("expected error for redis backend without url")
	}
	if _, err := Load(writeConfig(t, "zerion:\n  retry:\n    backoff: fibonacci\n")); err == nil {
		t.Fatalf("expected error for unknown backoff")
	}
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
}
