package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ratecore/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[upstream]
base_url = "https://api.example.com/"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.BaseURL != "https://api.example.com" {
		t.Errorf("base_url not normalized: %q", cfg.Upstream.BaseURL)
	}
	if cfg.UpstreamTimeout() != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.UpstreamTimeout())
	}
	if cfg.Upstream.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want 3", cfg.Upstream.MaxRetries)
	}
	if cfg.Upstream.CircuitBreakerThreshold != 5 {
		t.Errorf("breaker threshold = %d, want 5", cfg.Upstream.CircuitBreakerThreshold)
	}
	if cfg.RateTTL() != 5*time.Minute {
		t.Errorf("rate ttl = %v, want 5m", cfg.RateTTL())
	}
	if cfg.Markup.DefaultPercent != 2.5 {
		t.Errorf("default percent = %v, want 2.5", cfg.Markup.DefaultPercent)
	}
	if cfg.Cache.KeyPrefix != "ratecore" {
		t.Errorf("key prefix = %q", cfg.Cache.KeyPrefix)
	}
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
[app]
log_level = "debug"
warm_every_min = 5

[upstream]
base_url = "https://api.example.com"
timeout_sec = 10
max_retries = 2
retry_delay_sec = 0.5
backoff_factor = 3.0
rate_limit_per_sec = 8.0
rate_limit_burst = 4

[redis]
addr = "redis:6379"
db = 2

[cache]
key_prefix = "rates"
rate_ttl_sec = 120
hot_ttl_ceiling_sec = 600
hot_hit_threshold = 20

[markup]
default_percent = 1.5

[[markup.pairs]]
base = "BTC"
quote = "USDT"
percent = 0.8
min_amount = 10.0
max_amount = 50000.0

[metrics]
listen_addr = ":9100"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RetryBaseDelay() != 500*time.Millisecond {
		t.Errorf("retry delay = %v, want 500ms", cfg.RetryBaseDelay())
	}
	mc, err := cfg.MarkupConfig()
	if err != nil {
		t.Fatalf("MarkupConfig: %v", err)
	}
	sym := domain.Symbol{Base: "BTC", Quote: "USDT"}
	pm, ok := mc.Pairs[sym]
	if !ok {
		t.Fatal("BTC/USDT pair missing from markup table")
	}
	if pm.Percent.String() != "0.8" {
		t.Errorf("pair percent = %s, want 0.8", pm.Percent)
	}
	if !mc.PercentFor(sym).Equal(pm.Percent) {
		t.Error("PercentFor does not resolve the configured pair")
	}
}

func TestLoadKeepsExplicitZeroMarkup(t *testing.T) {
	path := writeConfig(t, `
[upstream]
base_url = "https://api.example.com"

[markup]
default_percent = 0.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Markup.DefaultPercent != 0 {
		t.Errorf("explicit zero markup must survive, got %v", cfg.Markup.DefaultPercent)
	}
	mc, err := cfg.MarkupConfig()
	if err != nil {
		t.Fatalf("MarkupConfig: %v", err)
	}
	if !mc.DefaultPercent.IsZero() {
		t.Errorf("markup table default = %s, want 0", mc.DefaultPercent)
	}
}

func TestLoadRejectsNegativeValues(t *testing.T) {
	for _, body := range []string{
		"[upstream]\nbase_url = \"https://api.example.com\"\n[markup]\ndefault_percent = -1.0\n",
		"[upstream]\nbase_url = \"https://api.example.com\"\n[cache]\nhot_hit_threshold = -5\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	for _, body := range []string{
		"[upstream]\nbase_url = \"\"\n",
		"[upstream]\nbase_url = \"ftp://example.com\"\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}

func TestLoadRejectsBadPair(t *testing.T) {
	path := writeConfig(t, `
[upstream]
base_url = "https://api.example.com"

[[markup.pairs]]
base = "BTC"
quote = "BTC"
percent = 1.0
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for identical base and quote")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("RATECORE_API_KEY", "key-123")
	cfg, err := Load(writeConfig(t, "[upstream]\nbase_url = \"https://api.example.com\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Password != "secret" {
		t.Error("REDIS_PASSWORD not applied")
	}
	if cfg.Upstream.APIKey != "key-123" {
		t.Error("RATECORE_API_KEY not applied")
	}
}
