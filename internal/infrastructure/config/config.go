package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"ratecore/internal/domain"
)

type Config struct {
	App struct {
		LogLevel     string `toml:"log_level"`
		WarmEveryMin int    `toml:"warm_every_min"` // 0 disables the warm loop
	} `toml:"app"`

	Upstream struct {
		BaseURL                  string  `toml:"base_url"`
		TimeoutSec               int     `toml:"timeout_sec"`
		MaxRetries               int     `toml:"max_retries"`
		RetryDelaySec            float64 `toml:"retry_delay_sec"`
		BackoffFactor            float64 `toml:"backoff_factor"`
		CircuitBreakerThreshold  int     `toml:"circuit_breaker_threshold"`
		CircuitBreakerTimeoutSec int     `toml:"circuit_breaker_timeout_sec"`
		RateLimitPerSec          float64 `toml:"rate_limit_per_sec"`
		RateLimitBurst           int     `toml:"rate_limit_burst"`
		APIKey                   string  `toml:"-"` // env only, never in the file
	} `toml:"upstream"`

	Redis struct {
		Addr     string `toml:"addr"`
		DB       int    `toml:"db"`
		Password string `toml:"-"` // env only
	} `toml:"redis"`

	Cache struct {
		KeyPrefix        string `toml:"key_prefix"`
		RateTTLSec       int    `toml:"rate_ttl_sec"`
		HotTTLCeilingSec int    `toml:"hot_ttl_ceiling_sec"`
		HotHitThreshold  int    `toml:"hot_hit_threshold"`
	} `toml:"cache"`

	Markup struct {
		DefaultPercent float64 `toml:"default_percent"`
		Pairs          []Pair  `toml:"pairs"`
	} `toml:"markup"`

	Metrics struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"metrics"`
}

type Pair struct {
	Base      string  `toml:"base"`
	Quote     string  `toml:"quote"`
	Percent   float64 `toml:"percent"`
	MinAmount float64 `toml:"min_amount"`
	MaxAmount float64 `toml:"max_amount"`
	Disabled  bool    `toml:"disabled"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg, md)
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Upstream.TimeoutSec <= 0 {
		cfg.Upstream.TimeoutSec = 30
	}
	if cfg.Upstream.MaxRetries <= 0 {
		cfg.Upstream.MaxRetries = 3
	}
	if cfg.Upstream.RetryDelaySec <= 0 {
		cfg.Upstream.RetryDelaySec = 1.0
	}
	if cfg.Upstream.BackoffFactor < 1.0 {
		cfg.Upstream.BackoffFactor = 2.0
	}
	if cfg.Upstream.CircuitBreakerThreshold <= 0 {
		cfg.Upstream.CircuitBreakerThreshold = 5
	}
	if cfg.Upstream.CircuitBreakerTimeoutSec <= 0 {
		cfg.Upstream.CircuitBreakerTimeoutSec = 60
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "ratecore"
	}
	if cfg.Cache.RateTTLSec <= 0 {
		cfg.Cache.RateTTLSec = 300
	}
	// Zero is a legitimate default markup; only fill in when the key is
	// absent from the file.
	if !md.IsDefined("markup", "default_percent") {
		cfg.Markup.DefaultPercent = 2.5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RATECORE_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
}

func validate(cfg *Config) error {
	base := strings.TrimSpace(cfg.Upstream.BaseURL)
	if base == "" {
		return errors.New("upstream.base_url is empty")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return errors.New("upstream.base_url must start with http:// or https://")
	}
	cfg.Upstream.BaseURL = strings.TrimRight(base, "/")

	if cfg.Markup.DefaultPercent < 0 {
		return errors.New("markup.default_percent must not be negative")
	}
	if cfg.Cache.HotHitThreshold < 0 {
		return errors.New("cache.hot_hit_threshold must not be negative")
	}

	for i, p := range cfg.Markup.Pairs {
		if _, err := domain.NewSymbol(p.Base, p.Quote); err != nil {
			return fmt.Errorf("markup.pairs[%d]: %w", i, err)
		}
		if p.Percent < 0 {
			return fmt.Errorf("markup.pairs[%d]: negative markup", i)
		}
		if p.MinAmount > 0 && p.MaxAmount > 0 && p.MinAmount > p.MaxAmount {
			return fmt.Errorf("markup.pairs[%d]: min_amount above max_amount", i)
		}
	}
	return nil
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSec) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Upstream.RetryDelaySec * float64(time.Second))
}

func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Upstream.CircuitBreakerTimeoutSec) * time.Second
}

func (c *Config) RateTTL() time.Duration {
	return time.Duration(c.Cache.RateTTLSec) * time.Second
}

func (c *Config) HotTTLCeiling() time.Duration {
	return time.Duration(c.Cache.HotTTLCeilingSec) * time.Second
}

// MarkupConfig builds the immutable markup table used by the engine.
func (c *Config) MarkupConfig() (domain.MarkupConfig, error) {
	out := domain.MarkupConfig{
		DefaultPercent: decimal.NewFromFloat(c.Markup.DefaultPercent),
		Pairs:          make(map[domain.Symbol]domain.PairMarkup, len(c.Markup.Pairs)),
	}
	for _, p := range c.Markup.Pairs {
		sym, err := domain.NewSymbol(p.Base, p.Quote)
		if err != nil {
			return domain.MarkupConfig{}, err
		}
		out.Pairs[sym] = domain.PairMarkup{
			Percent:   decimal.NewFromFloat(p.Percent),
			MinAmount: decimal.NewFromFloat(p.MinAmount),
			MaxAmount: decimal.NewFromFloat(p.MaxAmount),
			Disabled:  p.Disabled,
		}
	}
	return out, nil
}
