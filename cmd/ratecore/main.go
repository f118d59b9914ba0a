package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratecore/internal/application/port"
	"ratecore/internal/application/service"
	"ratecore/internal/domain"
	"ratecore/internal/infrastructure/cache"
	"ratecore/internal/infrastructure/config"
	"ratecore/internal/infrastructure/logger"
	"ratecore/internal/infrastructure/metrics"
	redisstore "ratecore/internal/infrastructure/storage/redis"
	"ratecore/internal/infrastructure/upstream"
	"ratecore/internal/interfaces/console"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	pair := flag.String("pair", "", "price one pair (BASE/QUOTE) and exit")
	side := flag.String("side", "buy", "direction for -pair: buy or sell")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	prom := metrics.New(registry)

	store, err := redisstore.Connect(ctx, redisstore.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis connect failed")
	}
	defer store.Close()

	rateCache := cache.New(store, cache.Config{
		Prefix:     cfg.Cache.KeyPrefix,
		RateTTL:    cfg.RateTTL(),
		HotTTLCeil: cfg.HotTTLCeiling(),
		HotHits:    uint64(cfg.Cache.HotHitThreshold),
	}, prom)

	client := upstream.NewClient(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.UpstreamTimeout(),
		Retry: upstream.RetryPolicy{
			MaxRetries: cfg.Upstream.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay(),
			Factor:     cfg.Upstream.BackoffFactor,
		},
		BreakerThreshold: cfg.Upstream.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.BreakerTimeout(),
		RateLimitPerSec:  cfg.Upstream.RateLimitPerSec,
		RateLimitBurst:   cfg.Upstream.RateLimitBurst,
	}, prom)

	markupCfg, err := cfg.MarkupConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("markup table invalid")
	}
	svc := service.NewRateService(client, rateCache, service.NewMarkupEngine(), markupCfg)
	sink := console.NewSink()

	// One-shot operator query: price a single pair and exit.
	if *pair != "" {
		if err := priceOnce(ctx, svc, sink, *pair, *side); err != nil {
			log.Fatal().Err(err).Str("pair", *pair).Msg("price query failed")
		}
		return
	}

	srv := serveOps(cfg.Metrics.ListenAddr, registry, svc)

	log.Info().
		Str("config", *configPath).
		Str("upstream", cfg.Upstream.BaseURL).
		Str("redis", cfg.Redis.Addr).
		Str("ops_addr", cfg.Metrics.ListenAddr).
		Msg("ratecore started")

	if cfg.App.WarmEveryMin > 0 {
		runWarmLoop(ctx, svc, time.Duration(cfg.App.WarmEveryMin)*time.Minute)
	} else {
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown failed")
	}
	log.Info().Msg("ratecore stopped")
}

func priceOnce(ctx context.Context, svc *service.RateService, sink port.QuoteSink, pair, side string) error {
	sym, err := domain.ParseSymbol(pair)
	if err != nil {
		return err
	}
	dir, err := domain.ParseDirection(side)
	if err != nil {
		return err
	}
	quote, err := svc.EffectivePrice(ctx, sym, dir)
	if err != nil {
		return err
	}
	return sink.Publish(ctx, quote)
}

// serveOps exposes /metrics and /healthz on the ops listener.
func serveOps(addr string, registry *prometheus.Registry, svc *service.RateService) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Health(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("degraded"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("ops server exited")
		}
	}()
	return srv
}

// runWarmLoop refreshes the full rate list on a fixed interval until ctx ends.
// An immediate first pass primes the cache before any request arrives.
func runWarmLoop(ctx context.Context, svc *service.RateService, every time.Duration) {
	warm := func() {
		n, err := svc.WarmCache(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("cache warm failed")
			return
		}
		log.Info().Int("quotes", n).Msg("cache warmed")
	}
	warm()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			warm()
		}
	}
}
