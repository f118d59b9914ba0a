package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ratecore/internal/domain"
	"ratecore/internal/infrastructure/metrics"
)

const ratesPath = "/open/market/rates"

// Config for the upstream pricing API client.
type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	Retry            RetryPolicy
	BreakerThreshold int
	BreakerTimeout   time.Duration
	RateLimitPerSec  float64 // 0 disables client-side limiting
	RateLimitBurst   int
}

// Client is the resilient HTTP client for the upstream pricing API. It owns
// the circuit breaker, the retry policy and the request metrics; no other
// component talks to the upstream directly.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   RetryPolicy
	breaker *Breaker
	limiter *rate.Limiter
	prom    *metrics.Metrics

	total        atomic.Uint64
	succeeded    atomic.Uint64
	failed       atomic.Uint64
	latencyNanos atomic.Int64
}

func NewClient(cfg Config, prom *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   cfg.Retry,
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout),
		limiter: limiter,
		prom:    prom,
	}
}

// FetchAll returns every rate the upstream currently quotes.
func (c *Client) FetchAll(ctx context.Context) ([]domain.RawQuote, error) {
	resp, err := c.request(ctx, ratesPath)
	if err != nil {
		return nil, err
	}
	return resp.toDomain(time.Now()), nil
}

// FetchSymbol returns the rate for one pair. The upstream has no per-symbol
// endpoint, so this is a full fetch plus lookup.
func (c *Client) FetchSymbol(ctx context.Context, sym domain.Symbol) (domain.RawQuote, error) {
	quotes, err := c.FetchAll(ctx)
	if err != nil {
		return domain.RawQuote{}, err
	}
	for _, q := range quotes {
		if q.Symbol == sym {
			return q, nil
		}
	}
	return domain.RawQuote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, sym)
}

// HealthCheck reports whether the upstream answers with a usable response.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.request(ctx, ratesPath)
	if err != nil {
		log.Warn().Err(err).Msg("upstream health check failed")
		return false
	}
	return true
}

// Metrics returns a snapshot of the process-lifetime request counters.
func (c *Client) Metrics() domain.RequestMetrics {
	total := c.total.Load()
	m := domain.RequestMetrics{
		Total:     total,
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
	if total > 0 {
		m.AvgLatency = time.Duration(c.latencyNanos.Load() / int64(total))
	}
	return m
}

// BreakerState exposes the breaker for monitoring.
func (c *Client) BreakerState() State {
	return c.breaker.State()
}

// request runs the retry state machine for one logical request. Each attempt
// feeds the request metrics; the whole request counts as at most one circuit
// breaker failure.
func (c *Client) request(ctx context.Context, path string) (*apiResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		c.prom.IncBreakerRejected()
		return nil, err
	}
	defer c.prom.SetBreakerState(int(c.breaker.State()))

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Jitter(c.retry.Delay(attempt - 1))
			log.Debug().Dur("delay", delay).Int("attempt", attempt).Str("path", path).
				Msg("retrying upstream request")
			// Caller cancellation is not an upstream failure; it does not
			// feed the breaker.
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, path)
		if err == nil {
			c.breaker.RecordSuccess()
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	if !errors.Is(lastErr, context.Canceled) {
		c.breaker.RecordFailure()
	}
	return nil, lastErr
}

// attempt is a single HTTP round trip with failure classification.
func (c *Client) attempt(ctx context.Context, path string) (*apiResponse, error) {
	start := time.Now()
	resp, err := c.do(ctx, path)
	elapsed := time.Since(start)

	ok := err == nil
	c.recordAttempt(ok, elapsed)
	outcome := "success"
	if !ok {
		outcome = classify(err).String()
	}
	c.prom.ObserveUpstream(outcome, elapsed)
	return resp, err
}

func (c *Client) do(ctx context.Context, path string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.UpstreamClient, Msg: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		return nil, &domain.UpstreamError{Kind: domain.UpstreamNetwork, Msg: err.Error()}
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.UpstreamError{Kind: domain.UpstreamRateLimit, Status: httpResp.StatusCode, Msg: "throttled"}
	case httpResp.StatusCode >= 500:
		return nil, &domain.UpstreamError{Kind: domain.UpstreamServer, Status: httpResp.StatusCode, Msg: "server error"}
	case httpResp.StatusCode >= 400:
		return nil, &domain.UpstreamError{Kind: domain.UpstreamClient, Status: httpResp.StatusCode, Msg: "request rejected"}
	}

	var apiResp apiResponse
	dec := json.NewDecoder(httpResp.Body)
	dec.UseNumber()
	if err := dec.Decode(&apiResp); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.UpstreamServer, Status: httpResp.StatusCode, Msg: "malformed body: " + err.Error()}
	}
	if !apiResp.ok() {
		return nil, &domain.UpstreamError{
			Kind:   domain.UpstreamServer,
			Status: httpResp.StatusCode,
			Msg:    fmt.Sprintf("api not working (code=%d, isWorking=%d): %s", apiResp.Code, apiResp.IsWorking, apiResp.Message),
		}
	}
	return &apiResp, nil
}

func (c *Client) recordAttempt(ok bool, elapsed time.Duration) {
	c.total.Add(1)
	c.latencyNanos.Add(int64(elapsed))
	if ok {
		c.succeeded.Add(1)
	} else {
		c.failed.Add(1)
	}
}

func retryable(err error) bool {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return false
}

func classify(err error) domain.UpstreamKind {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return domain.UpstreamNetwork
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
