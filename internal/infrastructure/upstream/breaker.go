package upstream

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"ratecore/internal/domain"
)

// State of the circuit breaker.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker is a global per-client circuit breaker. All transitions are CAS
// based so concurrent requests never serialize on a lock. A sustained outage
// affects every symbol identically, hence one breaker per client, not one
// per symbol.
type Breaker struct {
	threshold int64
	timeout   time.Duration

	state       atomic.Int32
	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanos
	probeStart  atomic.Int64 // unix nanos, when the half-open probe was admitted
}

func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Breaker{threshold: int64(threshold), timeout: timeout}
}

// Allow reports whether a request may proceed. In the open state the first
// caller past the timeout wins the CAS and becomes the single half-open
// probe; everyone else fails fast with ErrCircuitOpen. A probe that never
// reports back (cancelled caller) expires after the timeout and a
// replacement probe is admitted, so the breaker cannot wedge in half-open.
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case StateClosed:
		return nil
	case StateOpen:
		last := time.Unix(0, b.lastFailure.Load())
		if time.Since(last) >= b.timeout {
			// Stamp before the CAS so a stale probeStart from an earlier
			// half-open cycle can never admit a second probe.
			b.probeStart.Store(time.Now().UnixNano())
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				log.Info().Msg("circuit breaker half-open, admitting probe")
				return nil
			}
		}
		return domain.ErrCircuitOpen
	default: // half-open
		start := b.probeStart.Load()
		if time.Since(time.Unix(0, start)) >= b.timeout &&
			b.probeStart.CompareAndSwap(start, time.Now().UnixNano()) {
			log.Info().Msg("circuit breaker probe abandoned, admitting replacement")
			return nil
		}
		return domain.ErrCircuitOpen
	}
}

// RecordSuccess resets the failure counter; a successful half-open probe
// closes the circuit.
func (b *Breaker) RecordSuccess() {
	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
		log.Info().Msg("circuit breaker closed after successful probe")
	}
	b.failures.Store(0)
}

// RecordFailure counts one failed request. A failed half-open probe re-opens
// the circuit and re-arms the timeout; in the closed state reaching the
// threshold opens it.
func (b *Breaker) RecordFailure() {
	b.lastFailure.Store(time.Now().UnixNano())

	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
		log.Warn().Msg("circuit breaker re-opened, probe failed")
		return
	}
	if n := b.failures.Add(1); n >= b.threshold {
		if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
			log.Warn().Int64("failures", n).Msg("circuit breaker opened")
		}
	}
}

// State returns the current state for monitoring.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces the breaker closed. Operator escape hatch.
func (b *Breaker) Reset() {
	b.state.Store(int32(StateClosed))
	b.failures.Store(0)
}
