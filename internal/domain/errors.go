package domain

import (
	"errors"
	"fmt"
)

// External error vocabulary. The orchestrator is the only producer; the
// presentation layer maps these to user-facing wording.
var (
	ErrUnavailable = errors.New("rate unavailable")
	ErrInvalid     = errors.New("invalid rate request")
	ErrDegraded    = errors.New("rate service degraded")
)

// Internal sentinels.
var (
	ErrCircuitOpen      = errors.New("upstream circuit open")
	ErrSymbolNotFound   = errors.New("symbol not listed upstream")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// ValidationError marks malformed or out-of-range input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamKind classifies an upstream failure for retry purposes.
type UpstreamKind int

const (
	// UpstreamClient: the request itself was rejected (4xx). Not retried.
	UpstreamClient UpstreamKind = iota
	// UpstreamServer: 5xx, malformed body, or api-level failure. Retried.
	UpstreamServer
	// UpstreamRateLimit: throttling signal (429). Retried with backoff.
	UpstreamRateLimit
	// UpstreamNetwork: timeout or transport failure. Retried.
	UpstreamNetwork
)

func (k UpstreamKind) String() string {
	switch k {
	case UpstreamClient:
		return "client"
	case UpstreamServer:
		return "server"
	case UpstreamRateLimit:
		return "rate_limit"
	case UpstreamNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// UpstreamError is a typed failure from the pricing API.
type UpstreamError struct {
	Kind   UpstreamKind
	Status int // HTTP status when applicable, 0 otherwise
	Msg    string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s error (http %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, e.Msg)
}

// Retryable reports whether the retry policy may re-attempt the request.
func (e *UpstreamError) Retryable() bool {
	return e.Kind != UpstreamClient
}
