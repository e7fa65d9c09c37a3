package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind buckets every error the orchestrator can surface.
type FailureKind string

const (
	// TransientExternal covers model/extraction/STT call errors and
	// timeouts. Not retried automatically; source turns stay unseen.
	TransientExternal FailureKind = "transient_external"
	// ResourceContention covers audio-device busy/unavailable states.
	ResourceContention FailureKind = "resource_contention"
	// DataIntegrity covers unreadable or corrupt persisted memory.
	DataIntegrity FailureKind = "data_integrity"
	// ProtocolMismatch covers malformed model function-call payloads.
	ProtocolMismatch FailureKind = "protocol_mismatch"
)

// HTTPError is a non-2xx response from an external boundary.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Detail)
}

// Retryable reports whether the status suggests a later attempt could work.
func (e *HTTPError) Retryable() bool {
	return IsRetryableHTTPStatus(e.Status)
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeMessageType classifies retryable upstream realtime errors.
func IsRetryableRealtimeMessageType(messageType string) bool {
	switch messageType {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err looks worth a later attempt. Context
// cancellation is not: the caller already gave up.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return true
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}
