package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("cancellation is not retryable")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("timeout should be retryable")
	}
	if !IsRetryable(fmt.Errorf("wrap: %w", &HTTPError{Status: 503})) {
		t.Fatalf("wrapped 503 should be retryable")
	}
	if IsRetryable(fmt.Errorf("wrap: %w", &HTTPError{Status: 400})) {
		t.Fatalf("wrapped 400 should not be retryable")
	}
	if !IsRetryable(errors.New("connection refused")) {
		t.Fatalf("generic network error defaults to retryable")
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	limit := time.Second
	if got := ExponentialBackoff(0, base, limit); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, limit); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", got)
	}
	if got := ExponentialBackoff(10, base, limit); got != limit {
		t.Fatalf("attempt 10 = %v, want capped at %v", got, limit)
	}
}
