package brain

import (
	"context"
	"errors"
	"fmt"

	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/memory"
)

// FallbackAdapter attempts a primary adapter first and falls back on error.
// Context cancellation and malformed payloads are not retried on the
// secondary: the first means the caller gave up, the second means the model
// answered and its answer was bad.
type FallbackAdapter struct {
	primary  Adapter
	fallback Adapter
}

func NewFallbackAdapter(primary, fallback Adapter) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, fallback: fallback}
}

func (a *FallbackAdapter) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	resp, err := a.primary.Chat(ctx, req)
	if err == nil || !shouldFallBack(err) {
		return resp, err
	}
	fallbackResp, fallbackErr := a.fallback.Chat(ctx, req)
	if fallbackErr != nil {
		return ChatResponse{}, fmt.Errorf("primary adapter error: %w; fallback adapter error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

func (a *FallbackAdapter) ExtractMemories(ctx context.Context, snap convo.Snapshot) ([]memory.Record, error) {
	items, err := a.primary.ExtractMemories(ctx, snap)
	if err == nil || !shouldFallBack(err) {
		return items, err
	}
	fallbackItems, fallbackErr := a.fallback.ExtractMemories(ctx, snap)
	if fallbackErr != nil {
		return nil, fmt.Errorf("primary adapter error: %w; fallback adapter error: %v", err, fallbackErr)
	}
	return fallbackItems, nil
}

func shouldFallBack(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedPayload) {
		return false
	}
	return true
}
