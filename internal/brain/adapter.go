package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/memory"
)

// ChatRequest is the normalized prompt unit sent to the model: the snapshot's
// ordered turns, the rendered core-memory summaries, and the current time.
type ChatRequest struct {
	Turns           []convo.Turn `json:"turns"`
	MemorySummaries []string     `json:"memory_summaries,omitempty"`
	Now             time.Time    `json:"now"`
	Persona         string       `json:"persona,omitempty"`
	TaskPrompt      string       `json:"task_prompt,omitempty"`
}

// ChatResponse carries the assistant text plus any memory items the model
// volunteered through its function-call channel.
type ChatResponse struct {
	Text        string
	MemoryItems []memory.Record
}

// Adapter bridges the orchestration core with the language-model backend.
type Adapter interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ExtractMemories(ctx context.Context, snap convo.Snapshot) ([]memory.Record, error)
}

// ErrMalformedPayload marks a function-call payload the model produced that
// does not match the wire schema. The caller discards the attempt.
var ErrMalformedPayload = errors.New("brain: malformed function-call payload")

// Config controls adapter construction. FallbackURL, when set, names a
// secondary backend tried after retryable primary failures.
type Config struct {
	Mode        string
	HTTPURL     string
	FallbackURL string
	Persona     string
	Timeout     time.Duration
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return newHTTPWithFallback(cfg), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return newHTTPWithFallback(cfg), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain adapter mode %q", cfg.Mode)
	}
}

func newHTTPWithFallback(cfg Config) Adapter {
	primary := NewHTTPAdapter(cfg.HTTPURL, cfg.Timeout)
	if strings.TrimSpace(cfg.FallbackURL) == "" {
		return primary
	}
	return NewFallbackAdapter(primary, NewHTTPAdapter(cfg.FallbackURL, cfg.Timeout))
}
