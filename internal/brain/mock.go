package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/memory"
)

// MockAdapter produces deterministic local replies when no model backend is
// configured. It never emits memory items.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	default:
	}

	base := ""
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Speaker == convo.SpeakerUser {
			base = strings.TrimSpace(req.Turns[i].Text)
			break
		}
	}
	if base == "" {
		return ChatResponse{Text: "I am listening."}, nil
	}

	if len(req.MemorySummaries) == 0 {
		return ChatResponse{Text: fmt.Sprintf("I heard you: %s", base)}, nil
	}
	last := strings.TrimSpace(req.MemorySummaries[len(req.MemorySummaries)-1])
	return ChatResponse{Text: fmt.Sprintf("I heard you: %s\nI also remember: %s", base, last)}, nil
}

func (a *MockAdapter) ExtractMemories(ctx context.Context, _ convo.Snapshot) ([]memory.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return nil, nil
}
