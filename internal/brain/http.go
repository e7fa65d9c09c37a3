package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/memory"
	"github.com/antoniostano/airis/internal/reliability"
)

// HTTPAdapter forwards requests to a model-gateway HTTP endpoint.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAdapter(baseURL string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPAdapter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type chatResponseWire struct {
	Text        string          `json:"text"`
	MemoryItems json.RawMessage `json:"memory_items,omitempty"`
}

type extractResponseWire struct {
	MemoryItems json.RawMessage `json:"memory_items"`
}

func (a *HTTPAdapter) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var wire chatResponseWire
	if err := a.post(ctx, "/v1/chat", req, &wire); err != nil {
		return ChatResponse{}, err
	}

	items, err := ParseMemoryPayload(wire.MemoryItems)
	if err != nil {
		// Text is still usable; the malformed payload is the caller's
		// signal to discard the inline extraction.
		return ChatResponse{Text: wire.Text}, err
	}
	return ChatResponse{Text: wire.Text, MemoryItems: items}, nil
}

func (a *HTTPAdapter) ExtractMemories(ctx context.Context, snap convo.Snapshot) ([]memory.Record, error) {
	payload := struct {
		Turns           []convo.Turn `json:"turns"`
		MemorySummaries []string     `json:"memory_summaries,omitempty"`
		TakenAt         time.Time    `json:"taken_at"`
	}{
		Turns:           snap.Turns(),
		MemorySummaries: snap.Memories(),
		TakenAt:         snap.TakenAt(),
	}

	var wire extractResponseWire
	if err := a.post(ctx, "/v1/extract", payload, &wire); err != nil {
		return nil, err
	}
	return ParseMemoryPayload(wire.MemoryItems)
}

func (a *HTTPAdapter) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &reliability.HTTPError{
			Status: res.StatusCode,
			Detail: strings.TrimSpace(string(msg)),
		}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
