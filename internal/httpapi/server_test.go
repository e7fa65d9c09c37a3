package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/airis/internal/config"
	"github.com/antoniostano/airis/internal/extraction"
	"github.com/antoniostano/airis/internal/memory"
	"github.com/antoniostano/airis/internal/observability"
	"github.com/antoniostano/airis/internal/protocol"
	"github.com/antoniostano/airis/internal/session"
)

var testMetricsOnce sync.Once
var testMetrics *observability.Metrics

type fakeOrchestrator struct {
	mu         sync.Mutex
	submitted  []protocol.ClientText
	interrupts int
	extracts   int
	extractErr error
	outbound   chan any
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{outbound: make(chan any, 16)}
}

func (f *fakeOrchestrator) SubmitText(text, nickname string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, protocol.ClientText{Text: text, Nickname: nickname})
}

func (f *fakeOrchestrator) Interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
}

func (f *fakeOrchestrator) ExtractNow(context.Context) (extraction.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts++
	if f.extractErr != nil {
		return extraction.Result{}, f.extractErr
	}
	return extraction.Result{Fingerprint: 42, Created: 1}, nil
}

func (f *fakeOrchestrator) Status() session.Snapshot {
	return session.Snapshot{Status: session.StatusIdle}
}

func (f *fakeOrchestrator) Subscribe() (<-chan any, func()) {
	return f.outbound, func() {}
}

func newTestServer(t *testing.T, orch Orchestrator) *httptest.Server {
	t.Helper()
	testMetricsOnce.Do(func() {
		testMetrics = observability.NewMetrics("airis_httpapi_test")
	})
	logger := observability.NewLoggerWithWriter(io.Discard, "error", "text")
	s := New(config.Config{}, orch, memory.NewInMemoryStore(), testMetrics, logger)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthAndStatus(t *testing.T) {
	srv := newTestServer(t, newFakeOrchestrator())

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("status request error = %v", err)
	}
	defer resp.Body.Close()
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap.Status != session.StatusIdle {
		t.Fatalf("status = %q", snap.Status)
	}
}

func TestMemoryEndpoint(t *testing.T) {
	testMetricsOnce.Do(func() {
		testMetrics = observability.NewMetrics("airis_httpapi_test")
	})
	logger := observability.NewLoggerWithWriter(io.Discard, "error", "text")
	store := memory.NewInMemoryStore()
	if _, _, err := store.Upsert(context.Background(), memory.Record{
		MemoryText: "User prefers fast TTS speed",
		Importance: memory.ImportanceHigh,
		Category:   "user_preference",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	s := New(config.Config{}, newFakeOrchestrator(), store, testMetrics, logger)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/memory")
	if err != nil {
		t.Fatalf("memory request error = %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Core         []memory.Record `json:"core"`
		ArchivedRows int             `json:"archived_rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode memory: %v", err)
	}
	if len(body.Core) != 1 || body.Core[0].Category != "user_preference" {
		t.Fatalf("core = %+v", body.Core)
	}
}

func TestExtractEndpoint(t *testing.T) {
	orch := newFakeOrchestrator()
	srv := newTestServer(t, orch)

	resp, err := http.Post(srv.URL+"/v1/extract", "application/json", nil)
	if err != nil {
		t.Fatalf("extract request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extract status = %d", resp.StatusCode)
	}

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if orch.extracts != 1 {
		t.Fatalf("extracts = %d, want 1", orch.extracts)
	}
}

func TestExtractEmptyContextConflict(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.extractErr = extraction.ErrEmptySnapshot
	srv := newTestServer(t, orch)

	resp, err := http.Post(srv.URL+"/v1/extract", "application/json", nil)
	if err != nil {
		t.Fatalf("extract request error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestConverseWebSocket(t *testing.T) {
	orch := newFakeOrchestrator()
	srv := newTestServer(t, orch)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/converse"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First frame is always the current status.
	var status protocol.StatusEvent
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if status.Type != protocol.TypeStatusEvent {
		t.Fatalf("initial frame = %+v", status)
	}

	if err := conn.WriteJSON(protocol.ClientText{Type: protocol.TypeClientText, Text: "hello"}); err != nil {
		t.Fatalf("write client_text: %v", err)
	}
	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionInterrupt}); err != nil {
		t.Fatalf("write client_control: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		orch.mu.Lock()
		ok := len(orch.submitted) == 1 && orch.interrupts == 1
		orch.mu.Unlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("messages never reached the orchestrator")
		case <-time.After(2 * time.Millisecond):
		}
	}

	// Server events are relayed to the client.
	orch.outbound <- protocol.AssistantText{Type: protocol.TypeAssistantText, ExchangeID: "ex-1", Text: "hi"}
	var at protocol.AssistantText
	if err := conn.ReadJSON(&at); err != nil {
		t.Fatalf("read assistant_text: %v", err)
	}
	if at.Text != "hi" {
		t.Fatalf("assistant text = %q", at.Text)
	}
}

func TestConverseRejectsCrossOrigin(t *testing.T) {
	srv := newTestServer(t, newFakeOrchestrator())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/converse"
	headers := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, headers)
	if err == nil {
		t.Fatalf("cross-origin upgrade should be rejected")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}
