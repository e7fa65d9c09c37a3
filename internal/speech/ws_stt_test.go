package speech

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testSTTServer(t *testing.T, messages int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"message_type": "session_started"})
		for i := 0; i < messages; i++ {
			payload := map[string]any{
				"message_type": "committed_transcript",
				"text":         fmt.Sprintf("utterance %d", i),
				"speaker":      "local",
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func sttURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSSTTSessionRelaysCommittedTranscripts(t *testing.T) {
	srv := testSTTServer(t, 3)
	defer srv.Close()

	p := NewWSSTTProvider(WSSTTConfig{BaseURL: sttURL(srv)})
	sess, events, err := p.StartSession(context.Background(), "local")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	defer sess.Close()

	for i := 0; i < 3; i++ {
		select {
		case evt := <-events:
			if evt.Type != STTEventCommitted || evt.Text != fmt.Sprintf("utterance %d", i) {
				t.Fatalf("event %d = %+v", i, evt)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("committed transcript %d never arrived", i)
		}
	}
}

func TestWSSTTSessionCloseUnblocksReaderWithoutConsumer(t *testing.T) {
	// Far more messages than the event buffer holds; with no consumer the
	// read loop ends up blocked mid-send.
	srv := testSTTServer(t, 400)
	defer srv.Close()

	p := NewWSSTTProvider(WSSTTConfig{BaseURL: sttURL(srv)})
	sess, events, err := p.StartSession(context.Background(), "local")
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- sess.Close() }()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close() hung behind a blocked read loop")
	}

	// The read loop owns the channel and closes it on the way out.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("events channel never closed after Close()")
		}
	}
}
