package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/airis/internal/reliability"
)

// WSSTTConfig points at a realtime speech-to-text websocket endpoint.
type WSSTTConfig struct {
	BaseURL string
	APIKey  string
	ModelID string
}

// WSSTTProvider streams microphone audio to a realtime STT service over a
// websocket and relays partial/committed transcripts as events.
type WSSTTProvider struct {
	cfg WSSTTConfig
}

func NewWSSTTProvider(cfg WSSTTConfig) *WSSTTProvider {
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "realtime_v1"
	}
	return &WSSTTProvider{cfg: cfg}
}

func (p *WSSTTProvider) StartSession(ctx context.Context, sessionID string) (STTSession, <-chan STTEvent, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.ModelID)
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if strings.TrimSpace(p.cfg.APIKey) != "" {
		headers.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan STTEvent, 256)
	s := &wsSTTSession{conn: conn, events: events, done: make(chan struct{})}
	go s.readLoop()
	return s, events, nil
}

type wsSTTSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan STTEvent
	done      chan struct{}
}

func (s *wsSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, sampleRate int, commit bool) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	payload := map[string]any{
		"message_type":  "input_audio_chunk",
		"audio_base_64": audioBase64,
		"commit":        commit,
		"sample_rate":   sampleRate,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// readLoop owns the events channel: it is the only closer, so a racing
// Close never turns a pending send into a panic.
func (s *wsSTTSession) readLoop() {
	defer func() {
		_ = s.conn.Close()
		close(s.events)
	}()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		messageType := asString(raw["message_type"])
		var evt STTEvent
		switch messageType {
		case "partial_transcript":
			evt = STTEvent{Type: STTEventPartial, Text: asString(raw["text"]), Nickname: asString(raw["speaker"]), Timestamp: time.Now().UnixMilli()}
		case "committed_transcript":
			evt = STTEvent{Type: STTEventCommitted, Text: asString(raw["text"]), Nickname: asString(raw["speaker"]), Timestamp: time.Now().UnixMilli()}
		case "session_started", "", "input_audio_chunk":
			// control traffic
			continue
		default:
			evt = STTEvent{
				Type:      STTEventError,
				Code:      messageType,
				Detail:    asString(raw["error"]),
				Retryable: reliability.IsRetryableRealtimeMessageType(messageType),
				Timestamp: time.Now().UnixMilli(),
			}
		}
		select {
		case s.events <- evt:
		case <-s.done:
			return
		}
	}
}

func (s *wsSTTSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.done)
		retErr = s.conn.Close()
	})
	return retErr
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
