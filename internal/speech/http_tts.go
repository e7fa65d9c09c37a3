package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/airis/internal/audio"
)

// HTTPTTSConfig points at a synthesis HTTP endpoint that accepts a JSON
// request and answers with a WAV body (the GPT-SoVITS server contract).
type HTTPTTSConfig struct {
	URL     string
	Voice   string
	Timeout time.Duration
}

type HTTPTTSProvider struct {
	cfg    HTTPTTSConfig
	client *http.Client
}

func NewHTTPTTSProvider(cfg HTTPTTSConfig) *HTTPTTSProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPTTSProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *HTTPTTSProvider) Synthesize(ctx context.Context, text string, opts SynthesisOptions) (io.ReadCloser, audio.Format, error) {
	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = p.cfg.Voice
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1.0
	}

	body, err := json.Marshal(map[string]any{
		"text":         text,
		"voice":        voice,
		"speed_factor": speed,
		"media_type":   "wav",
		"streaming":    true,
	})
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("tts request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		_ = res.Body.Close()
		return nil, audio.Format{}, fmt.Errorf("tts http status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	format, pcm, err := audio.DecodeWAVHeader(res.Body)
	if err != nil {
		_ = res.Body.Close()
		return nil, audio.Format{}, fmt.Errorf("decode tts wav: %w", err)
	}

	return &bodyBackedStream{Reader: pcm, body: res.Body}, format, nil
}

// bodyBackedStream keeps the HTTP body open while the PCM data is consumed.
type bodyBackedStream struct {
	io.Reader
	body io.Closer
}

func (s *bodyBackedStream) Close() error { return s.body.Close() }
