package speech

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/antoniostano/airis/internal/audio"
)

// MockProvider is an in-process STT/TTS pair for tests and keyless dev runs.
// Transcripts are injected via EmitCommitted; synthesis produces silence
// sized to the text length.
type MockProvider struct {
	mu       sync.Mutex
	sessions []*mockSTTSession
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) StartSession(_ context.Context, _ string) (STTSession, <-chan STTEvent, error) {
	events := make(chan STTEvent, 64)
	s := &mockSTTSession{events: events}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, events, nil
}

// EmitCommitted pushes a committed transcript into every open session.
func (p *MockProvider) EmitCommitted(nickname, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.emit(STTEvent{Type: STTEventCommitted, Text: text, Nickname: nickname})
	}
}

func (p *MockProvider) Synthesize(_ context.Context, text string, _ SynthesisOptions) (io.ReadCloser, audio.Format, error) {
	// Roughly 60ms of silence per rune keeps mock playback interruptible.
	n := len([]rune(text))
	if n == 0 {
		n = 1
	}
	pcm := make([]byte, n*audio.DefaultFormat.BytesPerSecond()*60/1000)
	return io.NopCloser(bytes.NewReader(pcm)), audio.DefaultFormat, nil
}

type mockSTTSession struct {
	mu     sync.Mutex
	closed bool
	events chan STTEvent
}

func (s *mockSTTSession) SendAudioChunk(context.Context, string, int, bool) error { return nil }

func (s *mockSTTSession) emit(e STTEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}

func (s *mockSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
