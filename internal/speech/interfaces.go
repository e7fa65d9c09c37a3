package speech

import (
	"context"
	"io"

	"github.com/antoniostano/airis/internal/audio"
)

type STTEventType string

const (
	STTEventPartial   STTEventType = "partial"
	STTEventCommitted STTEventType = "committed"
	STTEventError     STTEventType = "error"
)

// STTEvent is one transcription result. Committed events become conversation
// turns; partials are advisory.
type STTEvent struct {
	Type       STTEventType
	Text       string
	Nickname   string
	Confidence float64
	Code       string
	Detail     string
	Retryable  bool
	Timestamp  int64
}

type STTSession interface {
	SendAudioChunk(ctx context.Context, audioBase64 string, sampleRate int, commit bool) error
	Close() error
}

// STTProvider is the speech-to-text boundary: raw audio in, transcript
// events out.
type STTProvider interface {
	StartSession(ctx context.Context, sessionID string) (STTSession, <-chan STTEvent, error)
}

// SynthesisOptions tunes one TTS request.
type SynthesisOptions struct {
	Voice string
	Speed float64
}

// TTSProvider is the text-to-speech boundary. Synthesize returns a PCM
// stream and its format; the caller owns closing the stream.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) (io.ReadCloser, audio.Format, error)
}
