// Package orchestrator owns the conversation event loop. All user input,
// chat ingestion, interrupts, and idle chatter flow through one goroutine
// that serializes exchange lifecycle decisions; the exchanges themselves run
// on their own goroutines and are cancelled through their contexts.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/antoniostano/airis/internal/avatar"
	"github.com/antoniostano/airis/internal/brain"
	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/extraction"
	"github.com/antoniostano/airis/internal/memory"
	"github.com/antoniostano/airis/internal/observability"
	"github.com/antoniostano/airis/internal/playback"
	"github.com/antoniostano/airis/internal/protocol"
	"github.com/antoniostano/airis/internal/reliability"
	"github.com/antoniostano/airis/internal/session"
	"github.com/antoniostano/airis/internal/speech"
)

const (
	memorySummaryLimit  = 10
	eventQueueSize      = 64
	subscriberQueueSize = 32

	idleChatterPrompt = "Nobody has spoken for a while. Say something short and " +
		"natural to keep the companion present, picking up on earlier context " +
		"when there is any."
)

// Config tunes the event loop.
type Config struct {
	Persona string
	// IdleInterval injects an idle-chatter exchange after this much silence.
	// Zero disables idle chatter.
	IdleInterval time.Duration
	// ChatResponseProbability is the chance a nicknamed chat message gets a
	// spoken reply. Messages are recorded as turns either way.
	ChatResponseProbability float64
	// ExchangeTimeout bounds one full exchange (model call plus synthesis).
	ExchangeTimeout time.Duration
	TTSVoice        string
	TTSSpeed        float64
}

// UserTextEvent is a typed or transcribed user utterance. A non-empty
// Nickname marks it as live-chat traffic.
type UserTextEvent struct {
	Text     string
	Nickname string
}

// InterruptEvent abandons the active exchange without starting a new one.
type InterruptEvent struct{}

type idleTick struct{}

type activeExchange struct {
	id     string
	cancel context.CancelFunc
}

// Orchestrator wires the conversation buffer, model adapter, synthesis,
// playback, and extraction into the exchange state machine.
type Orchestrator struct {
	cfg       Config
	buffer    *convo.Buffer
	store     memory.Store
	adapter   brain.Adapter
	tts       speech.TTSProvider
	playback  *playback.Controller
	scheduler *extraction.Scheduler
	state     *session.State
	avatar    avatar.Controller
	metrics   *observability.Metrics
	logger    *log.Logger

	events chan any

	mu     sync.Mutex
	active *activeExchange

	subMu   sync.Mutex
	subs    map[int]chan any
	nextSub int
}

func New(
	cfg Config,
	buffer *convo.Buffer,
	store memory.Store,
	adapter brain.Adapter,
	tts speech.TTSProvider,
	pb *playback.Controller,
	scheduler *extraction.Scheduler,
	state *session.State,
	av avatar.Controller,
	metrics *observability.Metrics,
	logger *log.Logger,
) *Orchestrator {
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 60 * time.Second
	}
	if av == nil {
		av = avatar.NopController{}
	}
	return &Orchestrator{
		cfg:       cfg,
		buffer:    buffer,
		store:     store,
		adapter:   adapter,
		tts:       tts,
		playback:  pb,
		scheduler: scheduler,
		state:     state,
		avatar:    av,
		metrics:   metrics,
		logger:    logger,
		events:    make(chan any, eventQueueSize),
		subs:      make(map[int]chan any),
	}
}

// SetPlayback wires the playback controller. The controller needs the
// orchestrator's listener at construction time, so wiring happens in two
// steps before Run is called.
func (o *Orchestrator) SetPlayback(pb *playback.Controller) {
	o.playback = pb
}

// SubmitText enqueues a user utterance. Nickname is empty for the local user.
func (o *Orchestrator) SubmitText(text, nickname string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.enqueue(UserTextEvent{Text: text, Nickname: nickname})
}

// Interrupt enqueues an explicit interrupt (GUI control or hotkey).
func (o *Orchestrator) Interrupt() {
	o.enqueue(InterruptEvent{})
}

// ExtractNow runs an extraction pass over the current context, bypassing the
// turn-count and timer triggers. Used by the explicit GUI/API control.
func (o *Orchestrator) ExtractNow(ctx context.Context) (extraction.Result, error) {
	snap := o.snapshotWithMemories(ctx)
	res, err := o.scheduler.Request(ctx, snap)
	if err == nil {
		o.emitMemoryEvent("explicit", res)
	}
	return res, err
}

// Status returns the conversation state snapshot for the status endpoint.
func (o *Orchestrator) Status() session.Snapshot {
	return o.state.Snapshot()
}

func (o *Orchestrator) enqueue(ev any) {
	select {
	case o.events <- ev:
	default:
		// The loop is wedged or flooded. Dropping input is better than
		// blocking the STT reader or the websocket handler.
		o.metrics.ExchangeEvents.WithLabelValues("event_dropped").Inc()
		o.logger.Warn("event queue full, dropping event")
	}
}

// AttachSTT consumes committed transcripts from an STT session and feeds them
// into the loop. Partial transcripts are advisory and dropped here.
func (o *Orchestrator) AttachSTT(ctx context.Context, events <-chan speech.STTEvent) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				switch evt.Type {
				case speech.STTEventCommitted:
					o.SubmitText(evt.Text, evt.Nickname)
				case speech.STTEventError:
					o.metrics.BoundaryErrors.WithLabelValues("stt", evt.Code).Inc()
					o.broadcast(protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						Code:      evt.Code,
						Kind:      string(reliability.TransientExternal),
						Source:    "stt",
						Retryable: evt.Retryable,
						Detail:    evt.Detail,
					})
				}
			}
		}
	}()
}

// Run drives the event loop until ctx is cancelled. Call once.
func (o *Orchestrator) Run(ctx context.Context) error {
	var idleCh <-chan time.Time
	if o.cfg.IdleInterval > 0 {
		ticker := time.NewTicker(o.cfg.IdleInterval)
		defer ticker.Stop()
		idleCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			o.cancelActiveExchange()
			o.playback.Cancel()
			return ctx.Err()
		case <-idleCh:
			o.handleEvent(ctx, idleTick{})
		case ev := <-o.events:
			o.handleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case UserTextEvent:
		o.handleUserText(ctx, e)
	case InterruptEvent:
		o.handleInterrupt()
	case idleTick:
		o.handleIdleTick(ctx)
	}
}

func (o *Orchestrator) handleUserText(ctx context.Context, e UserTextEvent) {
	respond := e.Nickname == "" || rand.Float64() < o.cfg.ChatResponseProbability

	// Input that will be answered interrupts the active exchange: playback
	// stops before the new turn is processed. Unanswered chat traffic is
	// recorded without disturbing ongoing speech.
	if respond && o.state.Snapshot().Status != session.StatusIdle {
		o.interruptActive()
	}

	o.buffer.Append(convo.SpeakerUser, e.Nickname, e.Text)
	o.afterAppend()
	o.metrics.ExchangeEvents.WithLabelValues("user_turn").Inc()

	if !respond {
		// Recorded but not answered; extraction still sees it.
		o.metrics.ExchangeEvents.WithLabelValues("chat_unanswered").Inc()
		return
	}

	o.startExchange(ctx, "")
}

func (o *Orchestrator) handleInterrupt() {
	if o.state.Snapshot().Status == session.StatusIdle {
		return
	}
	o.interruptActive()
	o.broadcast(protocol.NewStatusEvent(o.state.Snapshot()))
}

func (o *Orchestrator) handleIdleTick(ctx context.Context) {
	if o.cfg.IdleInterval <= 0 {
		return
	}
	if o.state.IdleSince(time.Now()) < o.cfg.IdleInterval {
		return
	}
	o.metrics.ExchangeEvents.WithLabelValues("idle_chatter").Inc()
	o.startExchange(ctx, idleChatterPrompt)
}

// interruptActive cancels the running exchange and stops playback. Counted
// as an interruption only when an exchange was actually in flight.
func (o *Orchestrator) interruptActive() {
	o.cancelActiveExchange()
	o.playback.Cancel()
	o.state.Interrupt()
	o.metrics.ExchangeEvents.WithLabelValues("interrupted").Inc()
}

func (o *Orchestrator) cancelActiveExchange() {
	o.mu.Lock()
	active := o.active
	o.active = nil
	o.mu.Unlock()
	if active != nil {
		active.cancel()
	}
}

// startExchange launches the model/synthesis pipeline for the current
// context on its own goroutine. taskPrompt is empty for normal exchanges.
// The exchange context lives until the exchange finishes, fails, or is
// interrupted: it covers playback too, since the synthesis stream keeps
// feeding the device after the model call returns.
func (o *Orchestrator) startExchange(ctx context.Context, taskPrompt string) {
	exchangeID, snap := o.state.BeginExchange()
	o.broadcast(protocol.NewStatusEvent(snap))

	exCtx, cancel := context.WithTimeout(ctx, o.cfg.ExchangeTimeout)

	o.mu.Lock()
	o.active = &activeExchange{id: exchangeID, cancel: cancel}
	o.mu.Unlock()

	go o.runExchange(exCtx, exchangeID, taskPrompt)
}

// releaseExchange cancels and forgets the active exchange if it still is
// exchangeID. Every exchange ends through here exactly once.
func (o *Orchestrator) releaseExchange(exchangeID string) {
	o.mu.Lock()
	active := o.active
	if active != nil && active.id == exchangeID {
		o.active = nil
	} else {
		active = nil
	}
	o.mu.Unlock()
	if active != nil {
		active.cancel()
	}
}

func (o *Orchestrator) runExchange(ctx context.Context, exchangeID, taskPrompt string) {
	started := time.Now()

	snap := o.snapshotWithMemories(ctx)
	req := brain.ChatRequest{
		Turns:           snap.Turns(),
		MemorySummaries: snap.Memories(),
		Now:             time.Now(),
		Persona:         o.cfg.Persona,
		TaskPrompt:      taskPrompt,
	}

	resp, err := o.adapter.Chat(ctx, req)
	if err != nil {
		// A malformed function-call payload only voids the inline memory
		// items; the reply text is still good.
		if !errors.Is(err, brain.ErrMalformedPayload) || resp.Text == "" {
			o.failExchange(exchangeID, "model", err)
			return
		}
		o.metrics.BoundaryErrors.WithLabelValues("model", "malformed_payload").Inc()
		o.logger.Warn("inline memory payload discarded", "exchange", exchangeID, "err", err)
		resp.MemoryItems = nil
	}

	// The prompt worked: everything it contained is now seen. A failure
	// above leaves the turns unseen for the next attempt.
	o.buffer.MarkSeen(snap.TakenAt())
	o.buffer.Append(convo.SpeakerAssistant, "", resp.Text)
	o.afterAppend()
	o.metrics.ObserveExchangeLatency(time.Since(started))

	o.broadcast(protocol.AssistantText{
		Type:       protocol.TypeAssistantText,
		ExchangeID: exchangeID,
		Text:       resp.Text,
	})

	if len(resp.MemoryItems) > 0 {
		if res, err := o.scheduler.ApplyInline(ctx, snap, resp.MemoryItems); err != nil {
			o.metrics.BoundaryErrors.WithLabelValues("memory", string(reliability.DataIntegrity)).Inc()
			o.logger.Error("inline memory apply failed", "exchange", exchangeID, "err", err)
		} else {
			o.emitMemoryEvent("inline", res)
		}
	}

	o.speak(ctx, exchangeID, resp.Text, started)
}

// speak synthesizes and plays the assistant text. An empty speakable rendering
// (pure markdown, code, emoji) ends the exchange silently.
func (o *Orchestrator) speak(ctx context.Context, exchangeID, text string, started time.Time) {
	speakable := speech.Speakable(text)
	if speakable == "" {
		o.finishExchange(exchangeID)
		return
	}

	stream, format, err := o.tts.Synthesize(ctx, speakable, speech.SynthesisOptions{
		Voice: o.cfg.TTSVoice,
		Speed: o.cfg.TTSSpeed,
	})
	if err != nil {
		// The text reply already went out; losing the audio is not a failed
		// exchange from the user's point of view.
		o.metrics.BoundaryErrors.WithLabelValues("tts", "synthesize").Inc()
		o.logger.Warn("synthesis failed", "exchange", exchangeID, "err", err)
		o.finishExchange(exchangeID)
		return
	}

	// An interrupt can land while synthesis is in flight. A stale exchange
	// never reaches Play: it would cancel the replacement's audio.
	if ctx.Err() != nil || o.state.Snapshot().ActiveExchangeID != exchangeID {
		_ = stream.Close()
		o.metrics.ExchangeEvents.WithLabelValues("stale_synthesis").Inc()
		return
	}

	_, err = o.playback.Play(ctx, playback.Request{Tag: exchangeID, Text: speakable, Audio: stream, Format: format})
	if err != nil {
		_ = stream.Close()
		if errors.Is(err, context.Canceled) {
			return
		}
		o.failExchange(exchangeID, "playback", err)
		return
	}

	if snap, ok := o.state.BeginSpeaking(exchangeID); ok {
		o.metrics.ObserveFirstAudioLatency(time.Since(started))
		o.broadcast(protocol.NewStatusEvent(snap))
	}
}

func (o *Orchestrator) finishExchange(exchangeID string) {
	o.releaseExchange(exchangeID)
	if snap, ok := o.state.EndExchange(exchangeID); ok {
		o.broadcast(protocol.NewStatusEvent(snap))
	}
	o.scheduler.NotifyTurns(o.buffer.UnseenCount())
}

func (o *Orchestrator) failExchange(exchangeID, source string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	kind := classifyFailure(err)
	o.releaseExchange(exchangeID)
	o.metrics.BoundaryErrors.WithLabelValues(source, string(kind)).Inc()
	o.metrics.ExchangeEvents.WithLabelValues("failed").Inc()
	o.logger.Error("exchange failed", "exchange", exchangeID, "source", source, "kind", kind, "err", err)

	snap := o.state.Fail(exchangeID, err)
	o.broadcast(protocol.NewStatusEvent(snap))
	o.broadcast(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		Code:      "exchange_failed",
		Kind:      string(kind),
		Source:    source,
		Retryable: reliability.IsRetryable(err),
		Detail:    err.Error(),
	})
}

// classifyFailure buckets an exchange error into the reliability taxonomy.
func classifyFailure(err error) reliability.FailureKind {
	switch {
	case errors.Is(err, brain.ErrMalformedPayload):
		return reliability.ProtocolMismatch
	case errors.Is(err, playback.ErrDeviceBusy):
		return reliability.ResourceContention
	default:
		return reliability.TransientExternal
	}
}

// snapshotWithMemories captures the buffer together with rendered core
// memories. Memory read failures degrade to a memory-less prompt.
func (o *Orchestrator) snapshotWithMemories(ctx context.Context) convo.Snapshot {
	summaries, err := o.store.RenderSummaries(ctx, memorySummaryLimit)
	if err != nil {
		o.metrics.BoundaryErrors.WithLabelValues("memory", string(reliability.DataIntegrity)).Inc()
		o.logger.Warn("core memory render failed", "err", err)
		summaries = nil
	}
	return o.buffer.Snapshot(summaries)
}

func (o *Orchestrator) afterAppend() {
	o.metrics.ContextTurns.Set(float64(o.buffer.Len()))
	o.metrics.UnseenTurns.Set(float64(o.buffer.UnseenCount()))
	o.scheduler.NotifyTurns(o.buffer.UnseenCount())
}

func (o *Orchestrator) emitMemoryEvent(source string, res extraction.Result) {
	o.broadcast(protocol.MemoryEvent{
		Type:     protocol.TypeMemoryEvent,
		Source:   source,
		Accepted: len(res.Accepted),
		Created:  res.Created,
		Merged:   res.Merged,
		Stale:    res.Stale > 0,
	})
}
