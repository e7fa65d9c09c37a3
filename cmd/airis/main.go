package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antoniostano/airis/internal/avatar"
	"github.com/antoniostano/airis/internal/brain"
	"github.com/antoniostano/airis/internal/config"
	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/extraction"
	"github.com/antoniostano/airis/internal/httpapi"
	"github.com/antoniostano/airis/internal/memory"
	"github.com/antoniostano/airis/internal/observability"
	"github.com/antoniostano/airis/internal/orchestrator"
	"github.com/antoniostano/airis/internal/playback"
	"github.com/antoniostano/airis/internal/session"
	"github.com/antoniostano/airis/internal/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("config error", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MemoryDataDir)
	if err != nil {
		fatal("memory store init failed", err)
	}
	defer store.Close()
	if warner, ok := store.(interface{ LoadWarnings() []error }); ok {
		for _, warn := range warner.LoadWarnings() {
			// Unreadable persisted memory degrades to an empty set; the
			// archive keeps whatever was salvageable.
			logger.Warn("memory store loaded with damage", "err", warn)
		}
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:        cfg.BrainMode,
		HTTPURL:     cfg.BrainHTTPURL,
		FallbackURL: cfg.BrainFallbackURL,
		Persona:     cfg.Persona,
		Timeout:     cfg.BrainTimeout,
	})
	if err != nil {
		fatal("brain adapter init failed", err)
	}

	var (
		sttProvider speech.STTProvider
		ttsProvider speech.TTSProvider
	)
	if strings.TrimSpace(cfg.STTBaseURL) != "" {
		sttProvider = speech.NewWSSTTProvider(speech.WSSTTConfig{
			BaseURL: cfg.STTBaseURL,
			APIKey:  cfg.STTAPIKey,
			ModelID: cfg.STTModelID,
		})
		logger.Info("stt provider: realtime websocket", "base_url", cfg.STTBaseURL)
	}
	if strings.TrimSpace(cfg.TTSBaseURL) != "" {
		ttsProvider = speech.NewHTTPTTSProvider(speech.HTTPTTSConfig{
			URL:   cfg.TTSBaseURL,
			Voice: cfg.TTSVoice,
		})
		logger.Info("tts provider: http", "base_url", cfg.TTSBaseURL)
	} else {
		mock := speech.NewMockProvider()
		ttsProvider = mock
		if sttProvider == nil {
			sttProvider = mock
		}
		logger.Info("tts provider: mock (no TTS_BASE_URL set)")
	}

	var avatarCtrl avatar.Controller = avatar.NopController{}
	if strings.TrimSpace(cfg.AvatarWSURL) != "" {
		ws := avatar.NewWSController(avatar.WSConfig{
			URL:       cfg.AvatarWSURL,
			AuthToken: cfg.AvatarAuthToken,
		}, logger)
		defer ws.Close()
		avatarCtrl = ws
		logger.Info("avatar controller: websocket", "url", cfg.AvatarWSURL)
	}

	buffer := convo.NewBuffer(cfg.ContextMaxTurns)
	state := session.NewState()

	scheduler := extraction.NewScheduler(adapter, store, func() convo.Snapshot {
		summaries, err := store.RenderSummaries(ctx, 10)
		if err != nil {
			summaries = nil
		}
		return buffer.Snapshot(summaries)
	}, extraction.Config{
		CallTimeout:   cfg.ExtractionCallTimeout,
		TurnThreshold: cfg.ExtractionTurnThreshold,
		CronSpec:      cfg.ExtractionCron,
	}, metrics, logger)

	orch := orchestrator.New(orchestrator.Config{
		Persona:                 cfg.Persona,
		IdleInterval:            cfg.IdleInterval,
		ChatResponseProbability: cfg.ChatResponseProbability,
		ExchangeTimeout:         cfg.ExchangeTimeout,
		TTSVoice:                cfg.TTSVoice,
		TTSSpeed:                cfg.TTSSpeed,
	}, buffer, store, adapter, ttsProvider, nil, scheduler, state, avatarCtrl, metrics, logger)

	device, closeSink, err := openAudioSink(cfg.AudioSink)
	if err != nil {
		fatal("audio sink init failed", err)
	}
	if closeSink != nil {
		defer closeSink()
	}
	player := playback.NewController(device, metrics, logger, orch.PlaybackListener())
	orch.SetPlayback(player)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	go func() {
		if err := scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("extraction scheduler stopped", "err", err)
		}
	}()
	go func() {
		if err := orch.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("orchestrator stopped", "err", err)
		}
	}()

	if sttProvider != nil {
		if sess, events, err := sttProvider.StartSession(runCtx, "local"); err != nil {
			logger.Warn("stt session unavailable, text input only", "err", err)
		} else {
			defer func() {
				if err := sess.Close(); err != nil {
					logger.Warn("stt session close", "err", err)
				}
			}()
			orch.AttachSTT(runCtx, events)
		}
	}

	api := httpapi.New(cfg, orch, store, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("listen error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// openAudioSink maps the APP_AUDIO_SINK setting to a playback device.
func openAudioSink(sink string) (playback.Device, func(), error) {
	switch strings.TrimSpace(sink) {
	case "", "discard":
		return playback.NewDiscardDevice(), nil, nil
	case "stdout":
		return playback.NewWriterDevice(os.Stdout), nil, nil
	default:
		f, err := os.OpenFile(sink, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return playback.NewWriterDevice(f), func() { _ = f.Close() }, nil
	}
}

func fatal(msg string, err error) {
	observability.NewLogger("error", "text").Error(msg, "err", err)
	os.Exit(1)
}
