// Package httpapi exposes the GUI-facing surface: a websocket for the
// conversation stream and a small JSON API for status, memory, and controls.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/airis/internal/config"
	"github.com/antoniostano/airis/internal/extraction"
	"github.com/antoniostano/airis/internal/memory"
	"github.com/antoniostano/airis/internal/observability"
	"github.com/antoniostano/airis/internal/protocol"
	"github.com/antoniostano/airis/internal/session"
)

// Orchestrator is the conversation engine surface the API needs.
type Orchestrator interface {
	SubmitText(text, nickname string)
	Interrupt()
	ExtractNow(ctx context.Context) (extraction.Result, error)
	Status() session.Snapshot
	Subscribe() (<-chan any, func())
}

type Server struct {
	cfg      config.Config
	orch     Orchestrator
	store    memory.Store
	metrics  *observability.Metrics
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, orch Orchestrator, store memory.Store, metrics *observability.Metrics, logger *log.Logger) *Server {
	return &Server{
		cfg:     cfg,
		orch:    orch,
		store:   store,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default, so another
				// website cannot drive the companion if it is ever exposed
				// beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/memory", s.handleMemory)
	r.Post("/v1/extract", s.handleExtract)
	r.Get("/v1/converse", s.handleConverse)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_read_failed", err.Error())
		return
	}
	archived, err := s.store.ArchiveLen(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_read_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"core":          records,
		"archived_rows": archived,
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	res, err := s.orch.ExtractNow(r.Context())
	if err != nil {
		if errors.Is(err, extraction.ErrEmptySnapshot) {
			respondError(w, http.StatusConflict, "empty_context", "nothing to extract")
			return
		}
		respondError(w, http.StatusBadGateway, "extraction_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"fingerprint": res.Fingerprint,
		"accepted":    len(res.Accepted),
		"created":     res.Created,
		"merged":      res.Merged,
		"stale":       res.Stale,
	})
}

func (s *Server) handleConverse(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound, unsubscribe := s.orch.Subscribe()
	defer unsubscribe()

	// Current state first so the GUI can render before anything happens.
	initial := protocol.NewStatusEvent(s.orch.Status())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		write := func(msg any) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return false
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
			return true
		}
		if !write(initial) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if !write(msg) {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", "invalid").Inc()
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		switch m := parsed.(type) {
		case protocol.ClientText:
			s.orch.SubmitText(m.Text, m.Nickname)
		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionInterrupt:
				s.orch.Interrupt()
			case protocol.ActionExtract:
				go func() {
					if _, err := s.orch.ExtractNow(context.WithoutCancel(ctx)); err != nil {
						s.logger.Warn("requested extraction failed", "err", err)
					}
				}()
			case protocol.ActionEnd:
				break readLoop
			}
		}
	}

	cancel()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantText:
		return m.Type, true
	case protocol.StatusEvent:
		return m.Type, true
	case protocol.MemoryEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
