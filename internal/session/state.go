// Package session tracks the companion's single conversation state machine.
// Only the orchestrator mutates it; everyone else reads snapshots.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle          Status = "idle"
	StatusAwaitingModel Status = "awaiting_model"
	StatusSpeaking      Status = "speaking"
)

// Snapshot is an immutable view of the conversation state, suitable for
// status events and the status endpoint.
type Snapshot struct {
	Status            Status    `json:"status"`
	ActiveExchangeID  string    `json:"active_exchange_id,omitempty"`
	InterruptionCount int       `json:"interruption_count"`
	LastError         string    `json:"last_error,omitempty"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	StartedAt         time.Time `json:"started_at"`
}

// State is the mutable conversation state. Safe for concurrent use.
type State struct {
	mu                sync.RWMutex
	status            Status
	activeExchangeID  string
	interruptionCount int
	lastError         string
	lastActivityAt    time.Time
	startedAt         time.Time
}

func NewState() *State {
	now := time.Now().UTC()
	return &State{status: StatusIdle, startedAt: now, lastActivityAt: now}
}

// BeginExchange moves the conversation into awaiting_model and returns the
// new exchange id.
func (s *State) BeginExchange() (string, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusAwaitingModel
	s.activeExchangeID = uuid.NewString()
	s.lastError = ""
	s.lastActivityAt = time.Now().UTC()
	return s.activeExchangeID, s.snapshotLocked()
}

// BeginSpeaking records that playback started for the exchange. A stale
// exchange id (already replaced by an interrupt) is ignored.
func (s *State) BeginSpeaking(exchangeID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeExchangeID != exchangeID {
		return s.snapshotLocked(), false
	}
	s.status = StatusSpeaking
	s.lastActivityAt = time.Now().UTC()
	return s.snapshotLocked(), true
}

// EndExchange returns the conversation to idle if the exchange is still the
// active one.
func (s *State) EndExchange(exchangeID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeExchangeID != exchangeID {
		return s.snapshotLocked(), false
	}
	s.status = StatusIdle
	s.activeExchangeID = ""
	s.lastActivityAt = time.Now().UTC()
	return s.snapshotLocked(), true
}

// Interrupt abandons the active exchange and counts the interruption. The
// caller starts the replacement exchange separately.
func (s *State) Interrupt() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeExchangeID != "" {
		s.interruptionCount++
	}
	s.status = StatusIdle
	s.activeExchangeID = ""
	s.lastActivityAt = time.Now().UTC()
	return s.snapshotLocked()
}

// Fail records a failed exchange. The conversation returns to idle and the
// error is kept for status reporting until the next exchange begins.
func (s *State) Fail(exchangeID string, err error) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exchangeID == "" || s.activeExchangeID == exchangeID {
		s.status = StatusIdle
		s.activeExchangeID = ""
	}
	if err != nil {
		s.lastError = err.Error()
	}
	s.lastActivityAt = time.Now().UTC()
	return s.snapshotLocked()
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// IdleSince reports how long the conversation has been idle. Zero while an
// exchange is in flight.
func (s *State) IdleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusIdle {
		return 0
	}
	return now.Sub(s.lastActivityAt)
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Status:            s.status,
		ActiveExchangeID:  s.activeExchangeID,
		InterruptionCount: s.interruptionCount,
		LastError:         s.lastError,
		LastActivityAt:    s.lastActivityAt,
		StartedAt:         s.startedAt,
	}
}
