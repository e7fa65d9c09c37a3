package session

import (
	"errors"
	"testing"
	"time"
)

func TestExchangeLifecycle(t *testing.T) {
	s := NewState()
	if got := s.Snapshot().Status; got != StatusIdle {
		t.Fatalf("initial status = %q, want idle", got)
	}

	id, snap := s.BeginExchange()
	if id == "" || snap.Status != StatusAwaitingModel || snap.ActiveExchangeID != id {
		t.Fatalf("after BeginExchange: %+v", snap)
	}

	snap, ok := s.BeginSpeaking(id)
	if !ok || snap.Status != StatusSpeaking {
		t.Fatalf("after BeginSpeaking: ok=%v %+v", ok, snap)
	}

	snap, ok = s.EndExchange(id)
	if !ok || snap.Status != StatusIdle || snap.ActiveExchangeID != "" {
		t.Fatalf("after EndExchange: ok=%v %+v", ok, snap)
	}
}

func TestStaleExchangeIgnored(t *testing.T) {
	s := NewState()
	first, _ := s.BeginExchange()
	s.Interrupt()
	second, _ := s.BeginExchange()

	if _, ok := s.BeginSpeaking(first); ok {
		t.Fatalf("interrupted exchange should not enter speaking")
	}
	if _, ok := s.EndExchange(first); ok {
		t.Fatalf("interrupted exchange should not end the active one")
	}
	if snap := s.Snapshot(); snap.ActiveExchangeID != second || snap.Status != StatusAwaitingModel {
		t.Fatalf("active exchange disturbed: %+v", snap)
	}
}

func TestInterruptCountsOnlyActiveExchanges(t *testing.T) {
	s := NewState()
	s.Interrupt()
	if got := s.Snapshot().InterruptionCount; got != 0 {
		t.Fatalf("idle interrupt counted: %d", got)
	}

	s.BeginExchange()
	s.Interrupt()
	s.BeginExchange()
	s.Interrupt()
	if got := s.Snapshot().InterruptionCount; got != 2 {
		t.Fatalf("interruption count = %d, want 2", got)
	}
}

func TestFailRecordsErrorUntilNextExchange(t *testing.T) {
	s := NewState()
	id, _ := s.BeginExchange()
	snap := s.Fail(id, errors.New("model timeout"))
	if snap.Status != StatusIdle || snap.LastError != "model timeout" {
		t.Fatalf("after Fail: %+v", snap)
	}

	_, snap = s.BeginExchange()
	if snap.LastError != "" {
		t.Fatalf("new exchange should clear last error, got %q", snap.LastError)
	}
}

func TestIdleSince(t *testing.T) {
	s := NewState()
	now := time.Now().UTC().Add(3 * time.Second)
	if d := s.IdleSince(now); d < 3*time.Second {
		t.Fatalf("IdleSince = %v, want >= 3s", d)
	}

	s.BeginExchange()
	if d := s.IdleSince(now.Add(time.Minute)); d != 0 {
		t.Fatalf("in-flight exchange should report zero idle, got %v", d)
	}
}
