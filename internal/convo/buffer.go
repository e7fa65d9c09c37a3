package convo

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// Turn is a single conversation entry. Once appended it is immutable except
// for the Seen flag, which flips exactly once via Buffer.MarkSeen.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Nickname  string    `json:"nickname,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Seen      bool      `json:"seen"`
}

// Buffer is the ordered in-memory conversation log. The orchestrator is the
// single logical appender; the buffer still locks so snapshot readers and
// trigger logic can run from other goroutines.
type Buffer struct {
	mu       sync.RWMutex
	turns    []Turn
	lastTime time.Time
	maxTurns int
}

// NewBuffer creates a buffer that retains at most maxTurns entries.
// maxTurns <= 0 means unbounded.
func NewBuffer(maxTurns int) *Buffer {
	return &Buffer{maxTurns: maxTurns}
}

// Append adds a turn at the end of the log and returns it. Timestamps are
// clock-guarded so ordering stays monotonic even if the wall clock steps back.
func (b *Buffer) Append(speaker Speaker, nickname, text string) Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(b.lastTime) {
		now = b.lastTime.Add(time.Microsecond)
	}
	b.lastTime = now

	t := Turn{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Nickname:  nickname,
		Text:      text,
		Timestamp: now,
	}
	b.turns = append(b.turns, t)

	if b.maxTurns > 0 && len(b.turns) > b.maxTurns {
		// Drop the oldest turns but keep the backing array from pinning them.
		excess := len(b.turns) - b.maxTurns
		b.turns = append([]Turn(nil), b.turns[excess:]...)
	}
	return t
}

// Snapshot returns a read-only copy of every turn appended before the call,
// with the rendered memory summaries and capture time baked in. Appends that
// happen after Snapshot returns never appear in the returned value.
func (b *Buffer) Snapshot(memories []string) Snapshot {
	b.mu.RLock()
	turns := make([]Turn, len(b.turns))
	copy(turns, b.turns)
	b.mu.RUnlock()

	mems := make([]string, len(memories))
	copy(mems, memories)

	return newSnapshot(turns, mems, time.Now().UTC())
}

// MarkSeen flips the Seen flag for every turn at or before upto. It is called
// only after a prompt round-trip succeeds, so a failed model call leaves its
// turns unseen and eligible for the next snapshot.
func (b *Buffer) MarkSeen(upto time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	flipped := 0
	for i := range b.turns {
		if b.turns[i].Timestamp.After(upto) {
			break
		}
		if !b.turns[i].Seen {
			b.turns[i].Seen = true
			flipped++
		}
	}
	return flipped
}

// Unseen returns copies of the turns not yet consumed by a successful prompt.
func (b *Buffer) Unseen() []Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Turn
	for _, t := range b.turns {
		if !t.Seen {
			out = append(out, t)
		}
	}
	return out
}

// UnseenCount reports how many turns are still unseen.
func (b *Buffer) UnseenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, t := range b.turns {
		if !t.Seen {
			n++
		}
	}
	return n
}

// Len reports the number of retained turns.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}
