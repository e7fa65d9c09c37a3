package convo

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is an immutable view of the conversation at a point in time: the
// ordered turns, the rendered core-memory summaries, and the capture time.
// It is the only unit downstream consumers may persist a dependency on.
type Snapshot struct {
	turns       []Turn
	memories    []string
	takenAt     time.Time
	fingerprint uint64
}

func newSnapshot(turns []Turn, memories []string, takenAt time.Time) Snapshot {
	return Snapshot{
		turns:       turns,
		memories:    memories,
		takenAt:     takenAt,
		fingerprint: fingerprintOf(turns, memories),
	}
}

// Turns returns a copy of the snapshot's turns in append order.
func (s Snapshot) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Memories returns a copy of the rendered core-memory summaries.
func (s Snapshot) Memories() []string {
	out := make([]string, len(s.memories))
	copy(out, s.memories)
	return out
}

// TakenAt is the capture time, used to order extraction results when
// completions arrive out of snapshot order.
func (s Snapshot) TakenAt() time.Time { return s.takenAt }

// Len reports the number of turns in the snapshot.
func (s Snapshot) Len() int { return len(s.turns) }

// Empty reports whether the snapshot carries no turns.
func (s Snapshot) Empty() bool { return len(s.turns) == 0 }

// Fingerprint is a content-derived key: two snapshots with identical turns
// and memory state share a fingerprint regardless of when they were taken.
// The extraction scheduler dedupes work on this value.
func (s Snapshot) Fingerprint() uint64 { return s.fingerprint }

func fingerprintOf(turns []Turn, memories []string) uint64 {
	h := xxhash.New()
	for _, t := range turns {
		_, _ = h.WriteString(string(t.Speaker))
		_, _ = h.WriteString("\x1f")
		_, _ = h.WriteString(t.Text)
		_, _ = h.WriteString("\x1f")
		_, _ = h.WriteString(strconv.FormatInt(t.Timestamp.UnixMicro(), 10))
		_, _ = h.WriteString("\x1e")
	}
	_, _ = h.WriteString("\x1d")
	for _, m := range memories {
		_, _ = h.WriteString(m)
		_, _ = h.WriteString("\x1e")
	}
	return h.Sum64()
}
