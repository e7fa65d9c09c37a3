package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TimeLayout is the wire format used for record timestamps in the
// language-model function-call payload.
const TimeLayout = "2006-01-02 15:04:05"

// Importance ranks how strongly a memory should influence future prompts.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
)

// Rank orders importance levels; higher wins merges.
func (i Importance) Rank() int {
	switch i {
	case ImportanceCritical:
		return 3
	case ImportanceHigh:
		return 2
	case ImportanceMedium:
		return 1
	default:
		return 0
	}
}

// ParseImportance normalizes a wire value; anything unrecognized degrades to
// medium rather than failing the whole extraction pass.
func ParseImportance(v string) Importance {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(ImportanceCritical):
		return ImportanceCritical
	case string(ImportanceHigh):
		return ImportanceHigh
	default:
		return ImportanceMedium
	}
}

// Record is one extracted memory fact. Core and long-term stores share the
// schema; they differ only in write discipline (merge vs append).
type Record struct {
	ID         string     `json:"id,omitempty"`
	MemoryText string     `json:"memory_text"`
	Importance Importance `json:"importance_level"`
	Category   string     `json:"category"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Key is the merge identity for core memory: category plus normalized text.
func (r Record) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Category)) + "\x1f" + normalizeText(r.MemoryText)
}

// Summary renders the record the way it is injected into prompts.
func (r Record) Summary() string {
	return fmt.Sprintf("[%s/%s] %s", r.Category, r.Importance, r.MemoryText)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Merge folds an incoming record into an existing one with the same Key:
// the higher importance and the later timestamp win. Merging is idempotent.
func Merge(existing, incoming Record) Record {
	out := existing
	if incoming.Importance.Rank() > out.Importance.Rank() {
		out.Importance = incoming.Importance
	}
	if incoming.Timestamp.After(out.Timestamp) {
		out.Timestamp = incoming.Timestamp
	}
	return out
}

// CoreStore holds the curated, deduplicated memory set available to prompts.
type CoreStore interface {
	// Upsert merges the record into the store. The returned bool reports
	// whether a new entry was created (false means an existing entry was
	// merged or left unchanged).
	Upsert(ctx context.Context, rec Record) (Record, bool, error)
	// All returns records ordered by importance (desc) then timestamp (desc).
	All(ctx context.Context) ([]Record, error)
	// RenderSummaries returns up to limit prompt-ready summary lines.
	RenderSummaries(ctx context.Context, limit int) ([]string, error)
}

// Archive is the append-only long-term log of every extracted fact. Entries
// are never merged, mutated, or deleted.
type Archive interface {
	AppendRecord(ctx context.Context, rec Record) error
	AllArchived(ctx context.Context) ([]Record, error)
	ArchiveLen(ctx context.Context) (int, error)
}

// Store is the full persisted-memory boundary injected into the extraction
// scheduler and orchestrator.
type Store interface {
	CoreStore
	Archive
	Close() error
}

// SortRecords orders records by importance rank (desc) then timestamp (desc),
// the order used for prompt rendering.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Importance.Rank() != recs[j].Importance.Rank() {
			return recs[i].Importance.Rank() > recs[j].Importance.Rank()
		}
		return recs[i].Timestamp.After(recs[j].Timestamp)
	})
}
