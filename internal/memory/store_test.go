package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(TimeLayout, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func TestMergeKeepsHigherImportanceAndLaterTimestamp(t *testing.T) {
	a := Record{
		MemoryText: "User prefers fast TTS speed",
		Importance: ImportanceMedium,
		Category:   "user_preference",
		Timestamp:  mustTime(t, "2025-07-18 14:23:01"),
	}
	b := Record{
		MemoryText: "User prefers fast TTS speed",
		Importance: ImportanceHigh,
		Category:   "user_preference",
		Timestamp:  mustTime(t, "2025-07-18 14:20:00"),
	}

	merged := Merge(a, b)
	if merged.Importance != ImportanceHigh {
		t.Fatalf("importance = %q, want high", merged.Importance)
	}
	if !merged.Timestamp.Equal(a.Timestamp) {
		t.Fatalf("timestamp = %v, want later %v", merged.Timestamp, a.Timestamp)
	}

	// Idempotent: merging the same record twice yields the same state.
	again := Merge(merged, b)
	if again != merged {
		t.Fatalf("merge not idempotent: %+v vs %+v", again, merged)
	}
}

func TestInMemoryUpsertMergesByKey(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	first := Record{MemoryText: "Likes jazz", Importance: ImportanceMedium, Category: "user_preference"}
	if _, created, err := s.Upsert(ctx, first); err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	// Same category + text up to whitespace/case must merge, not duplicate.
	dup := Record{MemoryText: "  likes   JAZZ ", Importance: ImportanceCritical, Category: "User_Preference"}
	merged, created, err := s.Upsert(ctx, dup)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if created {
		t.Fatalf("duplicate key should merge, not create")
	}
	if merged.Importance != ImportanceCritical {
		t.Fatalf("merged importance = %q, want critical", merged.Importance)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("core record count = %d, want 1", len(all))
	}
}

func TestArchiveIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	rec := Record{MemoryText: "fact", Importance: ImportanceHigh, Category: "context"}
	for i := 0; i < 3; i++ {
		if err := s.AppendRecord(ctx, rec); err != nil {
			t.Fatalf("AppendRecord() error = %v", err)
		}
		n, err := s.ArchiveLen(ctx)
		if err != nil {
			t.Fatalf("ArchiveLen() error = %v", err)
		}
		if n != i+1 {
			t.Fatalf("archive len = %d, want %d", n, i+1)
		}
	}

	archived, err := s.AllArchived(ctx)
	if err != nil {
		t.Fatalf("AllArchived() error = %v", err)
	}
	if len(archived) != 3 {
		t.Fatalf("archived = %d entries, want 3 (no merging in the archive)", len(archived))
	}
}

func TestRenderSummariesOrderedAndLimited(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, _, _ = s.Upsert(ctx, Record{MemoryText: "m1", Importance: ImportanceMedium, Category: "context"})
	_, _, _ = s.Upsert(ctx, Record{MemoryText: "m2", Importance: ImportanceCritical, Category: "personal_info"})
	_, _, _ = s.Upsert(ctx, Record{MemoryText: "m3", Importance: ImportanceHigh, Category: "relationship"})

	lines, err := s.RenderSummaries(ctx, 2)
	if err != nil {
		t.Fatalf("RenderSummaries() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("summaries = %d, want 2", len(lines))
	}
	if lines[0] != "[personal_info/critical] m2" {
		t.Fatalf("first summary = %q, want critical record first", lines[0])
	}
}

func TestFileStoreRoundTripAndAtomicLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, _, err := s.Upsert(ctx, Record{MemoryText: "remembers birthdays", Importance: ImportanceHigh, Category: "relationship"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.AppendRecord(ctx, Record{MemoryText: "remembers birthdays", Importance: ImportanceHigh, Category: "relationship"}); err != nil {
		t.Fatalf("AppendRecord() error = %v", err)
	}

	// Reload from disk: both stores must survive a restart.
	reloaded, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if len(reloaded.LoadWarnings()) != 0 {
		t.Fatalf("unexpected load warnings: %v", reloaded.LoadWarnings())
	}
	all, err := reloaded.All(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("reloaded core = %d records (err=%v), want 1", len(all), err)
	}
	n, err := reloaded.ArchiveLen(ctx)
	if err != nil || n != 1 {
		t.Fatalf("reloaded archive len = %d (err=%v), want 1", n, err)
	}
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, coreMemoryFile), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v, corruption must not be fatal", err)
	}
	if len(s.LoadWarnings()) != 1 {
		t.Fatalf("load warnings = %d, want 1", len(s.LoadWarnings()))
	}
	all, err := s.All(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("corrupt core should load empty, got %d records (err=%v)", len(all), err)
	}
}

func TestParseImportanceDegradesToMedium(t *testing.T) {
	cases := map[string]Importance{
		"critical": ImportanceCritical,
		" HIGH ":   ImportanceHigh,
		"medium":   ImportanceMedium,
		"extreme":  ImportanceMedium,
		"":         ImportanceMedium,
	}
	for in, want := range cases {
		if got := ParseImportance(in); got != want {
			t.Fatalf("ParseImportance(%q) = %q, want %q", in, got, want)
		}
	}
}
