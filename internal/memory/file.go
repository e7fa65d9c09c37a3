package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	coreMemoryFile     = "core_memory.json"
	longTermMemoryFile = "long_term_memory.json"
)

// FileStore persists memory as two JSON files under a data directory:
// a keyed core-memory set and an append-only long-term archive. Writes go
// through a temp-file rename so a crash never leaves a partial record on
// disk, and a corrupt file at load degrades to an empty store instead of
// failing the process.
type FileStore struct {
	mu       sync.RWMutex
	dir      string
	core     map[string]Record
	archive  []Record
	loadErrs []error
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	s := &FileStore{
		dir:  dir,
		core: make(map[string]Record),
	}

	var coreRecs []Record
	if err := loadJSONFile(filepath.Join(dir, coreMemoryFile), &coreRecs); err != nil {
		s.loadErrs = append(s.loadErrs, fmt.Errorf("core memory unreadable, starting empty: %w", err))
	}
	for _, r := range coreRecs {
		prepareRecord(&r)
		key := r.Key()
		if existing, ok := s.core[key]; ok {
			s.core[key] = Merge(existing, r)
			continue
		}
		s.core[key] = r
	}

	if err := loadJSONFile(filepath.Join(dir, longTermMemoryFile), &s.archive); err != nil {
		s.loadErrs = append(s.loadErrs, fmt.Errorf("long-term memory unreadable, starting empty: %w", err))
	}

	return s, nil
}

// LoadWarnings reports non-fatal data-integrity failures observed at load.
// The caller surfaces them once; they never abort startup.
func (s *FileStore) LoadWarnings() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]error, len(s.loadErrs))
	copy(out, s.loadErrs)
	return out
}

func (s *FileStore) Upsert(_ context.Context, rec Record) (Record, bool, error) {
	prepareRecord(&rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	existing, ok := s.core[key]
	created := !ok
	if ok {
		rec = Merge(existing, rec)
	}
	s.core[key] = rec

	if err := s.persistCoreLocked(); err != nil {
		return Record{}, false, err
	}
	return rec, created, nil
}

func (s *FileStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.core))
	for _, r := range s.core {
		out = append(out, r)
	}
	SortRecords(out)
	return out, nil
}

func (s *FileStore) RenderSummaries(ctx context.Context, limit int) ([]string, error) {
	recs, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (s *FileStore) AppendRecord(_ context.Context, rec Record) error {
	prepareRecord(&rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive = append(s.archive, rec)
	return s.persistArchiveLocked()
}

func (s *FileStore) AllArchived(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.archive))
	copy(out, s.archive)
	return out, nil
}

func (s *FileStore) ArchiveLen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.archive), nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) persistCoreLocked() error {
	recs := make([]Record, 0, len(s.core))
	for _, r := range s.core {
		recs = append(recs, r)
	}
	SortRecords(recs)
	return writeJSONFile(filepath.Join(s.dir, coreMemoryFile), recs)
}

func (s *FileStore) persistArchiveLocked() error {
	return writeJSONFile(filepath.Join(s.dir, longTermMemoryFile), s.archive)
}

func loadJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
