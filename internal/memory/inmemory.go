package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	core    map[string]Record
	archive []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{core: make(map[string]Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, rec Record) (Record, bool, error) {
	prepareRecord(&rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	existing, ok := s.core[key]
	if !ok {
		s.core[key] = rec
		return rec, true, nil
	}
	merged := Merge(existing, rec)
	s.core[key] = merged
	return merged, false, nil
}

func (s *InMemoryStore) All(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.core))
	for _, r := range s.core {
		out = append(out, r)
	}
	SortRecords(out)
	return out, nil
}

func (s *InMemoryStore) RenderSummaries(ctx context.Context, limit int) ([]string, error) {
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

func (s *InMemoryStore) AppendRecord(_ context.Context, rec Record) error {
	prepareRecord(&rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive = append(s.archive, rec)
	return nil
}

func (s *InMemoryStore) AllArchived(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.archive))
	copy(out, s.archive)
	return out, nil
}

func (s *InMemoryStore) ArchiveLen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.archive), nil
}

func (s *InMemoryStore) Close() error { return nil }

func prepareRecord(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Importance.Rank() == 0 {
		rec.Importance = ImportanceMedium
	}
}
