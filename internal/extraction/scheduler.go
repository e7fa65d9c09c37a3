package extraction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/antoniostano/airis/internal/convo"
	"github.com/antoniostano/airis/internal/memory"
	"github.com/antoniostano/airis/internal/observability"
	"github.com/antoniostano/airis/internal/policy"
)

// Extractor is the external language-model boundary for memory extraction.
// Calls run to completion or failure; they are never force-killed, their
// result is simply discarded when superseded.
type Extractor interface {
	ExtractMemories(ctx context.Context, snap convo.Snapshot) ([]memory.Record, error)
}

// Result is the outcome of one extraction pass over a snapshot.
type Result struct {
	Fingerprint uint64
	TakenAt     time.Time
	Accepted    []memory.Record
	Merged      int
	Created     int
	Stale       int
}

var ErrEmptySnapshot = errors.New("extraction: empty snapshot")

const defaultCacheMaxEntries = 32

// Config tunes the scheduler's triggers and limits.
type Config struct {
	// CallTimeout bounds the external extraction call. Mandatory; a zero
	// value falls back to 30s.
	CallTimeout time.Duration
	// TurnThreshold triggers a pass once this many unseen turns accumulate.
	// Zero disables the turn-count trigger.
	TurnThreshold int
	// CronSpec schedules periodic passes (robfig/cron syntax). Empty
	// disables the timer trigger.
	CronSpec string
	// CacheMaxEntries bounds the completed-fingerprint cache.
	CacheMaxEntries int
}

// Scheduler dedupes, throttles, and applies memory-extraction passes.
// Work is keyed by snapshot content fingerprint: concurrent requests for
// identical content collapse into one external call, and completed
// fingerprints return the cached outcome without a new call.
type Scheduler struct {
	extractor Extractor
	store     memory.Store
	snapshot  func() convo.Snapshot
	cfg       Config
	metrics   *observability.Metrics
	logger    *log.Logger

	group singleflight.Group

	mu        sync.Mutex
	cache     map[uint64]Result
	cacheLRU  []uint64
	appliedAt map[string]time.Time
}

// NewScheduler wires the scheduler. snapshot supplies a fresh snapshot for
// timer and turn-count triggers; explicit callers pass their own.
func NewScheduler(
	extractor Extractor,
	store memory.Store,
	snapshot func() convo.Snapshot,
	cfg Config,
	metrics *observability.Metrics,
	logger *log.Logger,
) *Scheduler {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = defaultCacheMaxEntries
	}
	return &Scheduler{
		extractor: extractor,
		store:     store,
		snapshot:  snapshot,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		cache:     make(map[uint64]Result),
		appliedAt: make(map[string]time.Time),
	}
}

// Request runs (or joins, or replays) the extraction pass for snap. It is
// idempotent per snapshot content: callers with equal snapshots observe the
// same Result and at most one external call occurs.
func (s *Scheduler) Request(ctx context.Context, snap convo.Snapshot) (Result, error) {
	if snap.Empty() {
		return Result{}, ErrEmptySnapshot
	}

	fp := snap.Fingerprint()
	if res, ok := s.cachedResult(fp); ok {
		s.metrics.ExtractionEvents.WithLabelValues("cache_hit").Inc()
		return res, nil
	}

	v, err, shared := s.group.Do(strconv.FormatUint(fp, 16), func() (any, error) {
		if res, ok := s.cachedResult(fp); ok {
			return res, nil
		}
		return s.runPass(ctx, snap)
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		s.metrics.ExtractionEvents.WithLabelValues("coalesced").Inc()
	}
	return v.(Result), nil
}

func (s *Scheduler) runPass(ctx context.Context, snap convo.Snapshot) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	started := time.Now()
	s.metrics.ExtractionEvents.WithLabelValues("dispatched").Inc()

	items, err := s.extractor.ExtractMemories(callCtx, snap)
	s.metrics.ObserveExtractionLatency(time.Since(started))
	if err != nil {
		// Discard the attempt; the next natural trigger re-attempts with
		// a fresh snapshot. No automatic retry here.
		s.metrics.ExtractionEvents.WithLabelValues("failed").Inc()
		s.logger.Warn("extraction pass failed", "fingerprint", snap.Fingerprint(), "err", err)
		return Result{}, fmt.Errorf("extraction pass: %w", err)
	}

	res, err := s.apply(ctx, snap, items)
	if err != nil {
		s.metrics.ExtractionEvents.WithLabelValues("apply_failed").Inc()
		s.logger.Error("extraction result apply failed", "fingerprint", snap.Fingerprint(), "err", err)
		return Result{}, err
	}

	s.storeResult(res)
	s.metrics.ExtractionEvents.WithLabelValues("completed").Inc()
	return res, nil
}

// ApplyInline merges items the model volunteered inside a chat response,
// outside a scheduled pass. They go through the same merge and staleness
// rules as extracted items so core memory has a single write path.
func (s *Scheduler) ApplyInline(ctx context.Context, snap convo.Snapshot, items []memory.Record) (Result, error) {
	if len(items) == 0 {
		return Result{Fingerprint: snap.Fingerprint(), TakenAt: snap.TakenAt()}, nil
	}
	res, err := s.apply(ctx, snap, items)
	if err != nil {
		s.metrics.ExtractionEvents.WithLabelValues("inline_apply_failed").Inc()
		return Result{}, err
	}
	s.metrics.ExtractionEvents.WithLabelValues("inline_applied").Inc()
	return res, nil
}

// apply merges accepted items into core memory and appends them verbatim to
// the long-term archive. Out-of-order completion is resolved by snapshot
// capture time: an item whose core key was already written by a later
// snapshot does not touch core memory, but is still archived.
func (s *Scheduler) apply(ctx context.Context, snap convo.Snapshot, items []memory.Record) (Result, error) {
	res := Result{Fingerprint: snap.Fingerprint(), TakenAt: snap.TakenAt()}

	for _, item := range items {
		if redacted, changed := policy.RedactPII(item.MemoryText); changed {
			item.MemoryText = redacted
			s.metrics.ExtractionEvents.WithLabelValues("pii_redacted").Inc()
		}
		if err := s.store.AppendRecord(ctx, item); err != nil {
			return Result{}, fmt.Errorf("archive append: %w", err)
		}

		if s.staleForKey(item.Key(), snap.TakenAt()) {
			res.Stale++
			res.Accepted = append(res.Accepted, item)
			continue
		}

		merged, created, err := s.store.Upsert(ctx, item)
		if err != nil {
			return Result{}, fmt.Errorf("core upsert: %w", err)
		}
		s.markApplied(item.Key(), snap.TakenAt())
		if created {
			res.Created++
		} else {
			res.Merged++
		}
		res.Accepted = append(res.Accepted, merged)
	}

	if core, err := s.store.All(ctx); err == nil {
		s.metrics.CoreMemoryRecords.Set(float64(len(core)))
	}
	return res, nil
}

func (s *Scheduler) staleForKey(key string, takenAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied, ok := s.appliedAt[key]
	return ok && applied.After(takenAt)
}

func (s *Scheduler) markApplied(key string, takenAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if takenAt.After(s.appliedAt[key]) {
		s.appliedAt[key] = takenAt
	}
}

func (s *Scheduler) cachedResult(fp uint64) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.cache[fp]
	return res, ok
}

func (s *Scheduler) storeResult(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[res.Fingerprint]; !ok {
		s.cacheLRU = append(s.cacheLRU, res.Fingerprint)
	}
	s.cache[res.Fingerprint] = res

	for len(s.cacheLRU) > s.cfg.CacheMaxEntries {
		evict := s.cacheLRU[0]
		s.cacheLRU = s.cacheLRU[1:]
		delete(s.cache, evict)
	}
}
