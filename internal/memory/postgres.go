package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists core and long-term memory in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS core_memory (
			id TEXT PRIMARY KEY,
			memory_key TEXT NOT NULL UNIQUE,
			memory_text TEXT NOT NULL,
			importance_level TEXT NOT NULL,
			importance_rank SMALLINT NOT NULL,
			category TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_core_memory_rank_ts ON core_memory (importance_rank DESC, ts DESC);`,
		`CREATE TABLE IF NOT EXISTS long_term_memory (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			memory_text TEXT NOT NULL,
			importance_level TEXT NOT NULL,
			category TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) (Record, bool, error) {
	prepareRecord(&rec)

	// The merge rule lives in SQL so concurrent writers resolve on the
	// server: higher importance rank wins, later timestamp wins.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO core_memory (id, memory_key, memory_text, importance_level, importance_rank, category, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (memory_key) DO UPDATE SET
			importance_level = CASE WHEN EXCLUDED.importance_rank > core_memory.importance_rank
				THEN EXCLUDED.importance_level ELSE core_memory.importance_level END,
			importance_rank = GREATEST(core_memory.importance_rank, EXCLUDED.importance_rank),
			ts = GREATEST(core_memory.ts, EXCLUDED.ts)
		 RETURNING id, memory_text, importance_level, category, ts, (xmax = 0) AS inserted`,
		rec.ID, rec.Key(), rec.MemoryText, string(rec.Importance), rec.Importance.Rank(), rec.Category, rec.Timestamp,
	)

	var out Record
	var importance string
	var inserted bool
	if err := row.Scan(&out.ID, &out.MemoryText, &importance, &out.Category, &out.Timestamp, &inserted); err != nil {
		return Record{}, false, fmt.Errorf("upsert core memory: %w", err)
	}
	out.Importance = ParseImportance(importance)
	return out, inserted, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, memory_text, importance_level, category, ts
		 FROM core_memory ORDER BY importance_rank DESC, ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("query core memory: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) RenderSummaries(ctx context.Context, limit int) ([]string, error) {
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

func (s *PostgresStore) AppendRecord(ctx context.Context, rec Record) error {
	prepareRecord(&rec)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO long_term_memory (id, memory_text, importance_level, category, ts)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.MemoryText, string(rec.Importance), rec.Category, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append long-term memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) AllArchived(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, memory_text, importance_level, category, ts
		 FROM long_term_memory ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query long-term memory: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) ArchiveLen(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM long_term_memory`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count long-term memory: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows pgxRows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var importance string
		if err := rows.Scan(&r.ID, &r.MemoryText, &importance, &r.Category, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		r.Importance = ParseImportance(importance)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}
