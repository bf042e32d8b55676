package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirillkom/kt-search/internal/core/domain"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type SearchLogRepository struct {
	db *sql.DB
}

func NewSearchLogRepository(db *sql.DB) *SearchLogRepository {
	return &SearchLogRepository{db: db}
}

func (r *SearchLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025091001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS search_logs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL,
	classification_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	answer_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	success BOOLEAN NOT NULL,
	total_candidates INTEGER NOT NULL DEFAULT 0,
	selected INTEGER NOT NULL DEFAULT 0,
	strategy TEXT,
	used_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_logs_created_at ON search_logs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SearchLogRepository) Insert(ctx context.Context, entry domain.SearchLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO search_logs (
	id, query, query_type, classification_confidence, answer_confidence, success,
	total_candidates, selected, strategy, used_fallback, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		entry.ID, entry.Query, entry.QueryType, entry.ClassificationConfidence, entry.AnswerConfidence,
		entry.Success, entry.TotalCandidates, entry.Selected, entry.Strategy, entry.UsedFallback,
		entry.DurationMS, entry.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrProviderUnavailable, "insert search log", err)
	}
	return nil
}

// Recent returns the newest entries first. Limits outside (0, 500] fall
// back to the default or the cap.
func (r *SearchLogRepository) Recent(ctx context.Context, limit int) ([]domain.SearchLogEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultRecentLimit
	case limit > maxRecentLimit:
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, query, query_type, classification_confidence, answer_confidence, success,
	total_candidates, selected, strategy, used_fallback, duration_ms, created_at
FROM search_logs
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "list search logs", err)
	}
	defer rows.Close()

	out := make([]domain.SearchLogEntry, 0, limit)
	for rows.Next() {
		var (
			e        domain.SearchLogEntry
			strategy sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.Query, &e.QueryType, &e.ClassificationConfidence, &e.AnswerConfidence, &e.Success,
			&e.TotalCandidates, &e.Selected, &strategy, &e.UsedFallback, &e.DurationMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan search log: %w", err)
		}
		e.Strategy = strategy.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "iterate search logs", err)
	}
	return out, nil
}
