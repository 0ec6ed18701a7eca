package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/qonfido/fundrag/internal/core/domain"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// QueryLogRepository persists query analytics and feedback.
type QueryLogRepository struct {
	db *sql.DB
}

func NewQueryLogRepository(db *sql.DB) *QueryLogRepository {
	return &QueryLogRepository{db: db}
}

func (r *QueryLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/indexer startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS query_logs (
	id BIGSERIAL PRIMARY KEY,
	query TEXT NOT NULL,
	retrieval_mode TEXT NOT NULL,
	query_type TEXT,
	response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	answer_length INTEGER NOT NULL DEFAULT 0,
	sources_count INTEGER NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_logs_created_at ON query_logs(created_at DESC);

CREATE TABLE IF NOT EXISTS query_feedback (
	id BIGSERIAL PRIMARY KEY,
	query_log_id BIGINT REFERENCES query_logs(id) ON DELETE SET NULL,
	rating INTEGER NOT NULL,
	helpful BOOLEAN,
	comment TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_feedback_log_id ON query_feedback(query_log_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) InsertLog(ctx context.Context, entry *domain.QueryLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO query_logs (
	query, retrieval_mode, query_type, response_time_ms, answer_length, sources_count, confidence, cache_hit, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`,
		entry.Query, string(entry.Mode), string(entry.QueryType), entry.ResponseTimeMS,
		entry.AnswerLength, entry.SourcesCount, entry.Confidence, entry.CacheHit, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

func (r *QueryLogRepository) RecentLogs(ctx context.Context, limit int) ([]domain.QueryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, query, retrieval_mode, query_type, response_time_ms, answer_length, sources_count, confidence, cache_hit, created_at
FROM query_logs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.QueryLogEntry
	for rows.Next() {
		var entry domain.QueryLogEntry
		var mode, queryType string
		if err := rows.Scan(
			&entry.ID, &entry.Query, &mode, &queryType, &entry.ResponseTimeMS,
			&entry.AnswerLength, &entry.SourcesCount, &entry.Confidence, &entry.CacheHit, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		entry.Mode = domain.QueryMode(mode)
		entry.QueryType = domain.QueryType(queryType)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query logs: %w", err)
	}
	return logs, nil
}

func (r *QueryLogRepository) Stats(ctx context.Context, window time.Duration) (domain.QueryStats, error) {
	cutoff := time.Now().UTC().Add(-window)
	stats := domain.QueryStats{
		ModeDistribution: map[string]int{},
		WindowDays:       int(window.Hours() / 24),
	}

	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), AVG(response_time_ms)
FROM query_logs
WHERE created_at >= $1
`, cutoff).Scan(&stats.TotalQueries, &avg)
	if err != nil {
		return domain.QueryStats{}, fmt.Errorf("aggregate query stats: %w", err)
	}
	if avg.Valid {
		stats.AvgResponseTimeMS = avg.Float64
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT retrieval_mode, COUNT(*)
FROM query_logs
WHERE created_at >= $1
GROUP BY retrieval_mode
`, cutoff)
	if err != nil {
		return domain.QueryStats{}, fmt.Errorf("aggregate mode distribution: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mode string
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			return domain.QueryStats{}, fmt.Errorf("scan mode distribution: %w", err)
		}
		stats.ModeDistribution[mode] = count
	}
	if err := rows.Err(); err != nil {
		return domain.QueryStats{}, fmt.Errorf("iterate mode distribution: %w", err)
	}
	return stats, nil
}

func (r *QueryLogRepository) InsertFeedback(ctx context.Context, feedback *domain.QueryFeedback) error {
	if feedback.Rating < 1 || feedback.Rating > 5 {
		return domain.WrapError(domain.ErrInvalidInput, "feedback.insert",
			fmt.Errorf("rating %d outside 1..5", feedback.Rating))
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO query_feedback (query_log_id, rating, helpful, comment, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`,
		feedback.QueryLogID, feedback.Rating, feedback.Helpful, feedback.Comment, feedback.CreatedAt,
	).Scan(&feedback.ID)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}
