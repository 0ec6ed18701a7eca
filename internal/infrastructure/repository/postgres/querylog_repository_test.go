package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/qonfido/fundrag/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*QueryLogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &QueryLogRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestInsertLogAssignsID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("INSERT INTO query_logs").
		WithArgs("best sharpe funds", "hybrid", "numerical", 152.4, 210, 5, 0.83, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	entry := &domain.QueryLogEntry{
		Query:          "best sharpe funds",
		Mode:           domain.ModeHybrid,
		QueryType:      domain.QueryTypeNumerical,
		ResponseTimeMS: 152.4,
		AnswerLength:   210,
		SourcesCount:   5,
		Confidence:     0.83,
	}
	if err := repo.InsertLog(context.Background(), entry); err != nil {
		t.Fatalf("InsertLog() error = %v", err)
	}
	if entry.ID != 42 {
		t.Fatalf("expected returned id 42, got %d", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentLogsScansRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "query", "retrieval_mode", "query_type", "response_time_ms",
		"answer_length", "sources_count", "confidence", "cache_hit", "created_at",
	}).
		AddRow(int64(2), "what is nav", "semantic", "faq", 80.5, 120, 3, 0.7, true, now).
		AddRow(int64(1), "top funds", "hybrid", "numerical", 150.0, 220, 5, 0.9, false, now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, query, retrieval_mode").
		WithArgs(50).
		WillReturnRows(rows)

	logs, err := repo.RecentLogs(context.Background(), 50)
	if err != nil {
		t.Fatalf("RecentLogs() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].ID != 2 || logs[0].Mode != domain.ModeSemantic || !logs[0].CacheHit {
		t.Fatalf("unexpected first log: %+v", logs[0])
	}
	if logs[1].QueryType != domain.QueryTypeNumerical {
		t.Fatalf("unexpected second log type: %+v", logs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentLogsDefaultsLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, query, retrieval_mode").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "query", "retrieval_mode", "query_type", "response_time_ms",
			"answer_length", "sources_count", "confidence", "cache_hit", "created_at",
		}))

	if _, err := repo.RecentLogs(context.Background(), 0); err != nil {
		t.Fatalf("RecentLogs() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatsAggregatesWindow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\), AVG\(response_time_ms\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg"}).AddRow(12, 134.5))

	mock.ExpectQuery("SELECT retrieval_mode, COUNT").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"retrieval_mode", "count"}).
			AddRow("hybrid", 8).
			AddRow("lexical", 4))

	stats, err := repo.Stats(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalQueries != 12 {
		t.Fatalf("expected 12 queries, got %d", stats.TotalQueries)
	}
	if stats.AvgResponseTimeMS != 134.5 {
		t.Fatalf("expected avg 134.5, got %v", stats.AvgResponseTimeMS)
	}
	if stats.ModeDistribution["hybrid"] != 8 || stats.ModeDistribution["lexical"] != 4 {
		t.Fatalf("unexpected distribution: %v", stats.ModeDistribution)
	}
	if stats.WindowDays != 30 {
		t.Fatalf("expected 30 day window, got %d", stats.WindowDays)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatsHandlesEmptyWindow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\), AVG\(response_time_ms\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg"}).AddRow(0, nil))

	mock.ExpectQuery("SELECT retrieval_mode, COUNT").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"retrieval_mode", "count"}))

	stats, err := repo.Stats(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalQueries != 0 || stats.AvgResponseTimeMS != 0 {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertFeedbackRejectsBadRating(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	err := repo.InsertFeedback(context.Background(), &domain.QueryFeedback{Rating: 9})
	if err == nil {
		t.Fatalf("expected rating validation error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertFeedbackStoresOptionalFields(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	logID := int64(42)
	helpful := true
	mock.ExpectQuery("INSERT INTO query_feedback").
		WithArgs(logID, 5, true, "great answer", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	feedback := &domain.QueryFeedback{
		QueryLogID: &logID,
		Rating:     5,
		Helpful:    &helpful,
		Comment:    "great answer",
	}
	if err := repo.InsertFeedback(context.Background(), feedback); err != nil {
		t.Fatalf("InsertFeedback() error = %v", err)
	}
	if feedback.ID != 7 {
		t.Fatalf("expected returned id 7, got %d", feedback.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
