package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*FilingRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &FilingRepository{db: db}, mock, func() { _ = db.Close() }
}

var filingColumns = []string{
	"ticker", "fiscal_year", "storage_path", "workbook_path", "status",
	"section_count", "table_count", "error_message", "created_at", "updated_at",
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS filings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByKeyReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT ticker, fiscal_year, storage_path").
		WithArgs("MISS", 2023).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByKey(context.Background(), domain.FilingKey{Ticker: "MISS", FiscalYear: 2023})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByKeyScansRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT ticker, fiscal_year, storage_path").
		WithArgs("ACME", 2023).
		WillReturnRows(sqlmock.NewRows(filingColumns).
			AddRow("ACME", 2023, "filings/ACME/2023.json", "", "indexed", 4, 2, "", now, now))

	rec, err := repo.GetByKey(context.Background(), domain.FilingKey{Ticker: "ACME", FiscalYear: 2023})
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if rec.Status != domain.FilingIndexed || rec.SectionCount != 4 || !rec.CreatedAt.Equal(now) {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestListByStatusBuildsInClause(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery(`WHERE status IN \(\$1,\$2\)`).
		WithArgs("ingested", "indexed").
		WillReturnRows(sqlmock.NewRows(filingColumns).
			AddRow("ACME", 2022, "filings/ACME/2022.json", "", "indexed", 1, 1, "", now, now).
			AddRow("ACME", 2023, "filings/ACME/2023.json", "filings/ACME/2023.xlsx", "ingested", 1, 0, "", now, now))

	recs, err := repo.ListByStatus(context.Background(), domain.FilingIngested, domain.FilingIndexed)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(recs) != 2 || recs[1].WorkbookPath != "filings/ACME/2023.xlsx" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE filings").
		WithArgs("MISS", 2023, string(domain.FilingFailed), "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), domain.FilingKey{Ticker: "MISS", FiscalYear: 2023}, domain.FilingFailed, "boom")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertAndRecordIndexBuild(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rec := &domain.FilingRecord{
		FilingKey:   domain.FilingKey{Ticker: "ACME", FiscalYear: 2023},
		StoragePath: "filings/ACME/2023.json",
		Status:      domain.FilingIngested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	mock.ExpectExec("INSERT INTO filings").
		WithArgs("ACME", 2023, "filings/ACME/2023.json", "", "ingested", 0, 0, "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO index_builds").
		WithArgs("v1", "tables", "hnsw", 12, 1, true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	build := domain.IndexBuild{Version: "v1", Corpus: domain.CorpusTables, Kind: "hnsw", Size: 12, Filings: 1, Persisted: true, BuiltAt: now}
	if err := repo.RecordIndexBuild(context.Background(), build); err != nil {
		t.Fatalf("RecordIndexBuild() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLatestBuilds(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT DISTINCT ON \\(corpus\\)").
		WillReturnRows(sqlmock.NewRows([]string{"version", "corpus", "kind", "size", "filings", "persisted", "built_at"}).
			AddRow("v2", "text", "flat", 40, 2, true, now))

	builds, err := repo.LatestBuilds(context.Background())
	if err != nil {
		t.Fatalf("LatestBuilds() error = %v", err)
	}
	if len(builds) != 1 || builds[0].Corpus != domain.CorpusText {
		t.Fatalf("unexpected builds %+v", builds)
	}
}
