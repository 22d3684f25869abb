package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

type FilingRepository struct {
	db *sql.DB
}

func NewFilingRepository(db *sql.DB) *FilingRepository {
	return &FilingRepository{db: db}
}

func (r *FilingRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS filings (
	ticker TEXT NOT NULL,
	fiscal_year INTEGER NOT NULL,
	storage_path TEXT NOT NULL,
	workbook_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	section_count INTEGER NOT NULL DEFAULT 0,
	table_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (ticker, fiscal_year)
);

CREATE INDEX IF NOT EXISTS idx_filings_status ON filings(status);

CREATE TABLE IF NOT EXISTS index_builds (
	version TEXT PRIMARY KEY,
	corpus TEXT NOT NULL,
	kind TEXT NOT NULL,
	size INTEGER NOT NULL,
	filings INTEGER NOT NULL,
	persisted BOOLEAN NOT NULL DEFAULT FALSE,
	built_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_builds_corpus ON index_builds(corpus, built_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FilingRepository) Upsert(ctx context.Context, rec *domain.FilingRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO filings (
	ticker, fiscal_year, storage_path, workbook_path, status, section_count, table_count, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (ticker, fiscal_year) DO UPDATE SET
	storage_path = EXCLUDED.storage_path,
	workbook_path = EXCLUDED.workbook_path,
	status = EXCLUDED.status,
	section_count = EXCLUDED.section_count,
	table_count = EXCLUDED.table_count,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
`,
		rec.Ticker, rec.FiscalYear, rec.StoragePath, rec.WorkbookPath, string(rec.Status),
		rec.SectionCount, rec.TableCount, rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert filing: %w", err)
	}
	return nil
}

const selectFiling = `
SELECT ticker, fiscal_year, storage_path, workbook_path, status, section_count, table_count, error_message, created_at, updated_at
FROM filings
`

type scanner interface {
	Scan(dest ...any) error
}

func scanFiling(row scanner) (domain.FilingRecord, error) {
	var rec domain.FilingRecord
	var status string
	err := row.Scan(
		&rec.Ticker, &rec.FiscalYear, &rec.StoragePath, &rec.WorkbookPath, &status,
		&rec.SectionCount, &rec.TableCount, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt,
	)
	rec.Status = domain.FilingStatus(status)
	return rec, err
}

func (r *FilingRepository) GetByKey(ctx context.Context, key domain.FilingKey) (*domain.FilingRecord, error) {
	row := r.db.QueryRowContext(ctx, selectFiling+`WHERE ticker = $1 AND fiscal_year = $2`, key.Ticker, key.FiscalYear)
	rec, err := scanFiling(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get filing", fmt.Errorf("filing %s", key))
		}
		return nil, fmt.Errorf("scan filing: %w", err)
	}
	return &rec, nil
}

func (r *FilingRepository) ListByStatus(ctx context.Context, statuses ...domain.FilingStatus) ([]domain.FilingRecord, error) {
	query := selectFiling
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, string(s))
		}
		query += `WHERE status IN (` + strings.Join(placeholders, ",") + `)
`
	}
	query += `ORDER BY ticker, fiscal_year`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()

	var out []domain.FilingRecord
	for rows.Next() {
		rec, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filings: %w", err)
	}
	return out, nil
}

func (r *FilingRepository) UpdateStatus(ctx context.Context, key domain.FilingKey, status domain.FilingStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE filings
SET status = $3, error_message = $4, updated_at = $5
WHERE ticker = $1 AND fiscal_year = $2
`, key.Ticker, key.FiscalYear, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update filing status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update filing status rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update filing status", fmt.Errorf("filing %s", key))
	}
	return nil
}

func (r *FilingRepository) RecordIndexBuild(ctx context.Context, build domain.IndexBuild) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO index_builds (version, corpus, kind, size, filings, persisted, built_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (version) DO UPDATE SET persisted = EXCLUDED.persisted
`, build.Version, string(build.Corpus), build.Kind, build.Size, build.Filings, build.Persisted, build.BuiltAt)
	if err != nil {
		return fmt.Errorf("record index build: %w", err)
	}
	return nil
}

// LatestBuilds returns the newest recorded build per corpus.
func (r *FilingRepository) LatestBuilds(ctx context.Context) ([]domain.IndexBuild, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (corpus) version, corpus, kind, size, filings, persisted, built_at
FROM index_builds
ORDER BY corpus, built_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list index builds: %w", err)
	}
	defer rows.Close()

	var out []domain.IndexBuild
	for rows.Next() {
		var b domain.IndexBuild
		var corpus string
		if err := rows.Scan(&b.Version, &corpus, &b.Kind, &b.Size, &b.Filings, &b.Persisted, &b.BuiltAt); err != nil {
			return nil, fmt.Errorf("scan index build: %w", err)
		}
		b.Corpus = domain.Corpus(corpus)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index builds: %w", err)
	}
	return out, nil
}
