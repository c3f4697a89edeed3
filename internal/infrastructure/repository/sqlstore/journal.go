package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

// Journal persists per-document outcomes of every run.
type Journal struct {
	db      *sql.DB
	dialect Dialect
}

func NewJournal(db *sql.DB, dialect Dialect) *Journal {
	if dialect == "" {
		dialect = DialectPostgres
	}
	return &Journal{db: db, dialect: dialect}
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if j.dialect == DialectPostgres {
		// Serialize bootstrap DDL across sorter/worker startups.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
	}

	for _, stmt := range j.schema() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema ddl: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (j *Journal) schema() []string {
	ts := "TIMESTAMPTZ"
	id := "BIGSERIAL PRIMARY KEY"
	if j.dialect == DialectSQLite {
		ts = "DATETIME"
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS classification_results (
	id ` + id + `,
	run_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	filename TEXT NOT NULL,
	doc_type TEXT NOT NULL,
	category_id INTEGER NOT NULL,
	category TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	explanation TEXT NOT NULL,
	outcome TEXT NOT NULL,
	destination TEXT NOT NULL,
	method TEXT NOT NULL,
	pages INTEGER NOT NULL,
	chars INTEGER NOT NULL,
	truncated BOOLEAN NOT NULL,
	warnings TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	processed_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_classification_results_run ON classification_results(run_id)`,
		`CREATE TABLE IF NOT EXISTS classification_failures (
	id ` + id + `,
	run_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	filename TEXT NOT NULL,
	stage TEXT NOT NULL,
	error_message TEXT NOT NULL,
	failed_at ` + ts + ` NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_classification_failures_run ON classification_failures(run_id)`,
	}
}

func (j *Journal) RecordResult(ctx context.Context, r domain.ProcessingResult) error {
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	processedAt := r.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	_, err = j.db.ExecContext(ctx, j.dialect.rebind(`
INSERT INTO classification_results (
	run_id, source_path, filename, doc_type, category_id, category, confidence, explanation, outcome,
	destination, method, pages, chars, truncated, warnings, duration_ms, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`),
		r.RunID, r.Document.Path, r.Document.Name, string(r.Document.Type), r.Assignment.CategoryID, r.Category,
		r.Assignment.Confidence, r.Assignment.Explanation, string(r.Assignment.Outcome),
		r.Destination, string(r.Extraction.Method), r.Extraction.Pages, r.Extraction.Chars, r.Extraction.Truncated,
		string(warningsJSON), r.Duration.Milliseconds(), processedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert classification result: %w", err)
	}
	return nil
}

func (j *Journal) RecordFailure(ctx context.Context, f domain.DocumentFailure) error {
	msg := f.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	_, err := j.db.ExecContext(ctx, j.dialect.rebind(`
INSERT INTO classification_failures (run_id, source_path, filename, stage, error_message, failed_at)
VALUES ($1,$2,$3,$4,$5,$6)
`),
		f.RunID, f.Document.Path, f.Document.Name, string(f.Stage), msg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert classification failure: %w", err)
	}
	return nil
}

// ListResults returns the journaled results of one run ordered by file name.
func (j *Journal) ListResults(ctx context.Context, runID string) ([]domain.ProcessingResult, error) {
	rows, err := j.db.QueryContext(ctx, j.dialect.rebind(`
SELECT run_id, source_path, filename, doc_type, category_id, category, confidence, explanation, outcome,
	destination, method, pages, chars, truncated, warnings, duration_ms, processed_at
FROM classification_results
WHERE run_id = $1
ORDER BY filename ASC, id ASC
`), runID)
	if err != nil {
		return nil, fmt.Errorf("query classification results: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessingResult
	for rows.Next() {
		var (
			r           domain.ProcessingResult
			docType     string
			outcome     string
			method      string
			warningsRaw string
			durationMS  int64
		)
		if err := rows.Scan(
			&r.RunID, &r.Document.Path, &r.Document.Name, &docType, &r.Assignment.CategoryID, &r.Category,
			&r.Assignment.Confidence, &r.Assignment.Explanation, &outcome,
			&r.Destination, &method, &r.Extraction.Pages, &r.Extraction.Chars, &r.Extraction.Truncated,
			&warningsRaw, &durationMS, &r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan classification result: %w", err)
		}
		if err := json.Unmarshal([]byte(warningsRaw), &r.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
		r.Document.Type = domain.DocumentType(docType)
		r.Assignment.Outcome = domain.AssignmentOutcome(outcome)
		r.Extraction.Method = domain.ExtractionMethod(method)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification results: %w", err)
	}
	return out, nil
}

// ListFailures returns the journaled failures of one run ordered by file name.
func (j *Journal) ListFailures(ctx context.Context, runID string) ([]domain.DocumentFailure, error) {
	rows, err := j.db.QueryContext(ctx, j.dialect.rebind(`
SELECT run_id, source_path, filename, stage, error_message
FROM classification_failures
WHERE run_id = $1
ORDER BY filename ASC, id ASC
`), runID)
	if err != nil {
		return nil, fmt.Errorf("query classification failures: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentFailure
	for rows.Next() {
		var (
			f     domain.DocumentFailure
			stage string
		)
		if err := rows.Scan(&f.RunID, &f.Document.Path, &f.Document.Name, &stage, &f.Message); err != nil {
			return nil, fmt.Errorf("scan classification failure: %w", err)
		}
		f.Stage = domain.FailureStage(stage)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification failures: %w", err)
	}
	return out, nil
}
