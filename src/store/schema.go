package store

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE {test_result} (
		test_name TEXT,
		status TEXT,
		build_env TEXT,
		os TEXT,
		job_url TEXT,
		job_id TEXT,
		sha TEXT,
		test_duration_s DOUBLE PRECISION,
		is_labeled_flaky BOOLEAN,
		owner TEXT,
		is_staging_test BOOLEAN
	)`,
	`CREATE TABLE {commits} (
		sha TEXT,
		unix_time BIGINT,
		idx INTEGER,
		message TEXT,
		url TEXT,
		avatar_url TEXT,
		author_login TEXT
	)`,
	`CREATE TABLE {pr_time} (
		sha TEXT,
		created_by TEXT,
		state TEXT,
		url TEXT,
		created_at TEXT,
		started_at TEXT,
		finished_at TEXT,
		pull_id TEXT,
		duration_min DOUBLE PRECISION
	)`,
	`CREATE INDEX test_result_hot_path_job_id ON {test_result} (job_id)`,
	`CREATE INDEX test_result_hot_path_test_name ON {test_result} (test_name)`,
}

func (w *Writer) createSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := w.exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ledger schema: %w", err)
		}
	}
	return nil
}
