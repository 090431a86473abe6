package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ci-tracker/src/contracts"
)

// Reader queries a ledger.
type Reader struct {
	ledger
	owned bool
}

// Close releases the connection when the reader owns it.
func (r *Reader) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

// Commits returns the commit window, newest first.
func (r *Reader) Commits(ctx context.Context) ([]contracts.Commit, error) {
	rows, err := r.query(ctx, `SELECT sha, unix_time, idx, message, url, avatar_url, author_login FROM {commits} ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var commits []contracts.Commit
	for rows.Next() {
		var (
			c                        contracts.Commit
			message, url, avatar, by sql.NullString
		)
		if err := rows.Scan(&c.SHA, &c.UnixTime, &c.Index, &message, &url, &avatar, &by); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		c.Message, c.URL, c.AuthorAvatarURL, c.AuthorLogin = message.String, url.String, avatar.String, by.String
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commits: %w", err)
	}
	return commits, nil
}

// Rows returns every ledger row ordered by test name, commit and job.
func (r *Reader) Rows(ctx context.Context) ([]contracts.LedgerRow, error) {
	rows, err := r.query(ctx, `
		SELECT test_name, status, build_env, os, job_url, job_id, sha, test_duration_s, is_labeled_flaky, owner, is_staging_test
		FROM {test_result}
		ORDER BY test_name, sha, job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}
	defer rows.Close()

	var out []contracts.LedgerRow
	for rows.Next() {
		var (
			row                 contracts.LedgerRow
			status              string
			env, os, url, owner sql.NullString
			duration            sql.NullFloat64
			flaky, staging      sql.NullBool
		)
		if err := rows.Scan(&row.TestName, &status, &env, &os, &url, &row.JobID, &row.SHA,
			&duration, &flaky, &owner, &staging); err != nil {
			return nil, fmt.Errorf("failed to scan test result: %w", err)
		}
		row.Status = contracts.Status(status)
		row.BuildEnv, row.OS, row.JobURL, row.Owner = env.String, os.String, url.String, owner.String
		row.DurationSeconds = duration.Float64
		row.IsLabeledFlaky, row.IsStaging = flaky.Bool, staging.Bool
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test results: %w", err)
	}
	return out, nil
}

// PRBuildTimes returns the recorded PR pipeline builds.
func (r *Reader) PRBuildTimes(ctx context.Context) ([]contracts.PRBuildTime, error) {
	rows, err := r.query(ctx, `
		SELECT sha, created_by, state, url, created_at, started_at, finished_at, pull_id
		FROM {pr_time}
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query PR build times: %w", err)
	}
	defer rows.Close()

	var out []contracts.PRBuildTime
	for rows.Next() {
		var (
			b                          contracts.PRBuildTime
			by, url, pull              sql.NullString
			created, started, finished sql.NullString
		)
		if err := rows.Scan(&b.SHA, &by, &b.State, &url, &created, &started, &finished, &pull); err != nil {
			return nil, fmt.Errorf("failed to scan PR build time: %w", err)
		}
		b.CreatedBy, b.URL, b.PullID = by.String, url.String, pull.String
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if b.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if b.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating PR build times: %w", err)
	}
	return out, nil
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, fmt.Errorf("malformed timestamp %q: %w", s.String, err)
	}
	return &t, nil
}
