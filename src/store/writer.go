package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"ci-tracker/src/contracts"
	"ci-tracker/src/logger"
	"ci-tracker/src/sanitize"
)

// Writer fills a staged ledger. Writes must happen from one goroutine and in
// order: granular build results for a job before the coarse verdict of that job.
type Writer struct {
	ledger
	engine engine
	log    logger.Logger
	closed bool
}

const insertRow = `INSERT INTO {test_result}
	(test_name, status, build_env, os, job_url, job_id, sha, test_duration_s, is_labeled_flaky, owner, is_staging_test)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// TestName namespaces a test by the os it ran on. Names that already carry a
// scheme, like release://, are kept as they are.
func TestName(os, name string) string {
	if strings.Contains(name, "://") {
		return name
	}
	return os + ":" + name
}

// CoarseName returns the ledger name of a whole-job row.
func CoarseName(job contracts.JobStatus) (string, bool) {
	switch job.Provider {
	case contracts.ProviderBuildkite:
		return "bk://" + job.Label, true
	case contracts.ProviderGitHubActions:
		return fmt.Sprintf("%s://github-action/%s", job.OS, job.BuildEnv), true
	case contracts.ProviderTravis:
		return fmt.Sprintf("%s://travis/%s", job.OS, sanitize.TravisEnv(job.BuildEnv)), true
	default:
		return "", false
	}
}

// Reader returns a reader over the staged ledger. It shares the writer's
// connection and must not be used after Publish or Discard.
func (w *Writer) Reader() *Reader {
	return &Reader{ledger: w.ledger}
}

// WriteCommits records the commit window.
func (w *Writer) WriteCommits(ctx context.Context, commits []contracts.Commit) error {
	err := w.inTx(ctx, func(prepare func(string) (*sql.Stmt, error)) error {
		stmt, err := prepare(`INSERT INTO {commits} (sha, unix_time, idx, message, url, avatar_url, author_login) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range commits {
			if _, err := stmt.ExecContext(ctx, c.SHA, c.UnixTime, c.Index, c.Message, c.URL, c.AuthorAvatarURL, c.AuthorLogin); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write commits: %w", err)
	}
	return nil
}

// WriteBuildResults records one row per test result. A test is flaky when
// its build log labels it so or when flaky reports it; flaky may be nil.
// Results without a verdict are skipped.
func (w *Writer) WriteBuildResults(ctx context.Context, builds []contracts.BuildResult, flaky FlakyLookup) error {
	n := 0
	err := w.inTx(ctx, func(prepare func(string) (*sql.Stmt, error)) error {
		stmt, err := prepare(insertRow)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range builds {
			for _, r := range b.Results {
				if !r.Status.Known() {
					continue
				}
				name := TestName(b.OS, r.TestName)
				labeled := r.IsLabeledFlaky || (flaky != nil && flaky.IsFlaky(ctx, name))
				owner := r.Owner
				if owner == "" {
					owner = contracts.OwnerUnknown
				}
				if _, err := stmt.ExecContext(ctx, name, string(r.Status), b.BuildEnv, b.OS, b.JobURL, b.JobID, b.SHA,
					r.DurationSeconds, labeled, owner, r.IsStaging); err != nil {
					return err
				}
				n++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write build results: %w", err)
	}
	w.log.Debug("wrote %d test rows from %d builds", n, len(builds))
	return nil
}

// WriteJobStatuses records one whole-job row per job with a verdict. A job
// that already has test rows in the ledger is recorded as passed, since its
// failures are carried by those rows. Buildkite jobs are only recorded once
// they finished.
func (w *Writer) WriteJobStatuses(ctx context.Context, jobs []contracts.JobStatus) error {
	counts, err := w.rowCounts(ctx, jobs)
	if err != nil {
		return err
	}

	n := 0
	err = w.inTx(ctx, func(prepare func(string) (*sql.Stmt, error)) error {
		stmt, err := prepare(insertRow)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, job := range jobs {
			if !job.Status.Known() {
				continue
			}
			if job.Provider == contracts.ProviderBuildkite && job.State != "FINISHED" {
				continue
			}
			name, ok := CoarseName(job)
			if !ok {
				w.log.Warn("skipping job %s from unknown provider %q", job.JobID, job.Provider)
				continue
			}

			status := job.Status
			if counts[job.JobID] > 0 {
				status = contracts.StatusPassed
			}
			env := job.BuildEnv
			if job.Provider == contracts.ProviderTravis {
				env = sanitize.TravisEnv(env)
			}

			if _, err := stmt.ExecContext(ctx, name, string(status), env, job.OS, job.URL, job.JobID, job.SHA,
				job.DurationSeconds, false, contracts.OwnerInfra, false); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write job statuses: %w", err)
	}
	w.log.Debug("wrote %d job rows", n)
	return nil
}

// rowCounts returns the number of rows already recorded for each job, read
// before any of the jobs' own rows are inserted.
func (w *Writer) rowCounts(ctx context.Context, jobs []contracts.JobStatus) (map[string]int, error) {
	counts := make(map[string]int, len(jobs))
	for _, job := range jobs {
		if _, seen := counts[job.JobID]; seen {
			continue
		}
		var n int
		err := w.db.QueryRowContext(ctx, w.dialect.bind(`SELECT COUNT(*) FROM {test_result} WHERE job_id = ?`), job.JobID).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count rows of job %s: %w", job.JobID, err)
		}
		counts[job.JobID] = n
	}
	return counts, nil
}

// WritePRBuildTimes records the PR pipeline builds.
func (w *Writer) WritePRBuildTimes(ctx context.Context, builds []contracts.PRBuildTime) error {
	err := w.inTx(ctx, func(prepare func(string) (*sql.Stmt, error)) error {
		stmt, err := prepare(`INSERT INTO {pr_time}
			(sha, created_by, state, url, created_at, started_at, finished_at, pull_id, duration_min)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range builds {
			if _, err := stmt.ExecContext(ctx, b.SHA, b.CreatedBy, b.State, b.URL,
				formatTime(b.CreatedAt), formatTime(b.StartedAt), formatTime(b.FinishedAt),
				b.PullID, b.DurationMinutes()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write PR build times: %w", err)
	}
	return nil
}

// DiscardJobs deletes every row of the given jobs and returns how many were removed.
func (w *Writer) DiscardJobs(ctx context.Context, jobIDs []string) (int64, error) {
	var removed int64
	err := w.inTx(ctx, func(prepare func(string) (*sql.Stmt, error)) error {
		stmt, err := prepare(`DELETE FROM {test_result} WHERE job_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range jobIDs {
			res, err := stmt.ExecContext(ctx, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to discard jobs: %w", err)
	}
	return removed, nil
}

// BackfillOwners gives every row of a test the same owner when its history
// disagrees: the owner with the most rows wins, unknown never wins, and ties
// go to the first owner by name. It returns the number of tests rewritten.
func (w *Writer) BackfillOwners(ctx context.Context) (int, error) {
	rows, err := w.query(ctx, `SELECT test_name, owner, COUNT(*) FROM {test_result} GROUP BY test_name, owner`)
	if err != nil {
		return 0, fmt.Errorf("failed to read owners: %w", err)
	}

	owners := map[string]map[string]int{}
	for rows.Next() {
		var (
			name, owner string
			n           int
		)
		if err := rows.Scan(&name, &owner, &n); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan owner: %w", err)
		}
		if owners[name] == nil {
			owners[name] = map[string]int{}
		}
		owners[name][owner] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating owners: %w", err)
	}
	rows.Close()

	updates := map[string]string{}
	for name, counts := range owners {
		if len(counts) < 2 {
			continue
		}
		if owner, ok := PluralityOwner(counts); ok {
			updates[name] = owner
		}
	}

	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	err = w.inTx(ctx, func(prepare func(string) (*sql.Stmt, error)) error {
		stmt, err := prepare(`UPDATE {test_result} SET owner = ? WHERE test_name = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, name := range names {
			if _, err := stmt.ExecContext(ctx, updates[name], name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to backfill owners: %w", err)
	}
	return len(names), nil
}

// PluralityOwner picks the owner with the highest count, ignoring unknown.
// Ties go to the owner that sorts first. ok is false when only unknown is present.
func PluralityOwner(counts map[string]int) (owner string, ok bool) {
	best := 0
	for o, n := range counts {
		if o == contracts.OwnerUnknown || o == "" {
			continue
		}
		if n > best || (n == best && o < owner) {
			owner, best = o, n
		}
	}
	return owner, best > 0
}

// Publish makes the staged ledger the published one and closes the writer.
func (w *Writer) Publish(ctx context.Context) error {
	if w.closed {
		return fmt.Errorf("ledger writer already closed")
	}
	w.closed = true
	return w.engine.publish(ctx)
}

// Discard drops the staged ledger. It is a no-op after Publish, so it is safe to defer.
// The drop still runs when ctx is already cancelled.
func (w *Writer) Discard(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.engine.discard(context.WithoutCancel(ctx))
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
