// Package store persists the results ledger: one row per (test, job)
// observation plus the commit window and PR build times it is scored against.
//
// A run never edits the published ledger. OpenWriter creates a staged copy,
// the run fills it, and Publish swaps it into place. A run that fails calls
// Discard and the previous ledger stays visible.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"ci-tracker/src/logger"
)

// FlakyLookup reports whether a test is marked flaky outside of its build logs.
type FlakyLookup interface {
	IsFlaky(ctx context.Context, testName string) bool
}

// IsPostgres reports whether dsn names a Postgres database. Anything else is
// treated as a SQLite path.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenWriter creates an empty staged ledger for dsn.
func OpenWriter(ctx context.Context, dsn string, log logger.Logger) (*Writer, error) {
	var (
		e   engine
		err error
	)
	if IsPostgres(dsn) {
		e, err = stagePostgres(ctx, dsn)
	} else {
		e, err = stageSQLite(ctx, dsn)
	}
	if err != nil {
		return nil, err
	}

	w := &Writer{ledger: ledger{db: e.db(), dialect: e.dialect()}, engine: e, log: log}
	if err := w.createSchema(ctx); err != nil {
		e.discard(ctx)
		return nil, err
	}
	return w, nil
}

// OpenReader opens the published ledger for dsn.
func OpenReader(ctx context.Context, dsn string) (*Reader, error) {
	if IsPostgres(dsn) {
		return openPostgresReader(ctx, dsn)
	}
	return openSQLiteReader(ctx, dsn)
}

// engine owns the staged database of one backend.
type engine interface {
	db() *sql.DB
	dialect() dialect
	// publish replaces the published ledger with the staged one and closes it.
	publish(ctx context.Context) error
	// discard drops the staged ledger and closes it.
	discard(ctx context.Context) error
}

// dialect rewrites the portable queries of this package for one backend.
// Queries name tables as {test_result}, {commits} and {pr_time} and use ?
// placeholders.
type dialect struct {
	postgres bool
	schema   string
}

var tableNames = []string{"test_result", "commits", "pr_time"}

func (d dialect) bind(query string) string {
	pairs := make([]string, 0, 2*len(tableNames))
	for _, t := range tableNames {
		name := t
		if d.schema != "" {
			name = d.schema + "." + t
		}
		pairs = append(pairs, "{"+t+"}", name)
	}
	query = strings.NewReplacer(pairs...).Replace(query)

	if !d.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ledger runs dialect-bound queries against one database.
type ledger struct {
	db      *sql.DB
	dialect dialect
}

func (l ledger) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return l.db.ExecContext(ctx, l.dialect.bind(query), args...)
}

func (l ledger) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return l.db.QueryContext(ctx, l.dialect.bind(query), args...)
}

// inTx runs fn in one transaction. Statements prepared through prepare are
// bound to the dialect.
func (l ledger) inTx(ctx context.Context, fn func(prepare func(query string) (*sql.Stmt, error)) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	prepare := func(query string) (*sql.Stmt, error) {
		return tx.PrepareContext(ctx, l.dialect.bind(query))
	}
	if err := fn(prepare); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
