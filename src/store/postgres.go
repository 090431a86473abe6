package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // Postgres driver
)

// PublishedSchema holds the published ledger in Postgres.
const PublishedSchema = "ci_tracker"

type postgresEngine struct {
	conn   *sql.DB
	schema string
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// stagePostgres writes the run into a fresh schema next to the published one.
func stagePostgres(ctx context.Context, dsn string) (*postgresEngine, error) {
	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}

	schema := PublishedSchema + "_staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create staging schema: %w", err)
	}
	return &postgresEngine{conn: db, schema: schema}, nil
}

func (e *postgresEngine) db() *sql.DB { return e.conn }

func (e *postgresEngine) dialect() dialect {
	return dialect{postgres: true, schema: e.schema}
}

func (e *postgresEngine) publish(ctx context.Context) error {
	defer e.conn.Close()

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, stmt := range []string{
		"DROP SCHEMA IF EXISTS " + PublishedSchema + " CASCADE",
		"ALTER SCHEMA " + e.schema + " RENAME TO " + PublishedSchema,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to publish ledger: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to publish ledger: %w", err)
	}
	return nil
}

func (e *postgresEngine) discard(ctx context.Context) error {
	defer e.conn.Close()
	if _, err := e.conn.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+e.schema+" CASCADE"); err != nil {
		return fmt.Errorf("failed to drop staging schema: %w", err)
	}
	return nil
}

func openPostgresReader(ctx context.Context, dsn string) (*Reader, error) {
	db, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	d := dialect{postgres: true, schema: PublishedSchema}
	return &Reader{ledger: ledger{db: db, dialect: d}, owned: true}, nil
}
