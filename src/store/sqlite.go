package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryDSN keeps the ledger in memory for the life of the writer.
const MemoryDSN = ":memory:"

type sqliteEngine struct {
	conn *sql.DB
	// path is the published file, staged the file being written.
	path   string
	staged string
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func stageSQLite(ctx context.Context, path string) (*sqliteEngine, error) {
	staged := path
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		staged = filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".staging")
	}

	db, err := openSQLite(staged)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA synchronous=OFF", "PRAGMA journal_mode=MEMORY"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			os.Remove(staged)
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}
	return &sqliteEngine{conn: db, path: path, staged: staged}, nil
}

func (e *sqliteEngine) db() *sql.DB { return e.conn }
func (e *sqliteEngine) dialect() dialect { return dialect{} }

func (e *sqliteEngine) publish(context.Context) error {
	if err := e.conn.Close(); err != nil {
		return fmt.Errorf("failed to close staged ledger: %w", err)
	}
	if e.path == MemoryDSN {
		return nil
	}
	if err := os.Rename(e.staged, e.path); err != nil {
		return fmt.Errorf("failed to publish ledger: %w", err)
	}
	return nil
}

func (e *sqliteEngine) discard(context.Context) error {
	err := e.conn.Close()
	if e.path != MemoryDSN {
		if rmErr := os.Remove(e.staged); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove staged ledger: %w", rmErr)
		}
	}
	return err
}

func openSQLiteReader(ctx context.Context, path string) (*Reader, error) {
	if path == MemoryDSN {
		return nil, fmt.Errorf("an in-memory ledger can only be read through its writer")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no published ledger at %s: %w", path, err)
	}

	db, err := openSQLite("file:" + path + "?mode=ro")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	return &Reader{ledger: ledger{db: db}, owned: true}, nil
}
