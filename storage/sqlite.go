package storage

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is the durable Store implementation.
// Uses SQLite with WAL mode for concurrent read access.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Put(name string, version int64, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO records (name, version, data) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, name, version, string(data))
	if err != nil {
		return fmt.Errorf("put %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Get(name string) (int64, []byte, bool, error) {
	var version int64
	var data string
	err := s.db.QueryRow(
		"SELECT version, data FROM records WHERE name = ?", name,
	).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("get %q: %w", name, err)
	}
	return version, []byte(data), true, nil
}

func (s *SQLiteStore) Delete(name string) error {
	if _, err := s.db.Exec("DELETE FROM records WHERE name = ?", name); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
