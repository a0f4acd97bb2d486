package persist

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dorcha-inc/hops/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// ErrRecordNotFound is returned when no record is stored for a component
var ErrRecordNotFound = errors.New("record not found")

// SQLiteStore keeps component records in a SQLite database, keyed by
// component ID. Values are stored as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		core.LogDeferredError(db.Close)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			core.LogDeferredError(db.Close)
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		core.LogDeferredError(db.Close)
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces everything stored for the component with record
func (s *SQLiteStore) Save(ctx context.Context, componentID string, record *Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM component_tags WHERE component_id = ?`, componentID); err != nil {
		return fmt.Errorf("failed to clear record %s: %w", componentID, err)
	}

	values := record.Values()
	for _, tag := range record.Tags() {
		encoded, marshalErr := json.Marshal(values[tag])
		if marshalErr != nil {
			err = fmt.Errorf("failed to encode tag %s: %w", tag, marshalErr)
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO component_tags (component_id, tag, value) VALUES (?, ?, ?)`,
			componentID, tag, string(encoded)); err != nil {
			return fmt.Errorf("failed to store tag %s: %w", tag, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record %s: %w", componentID, err)
	}
	return nil
}

// Load returns the record stored for the component
func (s *SQLiteStore) Load(ctx context.Context, componentID string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, value FROM component_tags WHERE component_id = ? ORDER BY tag`, componentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query record %s: %w", componentID, err)
	}
	defer core.LogDeferredError(rows.Close)

	values := map[string]any{}
	for rows.Next() {
		var tag, encoded string
		if err := rows.Scan(&tag, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan record %s: %w", componentID, err)
		}

		var value any
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			return nil, fmt.Errorf("failed to decode tag %s: %w", tag, err)
		}
		values[tag] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", componentID, err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, componentID)
	}
	return newRecordFrom(values), nil
}

// Delete removes the component's record
func (s *SQLiteStore) Delete(ctx context.Context, componentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM component_tags WHERE component_id = ?`, componentID); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", componentID, err)
	}
	return nil
}

// List returns the IDs of every stored component
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT component_id FROM component_tags ORDER BY component_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer core.LogDeferredError(rows.Close)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan component id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
