package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/dorcha-inc/hops/internal/persist"
)

// stateStore keeps one component record between invocations
type stateStore interface {
	// Load returns nil without error when nothing has been saved yet
	Load(ctx context.Context) (*persist.Record, error)
	Save(ctx context.Context, record *persist.Record) error
	Close() error
}

// openStateStore picks the backend from the file extension: .db, .sqlite
// and .sqlite3 files are SQLite stores holding one record per node name,
// anything else is a YAML document.
func openStateStore(path, node string) (stateStore, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		store, err := persist.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return &sqliteState{store: store, node: node}, nil
	default:
		return &yamlState{path: path}, nil
	}
}

type yamlState struct {
	path string
}

func (s *yamlState) Load(context.Context) (*persist.Record, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return persist.LoadYAML(s.path)
}

func (s *yamlState) Save(_ context.Context, record *persist.Record) error {
	return persist.SaveYAML(s.path, record)
}

func (s *yamlState) Close() error {
	return nil
}

type sqliteState struct {
	store *persist.SQLiteStore
	node  string
}

func (s *sqliteState) Load(ctx context.Context) (*persist.Record, error) {
	record, err := s.store.Load(ctx, s.node)
	if errors.Is(err, persist.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}

func (s *sqliteState) Save(ctx context.Context, record *persist.Record) error {
	return s.store.Save(ctx, s.node, record)
}

func (s *sqliteState) Close() error {
	return s.store.Close()
}
