// Package sqlite provides an embedded conversation store for single-node
// deployments that run without an external document index.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"chatrelay/internal/logstore"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Log appends one conversation record. Records are never merged: identical
// inputs produce distinct rows with distinct identifiers and timestamps.
func (s *Store) Log(ctx context.Context, prompt, response, model string) error {
	record := logstore.NewRecord(prompt, response, model)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, timestamp, prompt, response, model) VALUES (?, ?, ?, ?, ?)`,
		record.ID, record.Timestamp.UnixNano(), record.Prompt, record.Response, record.Model,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert conversation")
	}

	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*logstore.ConversationRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, prompt, response, model FROM conversations ORDER BY timestamp DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	defer rows.Close()

	var records []*logstore.ConversationRecord
	for rows.Next() {
		var record logstore.ConversationRecord
		var ns int64
		if err := rows.Scan(&record.ID, &ns, &record.Prompt, &record.Response, &record.Model); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		record.Timestamp = time.Unix(0, ns).UTC()
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}

	return records, nil
}
