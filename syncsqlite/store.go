// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

// Package syncsqlite is the SQLite store adapter for the sync-merge engine.
// It owns the library schema, the field-update log, and the transaction
// boundary that makes a report apply atomic.
package syncsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
)

// Store adapts a SQLite database to the engine's store contract.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ syncmerge.Store = (*Store)(nil)

// Open opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	store, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing database handle and initializes the schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// SQLite allows one writer at a time, and both PRAGMAs and :memory:
	// databases are scoped to a connection; a single pooled connection
	// keeps them stable.
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("initialize library schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying handle for hosts that share the connection.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS manga (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			source         INTEGER NOT NULL,
			url            TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			thumbnail_url  TEXT NOT NULL DEFAULT '',
			favorite       INTEGER NOT NULL DEFAULT 0,
			viewer         INTEGER NOT NULL DEFAULT 0,
			chapter_flags  INTEGER NOT NULL DEFAULT 0,
			date_added     INTEGER NOT NULL DEFAULT 0,
			initialized    INTEGER NOT NULL DEFAULT 0,
			UNIQUE (url, source)
		)`,

		`CREATE TABLE IF NOT EXISTS chapters (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			manga_id        INTEGER NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
			url             TEXT NOT NULL,
			name            TEXT NOT NULL DEFAULT '',
			chapter_number  REAL NOT NULL DEFAULT 0,
			source_order    INTEGER NOT NULL DEFAULT 0,
			"read"          INTEGER NOT NULL DEFAULT 0,
			bookmark        INTEGER NOT NULL DEFAULT 0,
			last_page_read  INTEGER NOT NULL DEFAULT 0,
			UNIQUE (manga_id, url)
		)`,

		`CREATE TABLE IF NOT EXISTS history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			chapter_id  INTEGER NOT NULL UNIQUE REFERENCES chapters(id) ON DELETE CASCADE,
			last_read   INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS categories (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			sort_order  INTEGER NOT NULL DEFAULT 0,
			flags       INTEGER NOT NULL DEFAULT 0
		)`,

		// One row per (category, manga); the primary key is what keeps
		// repeated merges from duplicating association rows.
		`CREATE TABLE IF NOT EXISTS manga_categories (
			category_id  INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			manga_id     INTEGER NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
			PRIMARY KEY (category_id, manga_id)
		)`,

		`CREATE TABLE IF NOT EXISTS tracks (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			manga_id           INTEGER NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
			service_id         INTEGER NOT NULL,
			remote_id          INTEGER NOT NULL DEFAULT 0,
			remote_url         TEXT NOT NULL DEFAULT '',
			title              TEXT NOT NULL DEFAULT '',
			last_chapter_read  REAL NOT NULL DEFAULT 0,
			status             INTEGER NOT NULL DEFAULT 0,
			score              REAL NOT NULL DEFAULT 0,
			UNIQUE (manga_id, service_id)
		)`,

		// Field-update history consulted by the LWW merge. Field tags embed
		// the entity kind, so one table serves every kind.
		`CREATE TABLE IF NOT EXISTS sync_field_log (
			entity_id   INTEGER NOT NULL,
			field       TEXT NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (entity_id, field)
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// RunInTx implements syncmerge.Store. The rollback in the deferred path is
// what gives Apply its all-or-nothing semantics.
func (s *Store) RunInTx(ctx context.Context, fn func(tx syncmerge.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
