// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

// Package syncpg is the PostgreSQL store adapter for the sync-merge engine,
// for deployments that keep the library replica server-side. It implements
// the same contract as syncsqlite on top of a pgx connection pool.
package syncpg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
)

// Store adapts a PostgreSQL database to the engine's store contract.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ syncmerge.Store = (*Store)(nil)

// NewStore wraps an existing pool and initializes the library schema.
func NewStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{pool: pool, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize library schema: %w", err)
	}
	return store, nil
}

// Connect opens a pool for the given DSN and initializes the schema.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store, err := NewStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Pool exposes the underlying pool for hosts that share the connection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close closes the underlying pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		migrations := []string{
			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS manga (
				id             BIGSERIAL PRIMARY KEY,
				source         BIGINT NOT NULL,
				url            TEXT NOT NULL,
				title          TEXT NOT NULL DEFAULT '',
				thumbnail_url  TEXT NOT NULL DEFAULT '',
				favorite       BOOLEAN NOT NULL DEFAULT FALSE,
				viewer         BIGINT NOT NULL DEFAULT 0,
				chapter_flags  BIGINT NOT NULL DEFAULT 0,
				date_added     BIGINT NOT NULL DEFAULT 0,
				initialized    BOOLEAN NOT NULL DEFAULT FALSE,
				UNIQUE (url, source)
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS chapters (
				id              BIGSERIAL PRIMARY KEY,
				manga_id        BIGINT NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
				url             TEXT NOT NULL,
				name            TEXT NOT NULL DEFAULT '',
				chapter_number  DOUBLE PRECISION NOT NULL DEFAULT 0,
				source_order    BIGINT NOT NULL DEFAULT 0,
				read            BOOLEAN NOT NULL DEFAULT FALSE,
				bookmark        BOOLEAN NOT NULL DEFAULT FALSE,
				last_page_read  BIGINT NOT NULL DEFAULT 0,
				UNIQUE (manga_id, url)
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS history (
				id          BIGSERIAL PRIMARY KEY,
				chapter_id  BIGINT NOT NULL UNIQUE REFERENCES chapters(id) ON DELETE CASCADE,
				last_read   BIGINT NOT NULL DEFAULT 0
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS categories (
				id          BIGSERIAL PRIMARY KEY,
				name        TEXT NOT NULL UNIQUE,
				sort_order  BIGINT NOT NULL DEFAULT 0,
				flags       BIGINT NOT NULL DEFAULT 0
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS manga_categories (
				category_id  BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				manga_id     BIGINT NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
				PRIMARY KEY (category_id, manga_id)
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS tracks (
				id                 BIGSERIAL PRIMARY KEY,
				manga_id           BIGINT NOT NULL REFERENCES manga(id) ON DELETE CASCADE,
				service_id         BIGINT NOT NULL,
				remote_id          BIGINT NOT NULL DEFAULT 0,
				remote_url         TEXT NOT NULL DEFAULT '',
				title              TEXT NOT NULL DEFAULT '',
				last_chapter_read  DOUBLE PRECISION NOT NULL DEFAULT 0,
				status             BIGINT NOT NULL DEFAULT 0,
				score              DOUBLE PRECISION NOT NULL DEFAULT 0,
				UNIQUE (manga_id, service_id)
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync_field_log (
				entity_id   BIGINT NOT NULL,
				field       TEXT NOT NULL,
				updated_at  BIGINT NOT NULL,
				PRIMARY KEY (entity_id, field)
			)`,
		}
		for _, migration := range migrations {
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("run schema migration: %w", err)
			}
		}
		return nil
	})
}

// RunInTx implements syncmerge.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(tx syncmerge.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}
