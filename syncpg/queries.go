// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncpg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
)

// storeTx implements syncmerge.Tx over one pgx.Tx.
type storeTx struct {
	tx pgx.Tx
}

var _ syncmerge.Tx = (*storeTx)(nil)

func (t *storeTx) GetMangaByKey(ctx context.Context, url string, source int64) (*syncmerge.Manga, error) {
	var m syncmerge.Manga
	err := t.tx.QueryRow(ctx, `
		SELECT id, source, url, title, thumbnail_url, favorite, viewer, chapter_flags, date_added, initialized
		FROM manga WHERE url = $1 AND source = $2`, url, source).
		Scan(&m.ID, &m.Source, &m.URL, &m.Title, &m.ThumbnailURL, &m.Favorite, &m.Viewer, &m.ChapterFlags, &m.DateAdded, &m.Initialized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query manga by key: %w", err)
	}
	return &m, nil
}

func (t *storeTx) UpsertManga(ctx context.Context, m *syncmerge.Manga) (int64, error) {
	if m.ID <= 0 {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO manga (source, url, title, thumbnail_url, favorite, viewer, chapter_flags, date_added, initialized)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			m.Source, m.URL, m.Title, m.ThumbnailURL, m.Favorite, m.Viewer, m.ChapterFlags, m.DateAdded, m.Initialized).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert manga: %w", err)
		}
		return id, nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE manga SET title = $1, thumbnail_url = $2, favorite = $3, viewer = $4, chapter_flags = $5, date_added = $6, initialized = $7
		WHERE id = $8`,
		m.Title, m.ThumbnailURL, m.Favorite, m.Viewer, m.ChapterFlags, m.DateAdded, m.Initialized, m.ID)
	if err != nil {
		return 0, fmt.Errorf("update manga %d: %w", m.ID, err)
	}
	return m.ID, nil
}

func (t *storeTx) GetChapterByURL(ctx context.Context, mangaID int64, url string) (*syncmerge.Chapter, error) {
	var c syncmerge.Chapter
	err := t.tx.QueryRow(ctx, `
		SELECT id, manga_id, url, name, chapter_number, source_order, read, bookmark, last_page_read
		FROM chapters WHERE manga_id = $1 AND url = $2`, mangaID, url).
		Scan(&c.ID, &c.MangaID, &c.URL, &c.Name, &c.ChapterNumber, &c.SourceOrder, &c.Read, &c.Bookmark, &c.LastPageRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query chapter by url: %w", err)
	}
	return &c, nil
}

func (t *storeTx) UpsertChapter(ctx context.Context, c *syncmerge.Chapter) (int64, error) {
	if c.ID <= 0 {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO chapters (manga_id, url, name, chapter_number, source_order, read, bookmark, last_page_read)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			c.MangaID, c.URL, c.Name, c.ChapterNumber, c.SourceOrder, c.Read, c.Bookmark, c.LastPageRead).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert chapter: %w", err)
		}
		return id, nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE chapters SET name = $1, chapter_number = $2, source_order = $3, read = $4, bookmark = $5, last_page_read = $6
		WHERE id = $7`,
		c.Name, c.ChapterNumber, c.SourceOrder, c.Read, c.Bookmark, c.LastPageRead, c.ID)
	if err != nil {
		return 0, fmt.Errorf("update chapter %d: %w", c.ID, err)
	}
	return c.ID, nil
}

func (t *storeTx) GetHistoryByChapter(ctx context.Context, chapterID int64) (*syncmerge.History, error) {
	var h syncmerge.History
	err := t.tx.QueryRow(ctx, `
		SELECT id, chapter_id, last_read FROM history WHERE chapter_id = $1`, chapterID).
		Scan(&h.ID, &h.ChapterID, &h.LastRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query history by chapter: %w", err)
	}
	return &h, nil
}

func (t *storeTx) UpsertHistory(ctx context.Context, h *syncmerge.History) (int64, error) {
	if h.ID <= 0 {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO history (chapter_id, last_read) VALUES ($1, $2) RETURNING id`,
			h.ChapterID, h.LastRead).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert history: %w", err)
		}
		return id, nil
	}
	_, err := t.tx.Exec(ctx, `UPDATE history SET last_read = $1 WHERE id = $2`, h.LastRead, h.ID)
	if err != nil {
		return 0, fmt.Errorf("update history %d: %w", h.ID, err)
	}
	return h.ID, nil
}

func (t *storeTx) GetCategoryByName(ctx context.Context, name string) (*syncmerge.Category, error) {
	var c syncmerge.Category
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, sort_order, flags FROM categories WHERE name = $1`, name).
		Scan(&c.ID, &c.Name, &c.Order, &c.Flags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category by name: %w", err)
	}
	return &c, nil
}

func (t *storeTx) UpsertCategory(ctx context.Context, c *syncmerge.Category) (int64, error) {
	if c.ID <= 0 {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO categories (name, sort_order, flags) VALUES ($1, $2, $3) RETURNING id`,
			c.Name, c.Order, c.Flags).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert category: %w", err)
		}
		return id, nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE categories SET name = $1, sort_order = $2, flags = $3 WHERE id = $4`,
		c.Name, c.Order, c.Flags, c.ID)
	if err != nil {
		return 0, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return c.ID, nil
}

func (t *storeTx) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}

func (t *storeTx) CategoryMembers(ctx context.Context, categoryID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT manga_id FROM manga_categories WHERE category_id = $1`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("query category members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan category member: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category members: %w", err)
	}
	return ids, nil
}

func (t *storeTx) AddCategoryMember(ctx context.Context, categoryID, mangaID int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO manga_categories (category_id, manga_id) VALUES ($1, $2)
		ON CONFLICT (category_id, manga_id) DO NOTHING`,
		categoryID, mangaID)
	if err != nil {
		return fmt.Errorf("add category member: %w", err)
	}
	return nil
}

func (t *storeTx) RemoveCategoryMember(ctx context.Context, categoryID, mangaID int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM manga_categories WHERE category_id = $1 AND manga_id = $2`,
		categoryID, mangaID)
	if err != nil {
		return fmt.Errorf("remove category member: %w", err)
	}
	return nil
}

func (t *storeTx) GetTrack(ctx context.Context, mangaID, serviceID int64) (*syncmerge.Track, error) {
	var tr syncmerge.Track
	err := t.tx.QueryRow(ctx, `
		SELECT id, manga_id, service_id, remote_id, remote_url, title, last_chapter_read, status, score
		FROM tracks WHERE manga_id = $1 AND service_id = $2`, mangaID, serviceID).
		Scan(&tr.ID, &tr.MangaID, &tr.ServiceID, &tr.RemoteID, &tr.RemoteURL, &tr.Title, &tr.LastChapterRead, &tr.Status, &tr.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}
	return &tr, nil
}

func (t *storeTx) UpsertTrack(ctx context.Context, tr *syncmerge.Track) (int64, error) {
	if tr.ID <= 0 {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO tracks (manga_id, service_id, remote_id, remote_url, title, last_chapter_read, status, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			tr.MangaID, tr.ServiceID, tr.RemoteID, tr.RemoteURL, tr.Title, tr.LastChapterRead, tr.Status, tr.Score).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert track: %w", err)
		}
		return id, nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE tracks SET remote_id = $1, remote_url = $2, title = $3, last_chapter_read = $4, status = $5, score = $6
		WHERE id = $7`,
		tr.RemoteID, tr.RemoteURL, tr.Title, tr.LastChapterRead, tr.Status, tr.Score, tr.ID)
	if err != nil {
		return 0, fmt.Errorf("update track %d: %w", tr.ID, err)
	}
	return tr.ID, nil
}

func (t *storeTx) DeleteTrack(ctx context.Context, mangaID, serviceID int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM tracks WHERE manga_id = $1 AND service_id = $2`, mangaID, serviceID)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	return nil
}

func (t *storeTx) HasNewerFieldUpdate(ctx context.Context, entityID int64, field string, timestamp int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sync_field_log
			WHERE entity_id = $1 AND field = $2 AND updated_at >= $3
		)`, entityID, field, timestamp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query field log: %w", err)
	}
	return exists, nil
}

func (t *storeTx) RecordFieldUpdate(ctx context.Context, entityID int64, field string, timestamp int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sync_field_log (entity_id, field, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, field)
		DO UPDATE SET updated_at = GREATEST(sync_field_log.updated_at, EXCLUDED.updated_at)`,
		entityID, field, timestamp)
	if err != nil {
		return fmt.Errorf("record field update: %w", err)
	}
	return nil
}
