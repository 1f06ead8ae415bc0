// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
)

// storeTx implements syncmerge.Tx over one *sql.Tx.
type storeTx struct {
	tx *sql.Tx
}

var _ syncmerge.Tx = (*storeTx)(nil)

func (t *storeTx) GetMangaByKey(ctx context.Context, url string, source int64) (*syncmerge.Manga, error) {
	var m syncmerge.Manga
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, source, url, title, thumbnail_url, favorite, viewer, chapter_flags, date_added, initialized
		FROM manga WHERE url = ? AND source = ?`, url, source).
		Scan(&m.ID, &m.Source, &m.URL, &m.Title, &m.ThumbnailURL, &m.Favorite, &m.Viewer, &m.ChapterFlags, &m.DateAdded, &m.Initialized)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query manga by key: %w", err)
	}
	return &m, nil
}

func (t *storeTx) UpsertManga(ctx context.Context, m *syncmerge.Manga) (int64, error) {
	if m.ID <= 0 {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO manga (source, url, title, thumbnail_url, favorite, viewer, chapter_flags, date_added, initialized)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Source, m.URL, m.Title, m.ThumbnailURL, m.Favorite, m.Viewer, m.ChapterFlags, m.DateAdded, m.Initialized)
		if err != nil {
			return 0, fmt.Errorf("insert manga: %w", err)
		}
		return res.LastInsertId()
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE manga SET title = ?, thumbnail_url = ?, favorite = ?, viewer = ?, chapter_flags = ?, date_added = ?, initialized = ?
		WHERE id = ?`,
		m.Title, m.ThumbnailURL, m.Favorite, m.Viewer, m.ChapterFlags, m.DateAdded, m.Initialized, m.ID)
	if err != nil {
		return 0, fmt.Errorf("update manga %d: %w", m.ID, err)
	}
	return m.ID, nil
}

func (t *storeTx) GetChapterByURL(ctx context.Context, mangaID int64, url string) (*syncmerge.Chapter, error) {
	var c syncmerge.Chapter
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, manga_id, url, name, chapter_number, source_order, "read", bookmark, last_page_read
		FROM chapters WHERE manga_id = ? AND url = ?`, mangaID, url).
		Scan(&c.ID, &c.MangaID, &c.URL, &c.Name, &c.ChapterNumber, &c.SourceOrder, &c.Read, &c.Bookmark, &c.LastPageRead)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query chapter by url: %w", err)
	}
	return &c, nil
}

func (t *storeTx) UpsertChapter(ctx context.Context, c *syncmerge.Chapter) (int64, error) {
	if c.ID <= 0 {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO chapters (manga_id, url, name, chapter_number, source_order, "read", bookmark, last_page_read)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.MangaID, c.URL, c.Name, c.ChapterNumber, c.SourceOrder, c.Read, c.Bookmark, c.LastPageRead)
		if err != nil {
			return 0, fmt.Errorf("insert chapter: %w", err)
		}
		return res.LastInsertId()
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE chapters SET name = ?, chapter_number = ?, source_order = ?, "read" = ?, bookmark = ?, last_page_read = ?
		WHERE id = ?`,
		c.Name, c.ChapterNumber, c.SourceOrder, c.Read, c.Bookmark, c.LastPageRead, c.ID)
	if err != nil {
		return 0, fmt.Errorf("update chapter %d: %w", c.ID, err)
	}
	return c.ID, nil
}

func (t *storeTx) GetHistoryByChapter(ctx context.Context, chapterID int64) (*syncmerge.History, error) {
	var h syncmerge.History
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, chapter_id, last_read FROM history WHERE chapter_id = ?`, chapterID).
		Scan(&h.ID, &h.ChapterID, &h.LastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query history by chapter: %w", err)
	}
	return &h, nil
}

func (t *storeTx) UpsertHistory(ctx context.Context, h *syncmerge.History) (int64, error) {
	if h.ID <= 0 {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO history (chapter_id, last_read) VALUES (?, ?)`, h.ChapterID, h.LastRead)
		if err != nil {
			return 0, fmt.Errorf("insert history: %w", err)
		}
		return res.LastInsertId()
	}
	_, err := t.tx.ExecContext(ctx, `UPDATE history SET last_read = ? WHERE id = ?`, h.LastRead, h.ID)
	if err != nil {
		return 0, fmt.Errorf("update history %d: %w", h.ID, err)
	}
	return h.ID, nil
}

func (t *storeTx) GetCategoryByName(ctx context.Context, name string) (*syncmerge.Category, error) {
	var c syncmerge.Category
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, sort_order, flags FROM categories WHERE name = ?`, name).
		Scan(&c.ID, &c.Name, &c.Order, &c.Flags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category by name: %w", err)
	}
	return &c, nil
}

func (t *storeTx) UpsertCategory(ctx context.Context, c *syncmerge.Category) (int64, error) {
	if c.ID <= 0 {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO categories (name, sort_order, flags) VALUES (?, ?, ?)`, c.Name, c.Order, c.Flags)
		if err != nil {
			return 0, fmt.Errorf("insert category: %w", err)
		}
		return res.LastInsertId()
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE categories SET name = ?, sort_order = ?, flags = ? WHERE id = ?`,
		c.Name, c.Order, c.Flags, c.ID)
	if err != nil {
		return 0, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return c.ID, nil
}

func (t *storeTx) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}

func (t *storeTx) CategoryMembers(ctx context.Context, categoryID int64) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT manga_id FROM manga_categories WHERE category_id = ?`, categoryID)
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
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO manga_categories (category_id, manga_id) VALUES (?, ?)`,
		categoryID, mangaID)
	if err != nil {
		return fmt.Errorf("add category member: %w", err)
	}
	return nil
}

func (t *storeTx) RemoveCategoryMember(ctx context.Context, categoryID, mangaID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM manga_categories WHERE category_id = ? AND manga_id = ?`,
		categoryID, mangaID)
	if err != nil {
		return fmt.Errorf("remove category member: %w", err)
	}
	return nil
}

func (t *storeTx) GetTrack(ctx context.Context, mangaID, serviceID int64) (*syncmerge.Track, error) {
	var tr syncmerge.Track
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, manga_id, service_id, remote_id, remote_url, title, last_chapter_read, status, score
		FROM tracks WHERE manga_id = ? AND service_id = ?`, mangaID, serviceID).
		Scan(&tr.ID, &tr.MangaID, &tr.ServiceID, &tr.RemoteID, &tr.RemoteURL, &tr.Title, &tr.LastChapterRead, &tr.Status, &tr.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}
	return &tr, nil
}

func (t *storeTx) UpsertTrack(ctx context.Context, tr *syncmerge.Track) (int64, error) {
	if tr.ID <= 0 {
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO tracks (manga_id, service_id, remote_id, remote_url, title, last_chapter_read, status, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.MangaID, tr.ServiceID, tr.RemoteID, tr.RemoteURL, tr.Title, tr.LastChapterRead, tr.Status, tr.Score)
		if err != nil {
			return 0, fmt.Errorf("insert track: %w", err)
		}
		return res.LastInsertId()
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE tracks SET remote_id = ?, remote_url = ?, title = ?, last_chapter_read = ?, status = ?, score = ?
		WHERE id = ?`,
		tr.RemoteID, tr.RemoteURL, tr.Title, tr.LastChapterRead, tr.Status, tr.Score, tr.ID)
	if err != nil {
		return 0, fmt.Errorf("update track %d: %w", tr.ID, err)
	}
	return tr.ID, nil
}

func (t *storeTx) DeleteTrack(ctx context.Context, mangaID, serviceID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM tracks WHERE manga_id = ? AND service_id = ?`, mangaID, serviceID)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	return nil
}

func (t *storeTx) HasNewerFieldUpdate(ctx context.Context, entityID int64, field string, timestamp int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM sync_field_log
			WHERE entity_id = ? AND field = ? AND updated_at >= ?
		)`, entityID, field, timestamp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query field log: %w", err)
	}
	return exists, nil
}

func (t *storeTx) RecordFieldUpdate(ctx context.Context, entityID int64, field string, timestamp int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sync_field_log (entity_id, field, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_id, field)
		DO UPDATE SET updated_at = MAX(updated_at, excluded.updated_at)`,
		entityID, field, timestamp)
	if err != nil {
		return fmt.Errorf("record field update: %w", err)
	}
	return nil
}
