// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

// Persisted library rows. Each row gains a stable local id on first insert;
// before that the applier addresses it by a provisional (negative) id.

// Manga is a persisted library entry.
type Manga struct {
	ID           int64  `db:"id"`
	Source       int64  `db:"source"`
	URL          string `db:"url"`
	Title        string `db:"title"`
	ThumbnailURL string `db:"thumbnail_url"`
	Favorite     bool   `db:"favorite"`
	Viewer       int64  `db:"viewer"`
	ChapterFlags int64  `db:"chapter_flags"`
	DateAdded    int64  `db:"date_added"`
	// Initialized is false until the app fetches full metadata from the
	// source. Rows created by the merge defer that fetch.
	Initialized bool `db:"initialized"`
}

// Chapter is a persisted chapter row, unique by (manga_id, url).
type Chapter struct {
	ID            int64   `db:"id"`
	MangaID       int64   `db:"manga_id"`
	URL           string  `db:"url"`
	Name          string  `db:"name"`
	ChapterNumber float64 `db:"chapter_number"`
	SourceOrder   int64   `db:"source_order"`
	Read          bool    `db:"read"`
	Bookmark      bool    `db:"bookmark"`
	LastPageRead  int64   `db:"last_page_read"`
}

// History is a persisted reading-history row, one per chapter.
type History struct {
	ID        int64 `db:"id"`
	ChapterID int64 `db:"chapter_id"`
	LastRead  int64 `db:"last_read"`
}

// Category is a persisted category row, unique by name.
type Category struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Order int64  `db:"sort_order"`
	Flags int64  `db:"flags"`
}

// Track is a persisted tracking-service binding, unique by
// (manga_id, service_id).
type Track struct {
	ID              int64   `db:"id"`
	MangaID         int64   `db:"manga_id"`
	ServiceID       int64   `db:"service_id"`
	RemoteID        int64   `db:"remote_id"`
	RemoteURL       string  `db:"remote_url"`
	Title           string  `db:"title"`
	LastChapterRead float64 `db:"last_chapter_read"`
	Status          int64   `db:"status"`
	Score           float64 `db:"score"`
}
