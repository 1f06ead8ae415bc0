// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import "context"

// Field tags used in the store's field-update log. Tags embed the entity
// kind so ids of different kinds never collide in the log.
const (
	FieldMangaFavorite     = "manga.favorite"
	FieldMangaViewer       = "manga.viewer"
	FieldMangaChapterFlags = "manga.chapter_flags"
	FieldMangaDateAdded    = "manga.date_added"

	FieldChapterRead         = "chapter.read"
	FieldChapterBookmark     = "chapter.bookmark"
	FieldChapterLastPageRead = "chapter.last_page_read"

	FieldHistoryLastRead = "history.last_read"

	FieldCategoryOrder = "category.sort_order"
	FieldCategoryFlags = "category.flags"

	FieldTrackLastChapterRead = "track.last_chapter_read"
	FieldTrackStatus          = "track.status"
	FieldTrackScore           = "track.score"
)

// Store is the persistence boundary of the merge engine. RunInTx runs fn
// inside one transaction: if fn returns an error the transaction is rolled
// back and the store is left exactly as it was, otherwise it commits.
//
// The engine issues all store calls sequentially from a single goroutine;
// implementations do not need to support concurrent calls on one Tx.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the per-kind operations the applier needs. Get* methods return
// (nil, nil) when no row matches. Upsert* methods insert when the model's ID
// is zero or provisional (negative) and update otherwise; they always return
// the row's store-assigned id.
type Tx interface {
	GetMangaByKey(ctx context.Context, url string, source int64) (*Manga, error)
	UpsertManga(ctx context.Context, m *Manga) (int64, error)

	GetChapterByURL(ctx context.Context, mangaID int64, url string) (*Chapter, error)
	UpsertChapter(ctx context.Context, c *Chapter) (int64, error)

	GetHistoryByChapter(ctx context.Context, chapterID int64) (*History, error)
	UpsertHistory(ctx context.Context, h *History) (int64, error)

	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	UpsertCategory(ctx context.Context, c *Category) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error

	// Category membership. AddCategoryMember must be a no-op for a pair
	// that is already present.
	CategoryMembers(ctx context.Context, categoryID int64) ([]int64, error)
	AddCategoryMember(ctx context.Context, categoryID, mangaID int64) error
	RemoveCategoryMember(ctx context.Context, categoryID, mangaID int64) error

	GetTrack(ctx context.Context, mangaID, serviceID int64) (*Track, error)
	UpsertTrack(ctx context.Context, t *Track) (int64, error)
	DeleteTrack(ctx context.Context, mangaID, serviceID int64) error

	// HasNewerFieldUpdate reports whether the field-update log holds a
	// recorded update for (entityID, field) with timestamp >= the given
	// one. RecordFieldUpdate keeps the maximum timestamp per pair.
	HasNewerFieldUpdate(ctx context.Context, entityID int64, field string, timestamp int64) (bool, error)
	RecordFieldUpdate(ctx context.Context, entityID int64, field string, timestamp int64) error
}
