// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

// Package syncmerge merges remotely-produced sync reports into a local
// library store. A report is a batch of entity changes captured on another
// replica; the engine resolves symbolic references, applies per-field
// last-writer-wins conflict resolution against the store's field-update
// history, and persists everything inside one atomic transaction.
package syncmerge

// ChangedField is one proposed mutation to one field of one entity,
// stamped with the originating replica's clock (Unix milliseconds).
// It is never mutated after construction; a nil *ChangedField means
// "no proposed mutation" for that field.
type ChangedField[T any] struct {
	Value     T     `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// NewChangedField is a convenience constructor used by report producers.
func NewChangedField[T any](value T, timestamp int64) *ChangedField[T] {
	return &ChangedField[T]{Value: value, Timestamp: timestamp}
}

// MangaRef is a symbolic pointer to a manga by its natural key. Reports
// never carry local numeric ids; referenced rows may not exist on the
// receiving replica until the merge creates them.
type MangaRef struct {
	URL    string `json:"url"`
	Source int64  `json:"source"`
}

// ChapterRef is a symbolic pointer to a chapter. The chapter url is unique
// within its owning manga, so the ref carries the manga key as well.
type ChapterRef struct {
	URL   string   `json:"url"`
	Manga MangaRef `json:"manga"`
}

// Kind identifies one of the closed set of syncable entity kinds.
type Kind string

const (
	KindManga    Kind = "Manga"
	KindChapter  Kind = "Chapter"
	KindHistory  Kind = "History"
	KindCategory Kind = "Category"
	KindTrack    Kind = "Track"
)

// ApplyOrder is the fixed kind ordering used by the applier. Later kinds
// reference earlier ones by natural key and, transitively, by local id.
var ApplyOrder = []Kind{KindManga, KindChapter, KindHistory, KindCategory, KindTrack}

// Entity is implemented by every sync entity variant.
type Entity interface {
	Kind() Kind
}

// SyncManga is a proposed change set for one manga, addressed by its
// (url, source) natural key.
type SyncManga struct {
	Source       int64  `json:"source"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	Favorite     *ChangedField[bool]  `json:"favorite,omitempty"`
	Viewer       *ChangedField[int64] `json:"viewer,omitempty"`
	ChapterFlags *ChangedField[int64] `json:"chapter_flags,omitempty"`
	DateAdded    *ChangedField[int64] `json:"date_added,omitempty"`
}

func (*SyncManga) Kind() Kind { return KindManga }

// Ref returns the manga's own natural key as a reference.
func (m *SyncManga) Ref() MangaRef { return MangaRef{URL: m.URL, Source: m.Source} }

// SyncChapter is a proposed change set for one chapter of a manga.
type SyncChapter struct {
	URL   string   `json:"url"`
	Manga MangaRef `json:"manga"`

	Name          string  `json:"name,omitempty"`
	ChapterNumber float64 `json:"chapter_number,omitempty"`
	SourceOrder   int64   `json:"source_order,omitempty"`

	Read         *ChangedField[bool]  `json:"read,omitempty"`
	Bookmark     *ChangedField[bool]  `json:"bookmark,omitempty"`
	LastPageRead *ChangedField[int64] `json:"last_page_read,omitempty"`
}

func (*SyncChapter) Kind() Kind { return KindChapter }

// SyncHistory is a proposed reading-history change for one chapter.
// History cannot exist without its chapter, so an unresolved chapter ref
// skips the entry.
type SyncHistory struct {
	Chapter  ChapterRef           `json:"chapter"`
	LastRead *ChangedField[int64] `json:"last_read,omitempty"`
}

func (*SyncHistory) Kind() Kind { return KindHistory }

// SyncCategory is a proposed change set for one category, matched by name.
// OldName, when set, marks a rename: the existing row keeps its id and is
// renamed in place. AddedManga and RemovedManga are membership deltas;
// the applier filters adds that are already present so repeated merges stay
// idempotent.
type SyncCategory struct {
	Name    string `json:"name"`
	OldName string `json:"old_name,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`

	Order *ChangedField[int64] `json:"order,omitempty"`
	Flags *ChangedField[int64] `json:"flags,omitempty"`

	AddedManga   []MangaRef `json:"added_manga,omitempty"`
	RemovedManga []MangaRef `json:"removed_manga,omitempty"`
}

func (*SyncCategory) Kind() Kind { return KindCategory }

// SyncTrack is a proposed change set for one tracking-service binding of a
// manga, addressed by (manga, service) once the manga resolves.
type SyncTrack struct {
	Manga     MangaRef `json:"manga"`
	ServiceID int64    `json:"service_id"`
	Deleted   bool     `json:"deleted,omitempty"`

	RemoteID  int64  `json:"remote_id,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
	Title     string `json:"title,omitempty"`

	LastChapterRead *ChangedField[float64] `json:"last_chapter_read,omitempty"`
	Status          *ChangedField[int64]   `json:"status,omitempty"`
	Score           *ChangedField[float64] `json:"score,omitempty"`
}

func (*SyncTrack) Kind() Kind { return KindTrack }
