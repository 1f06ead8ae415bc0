// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

// In-report entity resolution. A SyncRef is matched against the report's
// own entity collection by natural key; when nothing matches, the applier
// falls back to a store lookup with the same key, and an overall miss means
// the dependent entity is skipped, never a failure.

// FindManga returns the in-report manga entity matching ref, if any.
func (r *Report) FindManga(ref MangaRef) (*SyncManga, bool) {
	for _, e := range r.Entities {
		if m, ok := e.(*SyncManga); ok && m.URL == ref.URL && m.Source == ref.Source {
			return m, true
		}
	}
	return nil, false
}

// FindChapter returns the in-report chapter entity matching ref, if any.
func (r *Report) FindChapter(ref ChapterRef) (*SyncChapter, bool) {
	for _, e := range r.Entities {
		if c, ok := e.(*SyncChapter); ok && c.URL == ref.URL && c.Manga == ref.Manga {
			return c, true
		}
	}
	return nil, false
}

// FindCategory returns the in-report category entity with the given name,
// if any.
func (r *Report) FindCategory(name string) (*SyncCategory, bool) {
	for _, e := range r.Entities {
		if c, ok := e.(*SyncCategory); ok && c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// entitiesOfKind returns the report's entities of one kind, in report order.
func (r *Report) entitiesOfKind(kind Kind) []Entity {
	var out []Entity
	for _, e := range r.Entities {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}
