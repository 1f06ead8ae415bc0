// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import "testing"

func TestFindMangaMatchesByNaturalKey(t *testing.T) {
	report := NewReport("d",
		&SyncManga{Source: 1, URL: "/m/a", Title: "A"},
		&SyncManga{Source: 2, URL: "/m/a", Title: "A on another source"},
		&SyncChapter{URL: "/m/a/c1", Manga: MangaRef{URL: "/m/a", Source: 2}},
	)

	m, ok := report.FindManga(MangaRef{URL: "/m/a", Source: 2})
	if !ok {
		t.Fatal("expected match")
	}
	if m.Title != "A on another source" {
		t.Fatalf("matched wrong entity: %q", m.Title)
	}

	if _, ok := report.FindManga(MangaRef{URL: "/m/a", Source: 3}); ok {
		t.Fatal("source is part of the natural key, must not match")
	}
}

func TestFindChapterMatchesURLAndOwner(t *testing.T) {
	ref := ChapterRef{URL: "/m/a/c1", Manga: MangaRef{URL: "/m/a", Source: 1}}
	report := NewReport("d",
		&SyncChapter{URL: "/m/a/c1", Manga: MangaRef{URL: "/m/b", Source: 1}},
		&SyncChapter{URL: "/m/a/c1", Manga: MangaRef{URL: "/m/a", Source: 1}, Name: "wanted"},
	)

	c, ok := report.FindChapter(ref)
	if !ok || c.Name != "wanted" {
		t.Fatalf("resolved wrong chapter: %+v ok=%v", c, ok)
	}
}

func TestFindCategoryMiss(t *testing.T) {
	report := NewReport("d", &SyncCategory{Name: "Reading"})
	if _, ok := report.FindCategory("Completed"); ok {
		t.Fatal("unexpected match")
	}
	if _, ok := report.FindCategory("Reading"); !ok {
		t.Fatal("expected match")
	}
}
