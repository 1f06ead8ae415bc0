// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import (
	"context"
	"fmt"
	"log/slog"
)

// Applier merges sync reports into a local store. It is constructed with
// explicit handles to its collaborators; there is no ambient state.
//
// Apply is synchronous and single-threaded: the merge walk issues blocking
// store calls in sequence inside one transaction. Callers must serialize
// report applications that may touch overlapping natural keys.
type Applier struct {
	store    Store
	trackers TrackerRegistry
	logger   *slog.Logger
}

// NewApplier creates an applier bound to a store adapter and a tracking
// service registry. A nil logger falls back to slog.Default().
func NewApplier(store Store, trackers TrackerRegistry, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: store, trackers: trackers, logger: logger}
}

// applyCounts tracks per-kind outcomes for the report-level log line.
// Skips are policy, not errors, but they should be observable: a skipped
// entity may hide a multi-hop reference chain dropped upstream.
type applyCounts struct {
	applied map[Kind]int
	skipped map[Kind]int
}

func newApplyCounts() *applyCounts {
	return &applyCounts{applied: make(map[Kind]int), skipped: make(map[Kind]int)}
}

// Apply merges one report inside exactly one atomic transaction, processing
// kinds in ApplyOrder. It either fully succeeds (the store reflects every
// resolvable change that is newer than local state) or fully fails with the
// store unchanged. Entities whose required references cannot be resolved
// are skipped silently.
//
// The returned batch snapshots the run's id remaps and field stamps; stamps
// are already flushed to the store's field-update log before commit.
func (a *Applier) Apply(ctx context.Context, report *Report) (*ReconciliationBatch, error) {
	counts := newApplyCounts()

	err := a.store.RunInTx(ctx, func(tx Tx) error {
		if err := a.applyManga(ctx, tx, report, counts); err != nil {
			return err
		}
		if err := a.applyChapters(ctx, tx, report, counts); err != nil {
			return err
		}
		if err := a.applyHistory(ctx, tx, report, counts); err != nil {
			return err
		}
		if err := a.applyCategories(ctx, tx, report, counts); err != nil {
			return err
		}
		if err := a.applyTracks(ctx, tx, report, counts); err != nil {
			return err
		}
		return a.flushFieldStamps(ctx, tx, report)
	})
	if err != nil {
		// Scratch state from the aborted run must not leak into a retry.
		report.takeBatch()
		return nil, fmt.Errorf("apply sync report %s: %w", report.ReportID, err)
	}

	batch := report.takeBatch()
	a.logger.Info("Applied sync report",
		"report_id", report.ReportID, "device_id", report.DeviceID,
		"entities", len(report.Entities),
		"applied", counts.applied, "skipped", counts.skipped,
		"inserted_rows", len(batch.IDRemaps), "field_stamps", len(batch.FieldStamps))
	return batch, nil
}

// applyManga is phase one: every manga in the report is fetched by its
// (url, source) key or created as an uninitialized row, so later phases can
// resolve manga refs purely through the store.
func (a *Applier) applyManga(ctx context.Context, tx Tx, report *Report, counts *applyCounts) error {
	for _, e := range report.entitiesOfKind(KindManga) {
		m := e.(*SyncManga)

		row, err := tx.GetMangaByKey(ctx, m.URL, m.Source)
		if err != nil {
			return fmt.Errorf("fetch manga %q: %w", m.URL, err)
		}
		if row == nil {
			// Defer the expensive metadata fetch to normal app use.
			row = &Manga{
				ID:           report.nextProvisionalID(),
				Source:       m.Source,
				URL:          m.URL,
				Title:        m.Title,
				ThumbnailURL: m.ThumbnailURL,
				Initialized:  false,
			}
		}
		provisional := row.ID < 0

		if err := applyIfNewer(ctx, tx, report, m.Favorite, row.ID, FieldMangaFavorite, func(v bool) { row.Favorite = v }); err != nil {
			return err
		}
		if err := applyIfNewer(ctx, tx, report, m.Viewer, row.ID, FieldMangaViewer, func(v int64) { row.Viewer = v }); err != nil {
			return err
		}
		if err := applyIfNewer(ctx, tx, report, m.ChapterFlags, row.ID, FieldMangaChapterFlags, func(v int64) { row.ChapterFlags = v }); err != nil {
			return err
		}
		if err := applyIfNewer(ctx, tx, report, m.DateAdded, row.ID, FieldMangaDateAdded, func(v int64) { row.DateAdded = v }); err != nil {
			return err
		}

		id, err := tx.UpsertManga(ctx, row)
		if err != nil {
			return fmt.Errorf("persist manga %q: %w", m.URL, err)
		}
		if provisional {
			report.queueRemap(row.ID, id)
			row.ID = id
		}
		counts.applied[KindManga]++
		a.logger.Debug("Merged manga", "manga_url", m.URL, "source", m.Source, "manga_id", id, "inserted", provisional)
	}
	return nil
}

// mangaResolver memoizes store lookups of manga ids by natural key within
// one phase. Zero means the key resolved to nothing; callers treat that as
// a referential-integrity skip.
type mangaResolver struct {
	tx  Tx
	ids map[MangaRef]int64
}

func newMangaResolver(tx Tx) *mangaResolver {
	return &mangaResolver{tx: tx, ids: make(map[MangaRef]int64)}
}

func (r *mangaResolver) resolve(ctx context.Context, ref MangaRef) (int64, error) {
	if id, ok := r.ids[ref]; ok {
		return id, nil
	}
	row, err := r.tx.GetMangaByKey(ctx, ref.URL, ref.Source)
	if err != nil {
		return 0, fmt.Errorf("resolve manga ref %q: %w", ref.URL, err)
	}
	var id int64
	if row != nil {
		id = row.ID
	}
	r.ids[ref] = id
	return id, nil
}

// applyChapters is phase two. Chapters are grouped by owning manga ref —
// an access-locality optimization, the order across groups does not matter —
// and a chapter whose manga resolves to nothing is skipped entirely.
func (a *Applier) applyChapters(ctx context.Context, tx Tx, report *Report, counts *applyCounts) error {
	groups := make(map[MangaRef][]*SyncChapter)
	var order []MangaRef
	for _, e := range report.entitiesOfKind(KindChapter) {
		c := e.(*SyncChapter)
		if _, seen := groups[c.Manga]; !seen {
			order = append(order, c.Manga)
		}
		groups[c.Manga] = append(groups[c.Manga], c)
	}

	mangas := newMangaResolver(tx)
	for _, ref := range order {
		mangaID, err := mangas.resolve(ctx, ref)
		if err != nil {
			return err
		}
		if mangaID == 0 {
			counts.skipped[KindChapter] += len(groups[ref])
			a.logger.Debug("Skipping chapters for unresolved manga", "manga_url", ref.URL, "source", ref.Source, "count", len(groups[ref]))
			continue
		}

		for _, c := range groups[ref] {
			row, err := tx.GetChapterByURL(ctx, mangaID, c.URL)
			if err != nil {
				return fmt.Errorf("fetch chapter %q: %w", c.URL, err)
			}
			if row == nil {
				row = &Chapter{
					ID:            report.nextProvisionalID(),
					MangaID:       mangaID,
					URL:           c.URL,
					Name:          c.Name,
					ChapterNumber: c.ChapterNumber,
					SourceOrder:   c.SourceOrder,
				}
			}
			provisional := row.ID < 0

			if err := applyIfNewer(ctx, tx, report, c.Read, row.ID, FieldChapterRead, func(v bool) { row.Read = v }); err != nil {
				return err
			}
			if err := applyIfNewer(ctx, tx, report, c.Bookmark, row.ID, FieldChapterBookmark, func(v bool) { row.Bookmark = v }); err != nil {
				return err
			}
			if err := applyIfNewer(ctx, tx, report, c.LastPageRead, row.ID, FieldChapterLastPageRead, func(v int64) { row.LastPageRead = v }); err != nil {
				return err
			}

			id, err := tx.UpsertChapter(ctx, row)
			if err != nil {
				return fmt.Errorf("persist chapter %q: %w", c.URL, err)
			}
			if provisional {
				report.queueRemap(row.ID, id)
				row.ID = id
			}
			counts.applied[KindChapter]++
		}
	}
	return nil
}

// applyHistory is phase three. History rows hang off chapters; a history
// entry whose chapter is not in the store is skipped.
func (a *Applier) applyHistory(ctx context.Context, tx Tx, report *Report, counts *applyCounts) error {
	mangas := newMangaResolver(tx)
	for _, e := range report.entitiesOfKind(KindHistory) {
		h := e.(*SyncHistory)

		mangaID, err := mangas.resolve(ctx, h.Chapter.Manga)
		if err != nil {
			return err
		}
		var chapter *Chapter
		if mangaID != 0 {
			chapter, err = tx.GetChapterByURL(ctx, mangaID, h.Chapter.URL)
			if err != nil {
				return fmt.Errorf("resolve history chapter %q: %w", h.Chapter.URL, err)
			}
		}
		if chapter == nil {
			counts.skipped[KindHistory]++
			a.logger.Debug("Skipping history for unresolved chapter", "chapter_url", h.Chapter.URL)
			continue
		}

		row, err := tx.GetHistoryByChapter(ctx, chapter.ID)
		if err != nil {
			return fmt.Errorf("fetch history for chapter %d: %w", chapter.ID, err)
		}
		if row == nil {
			row = &History{ID: report.nextProvisionalID(), ChapterID: chapter.ID}
		}
		provisional := row.ID < 0

		if err := applyIfNewer(ctx, tx, report, h.LastRead, row.ID, FieldHistoryLastRead, func(v int64) { row.LastRead = v }); err != nil {
			return err
		}

		id, err := tx.UpsertHistory(ctx, row)
		if err != nil {
			return fmt.Errorf("persist history for chapter %d: %w", chapter.ID, err)
		}
		if provisional {
			report.queueRemap(row.ID, id)
			row.ID = id
		}
		counts.applied[KindHistory]++
	}
	return nil
}

// applyCategories is phase four: match by name (consulting old_name to
// detect renames), honor deletion before any merge, merge flag fields, then
// reconcile membership deltas against the store so repeated merges never
// duplicate association rows.
func (a *Applier) applyCategories(ctx context.Context, tx Tx, report *Report, counts *applyCounts) error {
	mangas := newMangaResolver(tx)
	for _, e := range report.entitiesOfKind(KindCategory) {
		c := e.(*SyncCategory)

		row, err := tx.GetCategoryByName(ctx, c.Name)
		if err != nil {
			return fmt.Errorf("fetch category %q: %w", c.Name, err)
		}
		if row == nil && c.OldName != "" {
			row, err = tx.GetCategoryByName(ctx, c.OldName)
			if err != nil {
				return fmt.Errorf("fetch category %q: %w", c.OldName, err)
			}
			if row != nil {
				// Rename in place, keeping the id.
				row.Name = c.Name
				a.logger.Debug("Renaming category", "old_name", c.OldName, "name", c.Name, "category_id", row.ID)
			}
		}

		if c.Deleted {
			if row != nil {
				if err := tx.DeleteCategory(ctx, row.ID); err != nil {
					return fmt.Errorf("delete category %q: %w", c.Name, err)
				}
			}
			counts.applied[KindCategory]++
			continue
		}

		if row == nil {
			row = &Category{ID: report.nextProvisionalID(), Name: c.Name}
		}
		provisional := row.ID < 0

		if err := applyIfNewer(ctx, tx, report, c.Order, row.ID, FieldCategoryOrder, func(v int64) { row.Order = v }); err != nil {
			return err
		}
		if err := applyIfNewer(ctx, tx, report, c.Flags, row.ID, FieldCategoryFlags, func(v int64) { row.Flags = v }); err != nil {
			return err
		}

		id, err := tx.UpsertCategory(ctx, row)
		if err != nil {
			return fmt.Errorf("persist category %q: %w", c.Name, err)
		}
		if provisional {
			report.queueRemap(row.ID, id)
			row.ID = id
		}

		if err := a.mergeCategoryMembers(ctx, tx, mangas, c, id); err != nil {
			return err
		}
		counts.applied[KindCategory]++
	}
	return nil
}

// mergeCategoryMembers applies membership deltas. The category row is
// persisted by now, so the real id is known and no remap is needed for
// association rows. Adds already present are filtered; refs that resolve
// to nothing are dropped.
func (a *Applier) mergeCategoryMembers(ctx context.Context, tx Tx, mangas *mangaResolver, c *SyncCategory, categoryID int64) error {
	current, err := tx.CategoryMembers(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("list members of category %q: %w", c.Name, err)
	}
	present := make(map[int64]bool, len(current))
	for _, id := range current {
		present[id] = true
	}

	for _, ref := range c.AddedManga {
		mangaID, err := mangas.resolve(ctx, ref)
		if err != nil {
			return err
		}
		if mangaID == 0 || present[mangaID] {
			continue
		}
		if err := tx.AddCategoryMember(ctx, categoryID, mangaID); err != nil {
			return fmt.Errorf("add manga %d to category %q: %w", mangaID, c.Name, err)
		}
		present[mangaID] = true
	}

	for _, ref := range c.RemovedManga {
		mangaID, err := mangas.resolve(ctx, ref)
		if err != nil {
			return err
		}
		if mangaID == 0 || !present[mangaID] {
			continue
		}
		if err := tx.RemoveCategoryMember(ctx, categoryID, mangaID); err != nil {
			return fmt.Errorf("remove manga %d from category %q: %w", mangaID, c.Name, err)
		}
		delete(present, mangaID)
	}
	return nil
}

// applyTracks is phase five. A track needs both a locally registered
// tracking service and a resolvable manga; either miss skips the entity.
// Deletion takes precedence over any field values the entity carries.
func (a *Applier) applyTracks(ctx context.Context, tx Tx, report *Report, counts *applyCounts) error {
	mangas := newMangaResolver(tx)
	for _, e := range report.entitiesOfKind(KindTrack) {
		t := e.(*SyncTrack)

		svc, ok := a.trackers.Lookup(t.ServiceID)
		if !ok {
			counts.skipped[KindTrack]++
			a.logger.Debug("Skipping track for unknown service", "service_id", t.ServiceID, "manga_url", t.Manga.URL)
			continue
		}

		mangaID, err := mangas.resolve(ctx, t.Manga)
		if err != nil {
			return err
		}
		if mangaID == 0 {
			counts.skipped[KindTrack]++
			a.logger.Debug("Skipping track for unresolved manga", "service", svc.Name, "manga_url", t.Manga.URL)
			continue
		}

		if t.Deleted {
			if err := tx.DeleteTrack(ctx, mangaID, t.ServiceID); err != nil {
				return fmt.Errorf("delete track (%d,%d): %w", mangaID, t.ServiceID, err)
			}
			counts.applied[KindTrack]++
			continue
		}

		row, err := tx.GetTrack(ctx, mangaID, t.ServiceID)
		if err != nil {
			return fmt.Errorf("fetch track (%d,%d): %w", mangaID, t.ServiceID, err)
		}
		if row == nil {
			row = &Track{ID: report.nextProvisionalID(), MangaID: mangaID, ServiceID: t.ServiceID}
		}
		provisional := row.ID < 0

		// Remote identity re-binds on every merge; trackers key on it.
		if t.RemoteID != 0 {
			row.RemoteID = t.RemoteID
		}
		if t.RemoteURL != "" {
			row.RemoteURL = t.RemoteURL
		}
		if t.Title != "" {
			row.Title = t.Title
		}

		if err := applyIfNewer(ctx, tx, report, t.LastChapterRead, row.ID, FieldTrackLastChapterRead, func(v float64) { row.LastChapterRead = v }); err != nil {
			return err
		}
		if err := applyIfNewer(ctx, tx, report, t.Status, row.ID, FieldTrackStatus, func(v int64) { row.Status = v }); err != nil {
			return err
		}
		if err := applyIfNewer(ctx, tx, report, t.Score, row.ID, FieldTrackScore, func(v float64) { row.Score = v }); err != nil {
			return err
		}

		id, err := tx.UpsertTrack(ctx, row)
		if err != nil {
			return fmt.Errorf("persist track (%d,%d): %w", mangaID, t.ServiceID, err)
		}
		if provisional {
			report.queueRemap(row.ID, id)
			row.ID = id
		}
		counts.applied[KindTrack]++
	}
	return nil
}

// flushFieldStamps writes the queued timestamp corrections into the store's
// field-update log before commit. Stamps queued against provisional ids are
// back-patched through the id-remap queue; a stamp whose provisional id has
// no remap means the row was never inserted, which is an engine bug.
func (a *Applier) flushFieldStamps(ctx context.Context, tx Tx, report *Report) error {
	remaps := make(map[int64]int64, len(report.scratch.idRemaps))
	for _, remap := range report.scratch.idRemaps {
		remaps[remap.Provisional] = remap.Assigned
	}

	for i := range report.scratch.fieldStamps {
		stamp := &report.scratch.fieldStamps[i]
		if stamp.EntityID < 0 {
			assigned, ok := remaps[stamp.EntityID]
			if !ok {
				return fmt.Errorf("field stamp %s references unmapped provisional id %d", stamp.Field, stamp.EntityID)
			}
			stamp.EntityID = assigned
		}
		if err := tx.RecordFieldUpdate(ctx, stamp.EntityID, stamp.Field, stamp.Timestamp); err != nil {
			return fmt.Errorf("record field update %s for %d: %w", stamp.Field, stamp.EntityID, err)
		}
	}
	return nil
}
