// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
	"github.com/dev2ryze/TachiWeb-Server/syncsqlite"
)

// Harness wires the applier to an in-memory SQLite library for end-to-end
// merge tests.
type Harness struct {
	t       *testing.T
	Store   *syncsqlite.Store
	Applier *syncmerge.Applier
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()
	store, err := syncsqlite.Open(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	trackers := syncmerge.NewTrackerRegistry(
		syncmerge.TrackerService{ID: 1, Name: "MyAnimeList"},
		syncmerge.TrackerService{ID: 2, Name: "AniList"},
	)
	return &Harness{
		t:       t,
		Store:   store,
		Applier: syncmerge.NewApplier(store, trackers, testLogger()),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h *Harness) Apply(report *syncmerge.Report) *syncmerge.ReconciliationBatch {
	h.t.Helper()
	batch, err := h.Applier.Apply(context.Background(), report)
	require.NoError(h.t, err)
	return batch
}

// inTx runs read helpers through the store adapter so tests observe exactly
// what the engine would.
func (h *Harness) inTx(fn func(tx syncmerge.Tx) error) {
	h.t.Helper()
	require.NoError(h.t, h.Store.RunInTx(context.Background(), fn))
}

func (h *Harness) MangaByKey(url string, source int64) *syncmerge.Manga {
	h.t.Helper()
	var m *syncmerge.Manga
	h.inTx(func(tx syncmerge.Tx) error {
		var err error
		m, err = tx.GetMangaByKey(context.Background(), url, source)
		return err
	})
	return m
}

func (h *Harness) ChapterByURL(mangaID int64, url string) *syncmerge.Chapter {
	h.t.Helper()
	var c *syncmerge.Chapter
	h.inTx(func(tx syncmerge.Tx) error {
		var err error
		c, err = tx.GetChapterByURL(context.Background(), mangaID, url)
		return err
	})
	return c
}

func (h *Harness) CategoryByName(name string) *syncmerge.Category {
	h.t.Helper()
	var c *syncmerge.Category
	h.inTx(func(tx syncmerge.Tx) error {
		var err error
		c, err = tx.GetCategoryByName(context.Background(), name)
		return err
	})
	return c
}

func (h *Harness) TrackFor(mangaID, serviceID int64) *syncmerge.Track {
	h.t.Helper()
	var tr *syncmerge.Track
	h.inTx(func(tx syncmerge.Tx) error {
		var err error
		tr, err = tx.GetTrack(context.Background(), mangaID, serviceID)
		return err
	})
	return tr
}

func (h *Harness) CountRows(table string) int {
	h.t.Helper()
	var n int
	err := h.Store.DB().QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n)
	require.NoError(h.t, err)
	return n
}

// ErrSimulatedFailure is returned by the fault-injecting store wrapper.
var ErrSimulatedFailure = errors.New("simulated store failure")

// faultStore wraps a real store and fails a chosen operation, for atomicity
// tests. The wrapped transaction still runs against SQLite, so everything
// applied before the fault must be rolled back by the engine's transaction.
type faultStore struct {
	inner             syncmerge.Store
	failUpsertHistory bool
}

func (s *faultStore) RunInTx(ctx context.Context, fn func(tx syncmerge.Tx) error) error {
	return s.inner.RunInTx(ctx, func(tx syncmerge.Tx) error {
		return fn(&faultTx{Tx: tx, store: s})
	})
}

type faultTx struct {
	syncmerge.Tx
	store *faultStore
}

func (t *faultTx) UpsertHistory(ctx context.Context, h *syncmerge.History) (int64, error) {
	if t.store.failUpsertHistory {
		return 0, ErrSimulatedFailure
	}
	return t.Tx.UpsertHistory(ctx, h)
}
