// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncsqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMangaRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		var err error
		id, err = tx.UpsertManga(ctx, &syncmerge.Manga{
			Source: 3, URL: "/manga/1", Title: "Alpha", Favorite: true, Viewer: 2,
		})
		return err
	})
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	err = store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		m, err := tx.GetMangaByKey(ctx, "/manga/1", 3)
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Equal(t, id, m.ID)
		require.Equal(t, "Alpha", m.Title)
		require.True(t, m.Favorite)
		require.False(t, m.Initialized)

		missing, err := tx.GetMangaByKey(ctx, "/manga/1", 99)
		require.NoError(t, err)
		require.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		id, err := tx.UpsertManga(ctx, &syncmerge.Manga{Source: 1, URL: "/m", Title: "v1"})
		require.NoError(t, err)

		again, err := tx.UpsertManga(ctx, &syncmerge.Manga{ID: id, Source: 1, URL: "/m", Title: "v2", Favorite: true})
		require.NoError(t, err)
		require.Equal(t, id, again)

		m, err := tx.GetMangaByKey(ctx, "/m", 1)
		require.NoError(t, err)
		require.Equal(t, "v2", m.Title)
		require.True(t, m.Favorite)
		return nil
	})
	require.NoError(t, err)
}

func TestFieldLogSemantics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		require.NoError(t, tx.RecordFieldUpdate(ctx, 5, syncmerge.FieldMangaFavorite, 1000))

		// Equal timestamps count as newer (incoming change loses ties).
		newer, err := tx.HasNewerFieldUpdate(ctx, 5, syncmerge.FieldMangaFavorite, 1000)
		require.NoError(t, err)
		require.True(t, newer)

		newer, err = tx.HasNewerFieldUpdate(ctx, 5, syncmerge.FieldMangaFavorite, 1001)
		require.NoError(t, err)
		require.False(t, newer)

		// Other fields and ids have independent histories.
		newer, err = tx.HasNewerFieldUpdate(ctx, 5, syncmerge.FieldMangaViewer, 1)
		require.NoError(t, err)
		require.False(t, newer)

		// Keep-max: recording an older stamp must not move the log backwards.
		require.NoError(t, tx.RecordFieldUpdate(ctx, 5, syncmerge.FieldMangaFavorite, 500))
		newer, err = tx.HasNewerFieldUpdate(ctx, 5, syncmerge.FieldMangaFavorite, 1000)
		require.NoError(t, err)
		require.True(t, newer)
		return nil
	})
	require.NoError(t, err)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		_, err := tx.UpsertManga(ctx, &syncmerge.Manga{Source: 1, URL: "/m", Title: "doomed"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		m, err := tx.GetMangaByKey(ctx, "/m", 1)
		require.NoError(t, err)
		require.Nil(t, m)
		return nil
	})
	require.NoError(t, err)
}

func TestCategoryMembershipIsDeduplicated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		mangaID, err := tx.UpsertManga(ctx, &syncmerge.Manga{Source: 1, URL: "/m"})
		require.NoError(t, err)
		catID, err := tx.UpsertCategory(ctx, &syncmerge.Category{Name: "Reading"})
		require.NoError(t, err)

		require.NoError(t, tx.AddCategoryMember(ctx, catID, mangaID))
		require.NoError(t, tx.AddCategoryMember(ctx, catID, mangaID))

		members, err := tx.CategoryMembers(ctx, catID)
		require.NoError(t, err)
		require.Equal(t, []int64{mangaID}, members)

		require.NoError(t, tx.RemoveCategoryMember(ctx, catID, mangaID))
		members, err = tx.CategoryMembers(ctx, catID)
		require.NoError(t, err)
		require.Empty(t, members)
		return nil
	})
	require.NoError(t, err)
}

func TestTrackLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		mangaID, err := tx.UpsertManga(ctx, &syncmerge.Manga{Source: 1, URL: "/m"})
		require.NoError(t, err)

		id, err := tx.UpsertTrack(ctx, &syncmerge.Track{MangaID: mangaID, ServiceID: 2, RemoteID: 77, Status: 1})
		require.NoError(t, err)

		tr, err := tx.GetTrack(ctx, mangaID, 2)
		require.NoError(t, err)
		require.NotNil(t, tr)
		require.Equal(t, id, tr.ID)
		require.Equal(t, int64(77), tr.RemoteID)

		require.NoError(t, tx.DeleteTrack(ctx, mangaID, 2))
		tr, err = tx.GetTrack(ctx, mangaID, 2)
		require.NoError(t, err)
		require.Nil(t, tr)
		return nil
	})
	require.NoError(t, err)
}
