// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncpg

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dev2ryze/TachiWeb-Server/syncmerge"
)

// These tests need a running PostgreSQL instance; set TACHIWEB_TEST_PG to a
// DSN (e.g. postgres://localhost:5432/tachiweb_test) to enable them.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TACHIWEB_TEST_PG")
	if dsn == "" {
		t.Skip("TACHIWEB_TEST_PG not set, skipping postgres adapter tests")
	}
	store, err := Connect(context.Background(), dsn, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

// uniqueURL keeps repeated runs against a shared database from colliding.
func uniqueURL(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestMangaRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	url := uniqueURL("/manga/rt")

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		id, err := tx.UpsertManga(ctx, &syncmerge.Manga{Source: 3, URL: url, Title: "Alpha", Favorite: true})
		require.NoError(t, err)
		require.Greater(t, id, int64(0))

		m, err := tx.GetMangaByKey(ctx, url, 3)
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Equal(t, id, m.ID)
		require.True(t, m.Favorite)
		return nil
	})
	require.NoError(t, err)
}

func TestFieldLogKeepMax(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	entityID := time.Now().UnixNano()

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		require.NoError(t, tx.RecordFieldUpdate(ctx, entityID, syncmerge.FieldTrackScore, 2000))
		require.NoError(t, tx.RecordFieldUpdate(ctx, entityID, syncmerge.FieldTrackScore, 1000))

		newer, err := tx.HasNewerFieldUpdate(ctx, entityID, syncmerge.FieldTrackScore, 1500)
		require.NoError(t, err)
		require.True(t, newer)

		newer, err = tx.HasNewerFieldUpdate(ctx, entityID, syncmerge.FieldTrackScore, 2001)
		require.NoError(t, err)
		require.False(t, newer)
		return nil
	})
	require.NoError(t, err)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	url := uniqueURL("/manga/rb")

	err := store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		_, err := tx.UpsertManga(ctx, &syncmerge.Manga{Source: 1, URL: url})
		require.NoError(t, err)
		return fmt.Errorf("forced rollback")
	})
	require.Error(t, err)

	err = store.RunInTx(ctx, func(tx syncmerge.Tx) error {
		m, err := tx.GetMangaByKey(ctx, url, 1)
		require.NoError(t, err)
		require.Nil(t, m)
		return nil
	})
	require.NoError(t, err)
}
