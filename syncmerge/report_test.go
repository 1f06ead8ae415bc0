// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import "testing"

func TestProvisionalIDsAreStrictlyDecreasingNegatives(t *testing.T) {
	report := NewReport("device-a")

	seen := make(map[int64]bool)
	prev := int64(0)
	for i := 0; i < 100; i++ {
		id := report.nextProvisionalID()
		if id >= 0 {
			t.Fatalf("provisional id %d is not negative", id)
		}
		if id >= prev {
			t.Fatalf("provisional id %d is not strictly below previous %d", id, prev)
		}
		if seen[id] {
			t.Fatalf("provisional id %d handed out twice", id)
		}
		seen[id] = true
		prev = id
	}
}

func TestTakeBatchResetsScratchState(t *testing.T) {
	report := NewReport("device-a")

	p := report.nextProvisionalID()
	report.queueRemap(p, 42)
	report.stampField(p, FieldMangaFavorite, 1000)

	batch := report.takeBatch()
	if len(batch.IDRemaps) != 1 || batch.IDRemaps[0] != (IDRemap{Provisional: p, Assigned: 42}) {
		t.Fatalf("unexpected remaps: %+v", batch.IDRemaps)
	}
	if len(batch.FieldStamps) != 1 {
		t.Fatalf("expected one field stamp, got %d", len(batch.FieldStamps))
	}

	// A second run must start from a clean allocator and empty queues.
	second := report.takeBatch()
	if len(second.IDRemaps) != 0 || len(second.FieldStamps) != 0 {
		t.Fatalf("scratch state leaked across runs: %+v", second)
	}
	if id := report.nextProvisionalID(); id != -1 {
		t.Fatalf("allocator not reset, first id after reset = %d", id)
	}
}
