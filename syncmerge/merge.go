// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import (
	"context"
	"fmt"
)

// applyIfNewer is the per-field last-writer-wins gate.
//
// A nil change encodes "no proposed mutation" and is a no-op. When localID
// is provisional (negative) the row has no prior history, so the change is
// applied unconditionally. Otherwise the change is applied only if the
// field-update log holds no update for (localID, field) timestamped at or
// after the change. Every applied change queues a field stamp in the
// report's scratch state; the applier flushes stamps to the log at the end
// of the transaction, remapping provisional ids first.
//
// Conflict resolution is per field, not per entity: two replicas can each
// legitimately own different fields of the same record.
func applyIfNewer[T any](ctx context.Context, tx Tx, report *Report, change *ChangedField[T], localID int64, field string, set func(T)) error {
	if change == nil {
		return nil
	}
	if localID >= 0 {
		newer, err := tx.HasNewerFieldUpdate(ctx, localID, field, change.Timestamp)
		if err != nil {
			return fmt.Errorf("check field history for %s: %w", field, err)
		}
		if newer {
			return nil
		}
	}
	set(change.Value)
	report.stampField(localID, field, change.Timestamp)
	return nil
}
