// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import "github.com/google/uuid"

// Report is one batch of proposed entity changes produced by a remote
// replica. It is consumed exactly once by Applier.Apply and discarded.
//
// The embedded scratch state (provisional-id allocator, id-remap queue,
// field-stamp queue) is write-only during an apply run and carries no
// information between separate applies.
type Report struct {
	ReportID uuid.UUID `json:"report_id"`
	DeviceID string    `json:"device_id,omitempty"`
	Entities []Entity  `json:"-"`

	scratch scratch
}

// NewReport builds a report for the given entities with a fresh report id.
func NewReport(deviceID string, entities ...Entity) *Report {
	return &Report{
		ReportID: uuid.New(),
		DeviceID: deviceID,
		Entities: entities,
	}
}

// IDRemap pairs a provisional id handed out during an apply run with the
// id the store assigned when the row was inserted.
type IDRemap struct {
	Provisional int64
	Assigned    int64
}

// FieldStamp records that a field value with the given timestamp was
// applied to an entity; it becomes a row in the store's field-update log
// once provisional ids are remapped.
type FieldStamp struct {
	EntityID  int64
	Field     string
	Timestamp int64
}

// ReconciliationBatch is the scratch state of one apply run, returned to
// the caller after the transaction commits. Field stamps have already been
// flushed to the store (with provisional ids remapped); the batch is a
// snapshot for observability and tests.
type ReconciliationBatch struct {
	IDRemaps    []IDRemap
	FieldStamps []FieldStamp
}

type scratch struct {
	lastProvisional int64
	idRemaps        []IDRemap
	fieldStamps     []FieldStamp
}

// nextProvisionalID returns a fresh strictly-decreasing negative id, scoped
// to the current apply run. Provisional ids never leave the engine.
func (r *Report) nextProvisionalID() int64 {
	r.scratch.lastProvisional--
	return r.scratch.lastProvisional
}

func (r *Report) queueRemap(provisional, assigned int64) {
	r.scratch.idRemaps = append(r.scratch.idRemaps, IDRemap{Provisional: provisional, Assigned: assigned})
}

func (r *Report) stampField(entityID int64, field string, timestamp int64) {
	r.scratch.fieldStamps = append(r.scratch.fieldStamps, FieldStamp{
		EntityID:  entityID,
		Field:     field,
		Timestamp: timestamp,
	})
}

// takeBatch snapshots and resets the scratch state so a report object can
// never leak provisional-era data into a later run.
func (r *Report) takeBatch() *ReconciliationBatch {
	batch := &ReconciliationBatch{
		IDRemaps:    r.scratch.idRemaps,
		FieldStamps: r.scratch.fieldStamps,
	}
	r.scratch = scratch{}
	return batch
}
