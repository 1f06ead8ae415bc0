// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Wire codec for sync reports. Each entity is a JSON object tagged with a
// short type string: the entity class name with the "Sync" prefix stripped
// ("Manga", "Chapter", ...). The tag set is closed: decoders live in a
// static table and an unknown tag fails decode before the engine ever sees
// the report.

type wireReport struct {
	ReportID string            `json:"report_id,omitempty"`
	DeviceID string            `json:"device_id,omitempty"`
	Entities []json.RawMessage `json:"entities"`
}

type wireTag struct {
	Type string `json:"type"`
}

var entityDecoders = map[Kind]func(json.RawMessage) (Entity, error){
	KindManga:    decodeInto[SyncManga],
	KindChapter:  decodeInto[SyncChapter],
	KindHistory:  decodeInto[SyncHistory],
	KindCategory: decodeInto[SyncCategory],
	KindTrack:    decodeInto[SyncTrack],
}

func decodeInto[E any](raw json.RawMessage) (Entity, error) {
	e := new(E)
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, err
	}
	entity, ok := any(e).(Entity)
	if !ok {
		return nil, fmt.Errorf("type %T is not a sync entity", e)
	}
	return entity, nil
}

// DecodeReport parses a wire payload into a Report. A fresh report id is
// assigned when the payload carries none, so every apply is traceable.
func DecodeReport(data []byte) (*Report, error) {
	var wire wireReport
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode sync report: %w", err)
	}

	report := &Report{DeviceID: wire.DeviceID}
	if wire.ReportID != "" {
		id, err := uuid.Parse(wire.ReportID)
		if err != nil {
			return nil, fmt.Errorf("decode sync report: bad report id %q: %w", wire.ReportID, err)
		}
		report.ReportID = id
	} else {
		report.ReportID = uuid.New()
	}

	for i, raw := range wire.Entities {
		var tag wireTag
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("decode sync report: entity %d: %w", i, err)
		}
		decode, ok := entityDecoders[Kind(tag.Type)]
		if !ok {
			return nil, fmt.Errorf("decode sync report: entity %d: unknown type tag %q", i, tag.Type)
		}
		entity, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode sync report: entity %d (%s): %w", i, tag.Type, err)
		}
		report.Entities = append(report.Entities, entity)
	}

	return report, nil
}

// EncodeReport serializes a report to the wire format accepted by
// DecodeReport, so replicas built on this module can also produce reports.
func EncodeReport(r *Report) ([]byte, error) {
	wire := wireReport{
		DeviceID: r.DeviceID,
		Entities: make([]json.RawMessage, 0, len(r.Entities)),
	}
	if r.ReportID != uuid.Nil {
		wire.ReportID = r.ReportID.String()
	}

	for i, entity := range r.Entities {
		raw, err := json.Marshal(entity)
		if err != nil {
			return nil, fmt.Errorf("encode sync report: entity %d: %w", i, err)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("encode sync report: entity %d: %w", i, err)
		}
		tag, err := json.Marshal(string(entity.Kind()))
		if err != nil {
			return nil, err
		}
		obj["type"] = tag
		tagged, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encode sync report: entity %d: %w", i, err)
		}
		wire.Entities = append(wire.Entities, tagged)
	}

	return json.Marshal(wire)
}
