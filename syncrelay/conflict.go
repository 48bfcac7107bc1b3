// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Resolution is the outcome of merging an incoming delta into the stored
// record. When Applied is false the stored record is untouched and nothing
// is persisted or broadcast (stale or duplicate delivery).
type Resolution struct {
	Record   *EntityRecord
	Applied  bool
	Conflict *ConflictRecord
}

// Resolve merges an incoming delta from sourceDeviceID into the stored
// record. stored may be nil for an entity the relay has never seen; the
// first write always applies cleanly.
//
// Causally ordered deltas apply (or discard) cleanly. Concurrent deltas
// resolve by last-writer-wins over wall-clock timestamps, per overlapping
// field, with the lexicographically greater device ID breaking exact ties.
// Equal clocks with divergent field values are a caller error; they resolve
// the same way and are flagged as a conflict rather than silently dropped.
//
// Pure logic: no I/O, no locks, deterministic for identical inputs.
func Resolve(stored *EntityRecord, delta *DeltaChange, sourceDeviceID string) Resolution {
	if stored == nil {
		// First write for this entity. There is nothing to conflict with,
		// whatever the incoming clock looks like (including an empty one,
		// which would otherwise compare EQUAL to the all-zero baseline).
		baseline := &EntityRecord{
			EntityType:  delta.EntityType,
			EntityID:    delta.EntityID,
			Fields:      map[string]any{},
			VectorClock: VectorClock{},
		}
		return Resolution{Record: applyDownstream(baseline, delta, sourceDeviceID), Applied: true}
	}

	switch delta.VectorClock.Compare(stored.VectorClock) {
	case OrderDominates:
		// The edit is causally downstream of everything already known.
		return Resolution{Record: applyDownstream(stored, delta, sourceDeviceID), Applied: true}

	case OrderDominated:
		// Stale or duplicate, already superseded. Idempotent redelivery is
		// safe: record and clock stay unchanged, no conflict counted.
		return Resolution{Record: stored, Applied: false}

	case OrderEqual:
		if !divergesFromStored(stored, delta) {
			// Exact redelivery of a delta the record already reflects.
			return Resolution{Record: stored, Applied: false}
		}
		// Same clock, different content: resolve as a conflict for safety.
		return resolveConcurrent(stored, delta, sourceDeviceID)

	default: // OrderConcurrent
		return resolveConcurrent(stored, delta, sourceDeviceID)
	}
}

// applyDownstream applies a causally dominating delta: changed fields overlay
// stored fields and the incoming clock is taken verbatim.
func applyDownstream(stored *EntityRecord, delta *DeltaChange, sourceDeviceID string) *EntityRecord {
	fields := copyFields(stored.Fields)
	for name, value := range delta.ChangedFields {
		fields[name] = value
	}

	// A dominating writer observed the current state, including any
	// tombstone, so its operation decides the flag outright.
	deleted := delta.Op == OpDelete

	return &EntityRecord{
		EntityType:          stored.EntityType,
		EntityID:            stored.EntityID,
		Fields:              fields,
		VectorClock:         delta.VectorClock.Copy(),
		Deleted:             deleted,
		LastWriterDeviceID:  sourceDeviceID,
		LastWriterTimestamp: delta.Timestamp,
	}
}

// resolveConcurrent merges two concurrent writers deterministically.
// Overlapping fields go to the later wall-clock timestamp; non-overlapping
// fields from both sides are kept. The merged clock is the component-wise
// maximum of both clocks. A ConflictRecord is emitted regardless of outcome.
func resolveConcurrent(stored *EntityRecord, delta *DeltaChange, sourceDeviceID string) Resolution {
	incomingWins := delta.Timestamp > stored.LastWriterTimestamp ||
		(delta.Timestamp == stored.LastWriterTimestamp && sourceDeviceID > stored.LastWriterDeviceID)

	fields := copyFields(stored.Fields)
	for name, value := range delta.ChangedFields {
		if _, overlaps := fields[name]; !overlaps || incomingWins {
			fields[name] = value
		}
	}

	deleted := stored.Deleted
	if incomingWins {
		deleted = delta.Op == OpDelete
	}

	writerDeviceID := stored.LastWriterDeviceID
	writerTimestamp := stored.LastWriterTimestamp
	if incomingWins {
		writerDeviceID = sourceDeviceID
		writerTimestamp = delta.Timestamp
	}

	winner := stored.LastWriterDeviceID
	if incomingWins {
		winner = sourceDeviceID
	}

	conflict := &ConflictRecord{
		ID:                uuid.New().String(),
		EntityType:        stored.EntityType,
		EntityID:          stored.EntityID,
		IncomingDeviceID:  sourceDeviceID,
		IncomingTimestamp: delta.Timestamp,
		IncomingClock:     delta.VectorClock.Copy(),
		StoredDeviceID:    stored.LastWriterDeviceID,
		StoredTimestamp:   stored.LastWriterTimestamp,
		StoredClock:       stored.VectorClock.Copy(),
		Strategy:          StrategyLWW,
		WinningDeviceID:   winner,
		ResolvedAt:        time.Now().UTC(),
	}

	merged := &EntityRecord{
		EntityType:          stored.EntityType,
		EntityID:            stored.EntityID,
		Fields:              fields,
		VectorClock:         stored.VectorClock.Merge(delta.VectorClock),
		Deleted:             deleted,
		LastWriterDeviceID:  writerDeviceID,
		LastWriterTimestamp: writerTimestamp,
	}

	return Resolution{Record: merged, Applied: true, Conflict: conflict}
}

// divergesFromStored reports whether a clock-equal delta actually carries
// content the stored record does not already reflect.
func divergesFromStored(stored *EntityRecord, delta *DeltaChange) bool {
	if delta.Op == OpDelete {
		return !stored.Deleted
	}
	if stored.Deleted {
		return true
	}
	for name, value := range delta.ChangedFields {
		existing, ok := stored.Fields[name]
		if !ok || !reflect.DeepEqual(existing, value) {
			return true
		}
	}
	return false
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
