// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"time"
)

// Wire and storage models for the synchronization relay.
// Inbound deltas and outbound broadcasts use snake_case JSON so that device
// clients on any platform can produce and consume them directly.

// DeltaChange is the unit of synchronized work: a single-entity edit
// produced by one device. A delta is consumed exactly once by the relay and
// never mutated afterward; subsequent edits create new deltas.
type DeltaChange struct {
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Op            string         `json:"operation"`                // INSERT, UPDATE, DELETE
	ChangedFields map[string]any `json:"changed_fields,omitempty"` // ignored for DELETE
	VectorClock   VectorClock    `json:"vector_clock"`
	Timestamp     int64          `json:"timestamp"` // wall clock, epoch milliseconds
}

// EntityRecord is the relay's view of a durably stored entity. The record is
// read, merged with an incoming delta and written back atomically per entity.
// DELETE is modeled as the Deleted tombstone flag rather than a physical
// removal so that late-arriving concurrent updates can still be causally
// compared against it.
type EntityRecord struct {
	EntityType          string         `json:"entity_type"`
	EntityID            string         `json:"entity_id"`
	Fields              map[string]any `json:"fields"`
	VectorClock         VectorClock    `json:"vector_clock"`
	Deleted             bool           `json:"deleted,omitempty"`
	LastWriterDeviceID  string         `json:"last_writer_device_id"`
	LastWriterTimestamp int64          `json:"last_writer_ts"`
}

// ConflictRecord captures a detected concurrent edit. One is emitted whenever
// two clocks are concurrent, regardless of which side wins: concurrency, not
// outcome, is what gets tracked and reported.
type ConflictRecord struct {
	ID                string      `json:"id"`
	EntityType        string      `json:"entity_type"`
	EntityID          string      `json:"entity_id"`
	IncomingDeviceID  string      `json:"incoming_device_id"`
	IncomingTimestamp int64       `json:"incoming_ts"`
	IncomingClock     VectorClock `json:"incoming_clock"`
	StoredDeviceID    string      `json:"stored_device_id"`
	StoredTimestamp   int64       `json:"stored_ts"`
	StoredClock       VectorClock `json:"stored_clock"`
	Strategy          string      `json:"strategy"` // always StrategyLWW
	WinningDeviceID   string      `json:"winning_device_id"`
	ResolvedAt        time.Time   `json:"resolved_at"`
}

// BroadcastMessage is the payload pushed to every other connected device of
// the same user after a delta has been durably persisted.
type BroadcastMessage struct {
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Fields      map[string]any `json:"fields"`
	VectorClock VectorClock    `json:"vector_clock"`
	Deleted     bool           `json:"deleted,omitempty"`
}

// StatsSnapshot is the observability surface polled by monitoring.
type StatsSnapshot struct {
	TotalUsers      int   `json:"total_users"`      // distinct users with >=1 registered device
	TotalDevices    int   `json:"total_devices"`    // total registered device count
	ActiveConflicts int   `json:"active_conflicts"` // conflicts within the recent window
	TotalDeltas     int64 `json:"total_deltas"`     // deltas processed over the relay lifetime
}

// DeltaResponse is the HTTP response for a processed delta.
type DeltaResponse struct {
	Applied  bool   `json:"applied"`
	EntityID string `json:"entity_id,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
