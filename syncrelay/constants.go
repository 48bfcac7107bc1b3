// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

// Operation constants for delta operations
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Conflict resolution strategy identifiers
const (
	StrategyLWW = "LWW"
)

// Invalid reason constants used in validation errors
const (
	ReasonMissingEntityType = "missing_entity_type"
	ReasonMissingEntityID   = "missing_entity_id"
	ReasonUnknownOperation  = "unknown_operation"
	ReasonEmptyChangeSet    = "empty_change_set"
	ReasonBadDelta          = "bad_delta"
)
