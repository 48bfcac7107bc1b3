// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved field names that may never appear in changed_fields. They collide
// with relay-owned record metadata.
var reservedFieldNames = map[string]bool{
	"vector_clock": true,
	"deleted":      true,
}

// validateDelta normalizes and validates an inbound delta at the relay
// boundary. Loosely-typed wire payloads are checked into the fixed
// INSERT/UPDATE/DELETE shape here; nothing deeper in the pipeline inspects
// raw wire fields again. The delta is mutated in place (trimmed identifiers,
// upper-cased operation).
func (r *Relay) validateDelta(delta *DeltaChange) error {
	if delta == nil {
		return fmt.Errorf("%w: %s: nil delta", ErrValidation, ReasonBadDelta)
	}

	delta.EntityType = strings.TrimSpace(delta.EntityType)
	delta.EntityID = strings.TrimSpace(delta.EntityID)
	delta.Op = strings.ToUpper(strings.TrimSpace(delta.Op))

	if delta.EntityType == "" {
		return fmt.Errorf("%w: %s", ErrValidation, ReasonMissingEntityType)
	}
	if delta.EntityID == "" {
		return fmt.Errorf("%w: %s", ErrValidation, ReasonMissingEntityID)
	}

	switch delta.Op {
	case OpInsert, OpUpdate, OpDelete:
		// Valid operations
	default:
		return fmt.Errorf("%w: %s: %q", ErrValidation, ReasonUnknownOperation, delta.Op)
	}

	if delta.Timestamp < 0 {
		return fmt.Errorf("%w: %s: negative timestamp %d", ErrValidation, ReasonBadDelta, delta.Timestamp)
	}
	for deviceID, counter := range delta.VectorClock {
		if counter < 0 {
			return fmt.Errorf("%w: %s: negative clock counter %s=%d",
				ErrValidation, ReasonBadDelta, deviceID, counter)
		}
	}

	// Change-set rules per operation
	switch delta.Op {
	case OpUpdate:
		if len(delta.ChangedFields) == 0 {
			return fmt.Errorf("%w: %s: UPDATE requires changed_fields", ErrValidation, ReasonEmptyChangeSet)
		}
	case OpDelete:
		// changed_fields is ignored for DELETE; drop it so nothing downstream
		// can accidentally merge it.
		delta.ChangedFields = nil
	}

	for name := range delta.ChangedFields {
		if reservedFieldNames[name] {
			return fmt.Errorf("%w: %s: changed_fields may not contain %q", ErrValidation, ReasonBadDelta, name)
		}
	}

	if max := r.config.MaxFieldBytes; max > 0 && len(delta.ChangedFields) > 0 {
		raw, err := json.Marshal(delta.ChangedFields)
		if err != nil {
			return fmt.Errorf("%w: %s: unencodable changed_fields: %v", ErrValidation, ReasonBadDelta, err)
		}
		if len(raw) > max {
			return fmt.Errorf("%w: %s: changed_fields too large: %d > %d",
				ErrValidation, ReasonBadDelta, len(raw), max)
		}
	}

	return nil
}
