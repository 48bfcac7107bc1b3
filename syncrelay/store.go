// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import "context"

// EntityStore is the boundary with the durable record store. The relay
// awaits completion of every call before broadcasting, regardless of whether
// the store is local or remote.
//
// Get returns ErrNotFound when no record exists for the pair; any other
// error is a storage failure. Upsert must write the whole record atomically
// for its (entityType, entityID); the relay already serializes writers per
// entity, so implementations do not need their own per-entity ordering.
type EntityStore interface {
	Get(ctx context.Context, entityType, entityID string) (*EntityRecord, error)
	Upsert(ctx context.Context, rec *EntityRecord) error
}
