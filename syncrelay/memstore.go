// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"sync"
)

// MemStore is an in-memory EntityStore for tests and single-process
// deployments. Records are copied on the way in and out so callers can never
// alias the stored maps.
type MemStore struct {
	mu sync.RWMutex
	m  map[string]*EntityRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]*EntityRecord)}
}

func memKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// Get implements EntityStore.
func (s *MemStore) Get(_ context.Context, entityType, entityID string) (*EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.m[memKey(entityType, entityID)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// Upsert implements EntityStore.
func (s *MemStore) Upsert(_ context.Context, rec *EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[memKey(rec.EntityType, rec.EntityID)] = copyRecord(rec)
	return nil
}

// Len reports the number of stored records, for tests.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func copyRecord(rec *EntityRecord) *EntityRecord {
	out := *rec
	out.Fields = copyFields(rec.Fields)
	out.VectorClock = rec.VectorClock.Copy()
	return &out
}
