// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.etcd.io/bbolt"
)

var bucketEntities = []byte("entities")

// BoltStore is an embedded single-file EntityStore for serverless and
// desktop deployments where Postgres is not available. Records are JSON
// encoded under a per-entity key.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// NewBoltStore opens (or creates) the database file at dbPath.
func NewBoltStore(dbPath string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntities); err != nil {
			return fmt.Errorf("failed to create entities bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, logger: logger}, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boltKey(entityType, entityID string) []byte {
	return []byte(entityType + "/" + entityID)
}

// Get implements EntityStore.
func (s *BoltStore) Get(_ context.Context, entityType, entityID string) (*EntityRecord, error) {
	var rec *EntityRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketEntities).Get(boltKey(entityType, entityID))
		if raw == nil {
			return ErrNotFound
		}
		rec = &EntityRecord{}
		if err := json.Unmarshal(raw, rec); err != nil {
			return fmt.Errorf("decode entity %s/%s: %w", entityType, entityID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if rec.VectorClock == nil {
		rec.VectorClock = VectorClock{}
	}
	return rec, nil
}

// Upsert implements EntityStore.
func (s *BoltStore) Upsert(_ context.Context, rec *EntityRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode entity %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketEntities).Put(boltKey(rec.EntityType, rec.EntityID), raw); err != nil {
			return fmt.Errorf("store entity %s/%s: %w", rec.EntityType, rec.EntityID, err)
		}
		return nil
	})
}
