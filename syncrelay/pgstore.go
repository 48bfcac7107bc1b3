// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a Postgres-backed EntityStore. Records live in a dedicated
// sync schema; fields and vector clocks are stored as jsonb.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgStore creates the store and initializes its schema. The pool is owned
// by the caller.
func NewPgStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PgStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &PgStore{pool: pool, logger: logger}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return s.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize entity store schema: %w", err)
	}
	logger.Debug("Entity store schema initialized")

	return s, nil
}

// initializeSchemaInTx creates the required tables within an existing transaction.
func (s *PgStore) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated sync schema
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS sync`,

		// Current merged state per entity: field values, causal clock,
		// tombstone flag and last-writer metadata for LWW resolution.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync.entity_record (
			entity_type           TEXT        NOT NULL,
			entity_id             TEXT        NOT NULL,
			fields                JSONB       NOT NULL DEFAULT '{}'::jsonb,
			vector_clock          JSONB       NOT NULL DEFAULT '{}'::jsonb,
			deleted               BOOLEAN     NOT NULL DEFAULT FALSE,
			last_writer_device_id TEXT        NOT NULL DEFAULT '',
			last_writer_ts        BIGINT      NOT NULL DEFAULT 0,
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (entity_type, entity_id)
		)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	return nil
}

// Get implements EntityStore.
func (s *PgStore) Get(ctx context.Context, entityType, entityID string) (*EntityRecord, error) {
	var (
		fieldsRaw []byte
		clockRaw  []byte
		rec       = EntityRecord{EntityType: entityType, EntityID: entityID}
	)

	err := s.pool.QueryRow(ctx, `
		SELECT fields, vector_clock, deleted, last_writer_device_id, last_writer_ts
		FROM sync.entity_record
		WHERE entity_type = @entity_type AND entity_id = @entity_id`,
		pgx.NamedArgs{
			"entity_type": entityType,
			"entity_id":   entityID,
		},
	).Scan(&fieldsRaw, &clockRaw, &rec.Deleted, &rec.LastWriterDeviceID, &rec.LastWriterTimestamp)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch entity %s/%s: %w", entityType, entityID, err)
	}

	if err := json.Unmarshal(fieldsRaw, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields for %s/%s: %w", entityType, entityID, err)
	}
	if err := json.Unmarshal(clockRaw, &rec.VectorClock); err != nil {
		return nil, fmt.Errorf("decode vector clock for %s/%s: %w", entityType, entityID, err)
	}

	return &rec, nil
}

// Upsert implements EntityStore. Retryable transaction errors (serialization
// failures, deadlocks, lock timeouts) are retried a few times with a short
// backoff before surfacing to the relay.
func (s *PgStore) Upsert(ctx context.Context, rec *EntityRecord) error {
	fieldsRaw, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}
	clockRaw, err := json.Marshal(rec.VectorClock)
	if err != nil {
		return fmt.Errorf("encode vector clock for %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}

	const maxAttempts = 3
	for attempt := 1; ; attempt++ {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO sync.entity_record
				(entity_type, entity_id, fields, vector_clock, deleted, last_writer_device_id, last_writer_ts, updated_at)
			VALUES
				(@entity_type, @entity_id, @fields, @vector_clock, @deleted, @last_writer_device_id, @last_writer_ts, now())
			ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				fields                = EXCLUDED.fields,
				vector_clock          = EXCLUDED.vector_clock,
				deleted               = EXCLUDED.deleted,
				last_writer_device_id = EXCLUDED.last_writer_device_id,
				last_writer_ts        = EXCLUDED.last_writer_ts,
				updated_at            = now()`,
			pgx.NamedArgs{
				"entity_type":           rec.EntityType,
				"entity_id":             rec.EntityID,
				"fields":                fieldsRaw,
				"vector_clock":          clockRaw,
				"deleted":               rec.Deleted,
				"last_writer_device_id": rec.LastWriterDeviceID,
				"last_writer_ts":        rec.LastWriterTimestamp,
			},
		)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !isRetryablePGError(err) {
			return fmt.Errorf("upsert entity %s/%s: %w", rec.EntityType, rec.EntityID, err)
		}

		s.logger.Debug("Retrying entity upsert",
			"entity_type", rec.EntityType,
			"entity_id", rec.EntityID,
			"attempt", attempt,
			"error", err,
		)
		if err := sleepWithContext(ctx, time.Duration(attempt)*25*time.Millisecond); err != nil {
			return fmt.Errorf("upsert entity %s/%s: %w", rec.EntityType, rec.EntityID, err)
		}
	}
}

func isRetryablePGError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available (incl. lock_timeout)
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
