// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds configuration for the sync relay.
type Config struct {
	AppName string // Application name for logs

	BroadcastTimeout time.Duration // Per-device send timeout (default 2s)
	ConflictWindow   time.Duration // Recent-conflict retention window (default 5m)
	ConflictCapacity int           // Max retained conflict records (default 1024)
	MaxFieldBytes    int           // Max encoded changed_fields size per delta (0 = unlimited)

	StageMetrics    StageMetricsRecorder // Optional stage timing sink
	LogStageTimings bool                 // Log stage timings at debug level
}

// Relay accepts incremental change deltas from devices, establishes causal
// ordering with vector clocks, resolves concurrent edits, persists the
// merged state and fans it out to the user's other connected devices.
//
// All state is explicitly constructed here and torn down by Close; the relay
// holds no process-wide singletons.
type Relay struct {
	store    EntityStore
	registry *DeviceRegistry
	stats    *StatsCollector
	locks    *keyLocks
	logger   *slog.Logger
	config   *Config

	mu     sync.RWMutex
	closed bool
}

// NewRelay creates a relay on top of the given store. This is the main entry
// point for SDK users; config and logger may be nil for defaults.
func NewRelay(store EntityStore, config *Config, logger *slog.Logger) (*Relay, error) {
	if store == nil {
		return nil, errors.New("entity store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if config.AppName == "" {
		config.AppName = "syncrelay"
	}
	if config.BroadcastTimeout <= 0 {
		config.BroadcastTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		store:    store,
		registry: NewDeviceRegistry(logger),
		stats:    NewStatsCollector(config.ConflictWindow, config.ConflictCapacity),
		locks:    newKeyLocks(),
		logger:   logger,
		config:   config,
	}, nil
}

// Close shuts the relay down. Safe to call multiple times. The store is NOT
// closed here; the caller owns its lifecycle.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.logger.Debug("Shutting down sync relay", "app", r.config.AppName)
	r.closed = true
	return nil
}

func (r *Relay) checkClosed() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRelayClosed
	}
	return nil
}

// Registry exposes the device registry so transports can attach and detach
// devices as their connections come and go.
func (r *Relay) Registry() *DeviceRegistry {
	return r.registry
}

// RegisterDevice attaches a device's send capability; see DeviceRegistry.Register.
func (r *Relay) RegisterDevice(userID, deviceID string, send SendFunc) {
	r.registry.Register(userID, deviceID, send)
}

// UnregisterDevice detaches a device; see DeviceRegistry.Unregister.
func (r *Relay) UnregisterDevice(userID, deviceID string) {
	r.registry.Unregister(userID, deviceID)
}

// HandleDeltaChange processes one delta submitted by (userID, deviceID).
//
// It serializes processing per (entityType, entityID), reads the stored
// record, resolves causal order and conflicts, persists the merged record
// and only then broadcasts it to the user's other devices. The returned
// entity ID is empty when the delta was stale and discarded.
//
// Validation failures wrap ErrValidation and storage failures wrap
// ErrStorage; both leave the entity unchanged and unbroadcast. Per-device
// broadcast failures are logged and never fail the call.
func (r *Relay) HandleDeltaChange(ctx context.Context, userID, deviceID string, delta *DeltaChange) (string, error) {
	if err := r.checkClosed(); err != nil {
		return "", err
	}

	total := r.stageStart()

	if err := r.validateDelta(delta); err != nil {
		return "", err
	}

	res, err := r.mergeAndPersist(ctx, deviceID, delta)
	if err != nil {
		r.observeStage(ctx, MetricsOpDelta, MetricsStageTotal, total, 1, true)
		return "", err
	}

	if res.Conflict != nil {
		r.stats.RecordConflict(res.Conflict)
		r.logger.Warn("Concurrent edit resolved",
			"entity_type", delta.EntityType,
			"entity_id", delta.EntityID,
			"strategy", res.Conflict.Strategy,
			"winner", res.Conflict.WinningDeviceID,
			"incoming_device", res.Conflict.IncomingDeviceID,
			"stored_device", res.Conflict.StoredDeviceID,
		)
	}
	r.stats.RecordDelta()

	if !res.Applied {
		r.logger.Debug("Stale delta discarded",
			"entity_type", delta.EntityType,
			"entity_id", delta.EntityID,
			"device_id", deviceID,
		)
		r.observeStage(ctx, MetricsOpDelta, MetricsStageTotal, total, 1, false)
		return "", nil
	}

	r.broadcast(ctx, userID, deviceID, res.Record)

	r.observeStage(ctx, MetricsOpDelta, MetricsStageTotal, total, 1, false)
	return delta.EntityID, nil
}

// mergeAndPersist holds the per-entity lock across the read-merge-write so
// two concurrent deltas for the same entity can never both observe the same
// stale stored clock (the lost-update race). The lock is released before
// broadcasting; fan-out needs no exclusivity.
func (r *Relay) mergeAndPersist(ctx context.Context, deviceID string, delta *DeltaChange) (Resolution, error) {
	unlock := r.locks.Lock(delta.EntityType + "/" + delta.EntityID)
	defer unlock()

	read := r.stageStart()
	stored, err := r.store.Get(ctx, delta.EntityType, delta.EntityID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.observeStage(ctx, MetricsOpDelta, MetricsStageRead, read, 1, true)
		return Resolution{}, fmt.Errorf("%w: read %s/%s: %w",
			ErrStorage, delta.EntityType, delta.EntityID, err)
	}
	r.observeStage(ctx, MetricsOpDelta, MetricsStageRead, read, 1, false)

	resolve := r.stageStart()
	res := Resolve(stored, delta, deviceID)
	r.observeStage(ctx, MetricsOpDelta, MetricsStageResolve, resolve, 1, false)

	if !res.Applied {
		return res, nil
	}

	persist := r.stageStart()
	if err := r.store.Upsert(ctx, res.Record); err != nil {
		r.observeStage(ctx, MetricsOpDelta, MetricsStagePersist, persist, 1, true)
		return Resolution{}, fmt.Errorf("%w: write %s/%s: %w",
			ErrStorage, delta.EntityType, delta.EntityID, err)
	}
	r.observeStage(ctx, MetricsOpDelta, MetricsStagePersist, persist, 1, false)

	return res, nil
}

// broadcast pushes the merged record to every other device of the user.
// Sends run concurrently with a per-device timeout so one unresponsive
// device cannot stall delivery to the rest. A failed send is logged and the
// device stays registered: pruning on a single failure would race with a
// concurrent reconnect, so cleanup only happens via explicit Unregister.
func (r *Relay) broadcast(ctx context.Context, userID, sourceDeviceID string, rec *EntityRecord) {
	devices := r.registry.DevicesFor(userID, sourceDeviceID)
	if len(devices) == 0 {
		return
	}

	msg := &BroadcastMessage{
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		Fields:      copyFields(rec.Fields),
		VectorClock: rec.VectorClock.Copy(),
		Deleted:     rec.Deleted,
	}

	start := r.stageStart()

	// The merged record is already durable; a caller hanging up must not
	// cancel delivery to the user's other devices.
	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(base, r.config.BroadcastTimeout)
			defer cancel()

			if err := d.Send(sendCtx, msg); err != nil {
				r.logger.Warn("Broadcast send failed",
					"error", fmt.Errorf("%w: %w", ErrBroadcast, err),
					"user_id", userID,
					"device_id", d.DeviceID,
					"entity_type", rec.EntityType,
					"entity_id", rec.EntityID,
				)
			}
		}(d)
	}
	wg.Wait()

	r.observeStage(ctx, MetricsOpDelta, MetricsStageBroadcast, start, len(devices), false)
}

// Stats returns the current observability snapshot.
func (r *Relay) Stats() StatsSnapshot {
	users, devices := r.registry.Counts()
	return StatsSnapshot{
		TotalUsers:      users,
		TotalDevices:    devices,
		ActiveConflicts: r.stats.ActiveConflicts(),
		TotalDeltas:     r.stats.TotalDeltas(),
	}
}
