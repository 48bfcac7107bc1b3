// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SendFunc delivers a broadcast message to one device. Implementations are
// typically bound to a live socket; the relay treats delivery as
// fire-and-forget and applies its own per-send timeout through ctx.
type SendFunc func(ctx context.Context, msg *BroadcastMessage) error

// Device is a registered (userID, deviceID) pair with its outbound send
// capability. Devices are not persisted; a device re-registers after
// reconnecting.
type Device struct {
	UserID       string
	DeviceID     string
	send         SendFunc
	registeredAt time.Time
}

// Send delivers a message to the device through its registered capability.
func (d *Device) Send(ctx context.Context, msg *BroadcastMessage) error {
	return d.send(ctx, msg)
}

// DeviceRegistry tracks the connected devices of every user. It is read on
// every broadcast and mutated on register/unregister, so reads take a shared
// lock. Per-user device lists preserve insertion order for deterministic
// fan-out in tests.
type DeviceRegistry struct {
	mu     sync.RWMutex
	users  map[string][]*Device
	logger *slog.Logger
}

// NewDeviceRegistry creates an empty registry.
func NewDeviceRegistry(logger *slog.Logger) *DeviceRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceRegistry{
		users:  make(map[string][]*Device),
		logger: logger,
	}
}

// Register adds a device, or replaces the send capability of an
// already-registered (userID, deviceID). Re-registration is how a device
// reconnects with a new socket, so duplicates are not an error and the
// device keeps its position in the fan-out order.
//
// A Device is immutable once published: re-registration installs a fresh
// *Device in the slice rather than mutating the shared one, so broadcasts
// already in flight keep sending through the capability they snapshotted.
func (r *DeviceRegistry) Register(userID, deviceID string, send SendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replacement := &Device{
		UserID:       userID,
		DeviceID:     deviceID,
		send:         send,
		registeredAt: time.Now(),
	}

	devices := r.users[userID]
	for i, d := range devices {
		if d.DeviceID == deviceID {
			devices[i] = replacement
			r.logger.Debug("Device re-registered", "user_id", userID, "device_id", deviceID)
			return
		}
	}

	r.users[userID] = append(devices, replacement)
	r.logger.Debug("Device registered", "user_id", userID, "device_id", deviceID)
}

// Unregister removes a device. Removing an absent device is a no-op;
// double-unregister must be safe because disconnect paths can race.
func (r *DeviceRegistry) Unregister(userID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := r.users[userID]
	for i, d := range devices {
		if d.DeviceID == deviceID {
			r.users[userID] = append(devices[:i], devices[i+1:]...)
			if len(r.users[userID]) == 0 {
				delete(r.users, userID)
			}
			r.logger.Debug("Device unregistered", "user_id", userID, "device_id", deviceID)
			return
		}
	}
}

// DevicesFor returns the user's registered devices in insertion order,
// excluding the device named by excluding (the originating sender; pass ""
// to exclude none). The returned slice is a snapshot safe to iterate without
// holding the registry lock.
func (r *DeviceRegistry) DevicesFor(userID, excluding string) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := r.users[userID]
	out := make([]*Device, 0, len(devices))
	for _, d := range devices {
		if excluding != "" && d.DeviceID == excluding {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Counts returns the number of distinct users with at least one registered
// device and the total registered device count.
func (r *DeviceRegistry) Counts() (users, devices int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, list := range r.users {
		devices += len(list)
	}
	return len(r.users), devices
}
