// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"sync"
	"time"
)

// StatsCollector aggregates relay-level counters. Conflicts are retained in
// a bounded recent window so ActiveConflicts reflects current system health
// instead of growing without bound over the process lifetime.
type StatsCollector struct {
	mu          sync.Mutex
	window      time.Duration
	capacity    int
	conflictAts []time.Time
	totalDeltas int64
	now         func() time.Time
}

// NewStatsCollector creates a collector with the given conflict window and
// retention cap. Zero values select the defaults (5 minutes, 1024 records).
func NewStatsCollector(window time.Duration, capacity int) *StatsCollector {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &StatsCollector{
		window:   window,
		capacity: capacity,
		now:      time.Now,
	}
}

// RecordDelta counts one processed delta.
func (c *StatsCollector) RecordDelta() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDeltas++
}

// RecordConflict adds a resolved conflict to the recent window.
func (c *StatsCollector) RecordConflict(rec *ConflictRecord) {
	at := rec.ResolvedAt
	if at.IsZero() {
		at = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.conflictAts = append(c.conflictAts, at)
	c.pruneLocked()
}

// ActiveConflicts returns the number of conflicts within the recent window.
func (c *StatsCollector) ActiveConflicts() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	return len(c.conflictAts)
}

// TotalDeltas returns the number of deltas processed so far.
func (c *StatsCollector) TotalDeltas() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalDeltas
}

// pruneLocked drops entries older than the window and trims to capacity.
// Entries are appended in near-monotonic order, so dropping from the front
// is sufficient.
func (c *StatsCollector) pruneLocked() {
	cutoff := c.now().Add(-c.window)
	i := 0
	for i < len(c.conflictAts) && c.conflictAts[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.conflictAts = append(c.conflictAts[:0], c.conflictAts[i:]...)
	}
	if over := len(c.conflictAts) - c.capacity; over > 0 {
		c.conflictAts = append(c.conflictAts[:0], c.conflictAts[over:]...)
	}
}
