// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import (
	"fmt"
	"sort"
	"strings"
)

// VectorClock maps a device ID to a monotonically increasing counter.
// The zero value (nil) behaves as the all-zero clock; missing keys read as 0.
// Thread-safety is the caller's concern.
type VectorClock map[string]int64

// NewVectorClock creates a new empty vector clock.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Get returns the counter for the given device ID, or 0 if not present.
func (vc VectorClock) Get(deviceID string) int64 {
	return vc[deviceID]
}

// Copy creates a deep copy of the vector clock.
func (vc VectorClock) Copy() VectorClock {
	out := make(VectorClock, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// Increment returns a copy of the clock with the counter for deviceID
// advanced by one. The receiver is not modified; devices call this when
// originating a local edit, the relay never ticks clocks itself.
func (vc VectorClock) Increment(deviceID string) VectorClock {
	out := vc.Copy()
	out[deviceID]++
	return out
}

// Merge returns the component-wise maximum over the union of keys of both
// clocks. Total function, commutative and idempotent.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Copy()
	for deviceID, counter := range other {
		if out[deviceID] < counter {
			out[deviceID] = counter
		}
	}
	return out
}

// Ordering is the result of comparing two vector clocks.
type Ordering int

const (
	// OrderEqual indicates both clocks carry identical counters.
	OrderEqual Ordering = iota
	// OrderDominates indicates the receiver reflects everything the other
	// clock reflects, plus more (the receiver happened after).
	OrderDominates
	// OrderDominated indicates the other clock dominates the receiver.
	OrderDominated
	// OrderConcurrent indicates neither clock dominates the other.
	OrderConcurrent
)

func (o Ordering) String() string {
	switch o {
	case OrderEqual:
		return "EQUAL"
	case OrderDominates:
		return "DOMINATES"
	case OrderDominated:
		return "DOMINATED"
	case OrderConcurrent:
		return "CONCURRENT"
	default:
		return fmt.Sprintf("Ordering(%d)", int(o))
	}
}

// Compare compares the receiver with another clock. Zero-valued entries are
// indistinguishable from absent ones, so {A:1,B:0} equals {A:1}.
func (vc VectorClock) Compare(other VectorClock) Ordering {
	union := make(map[string]struct{}, len(vc)+len(other))
	for deviceID := range vc {
		union[deviceID] = struct{}{}
	}
	for deviceID := range other {
		union[deviceID] = struct{}{}
	}

	var less, greater bool
	for deviceID := range union {
		a, b := vc[deviceID], other[deviceID]
		if a < b {
			less = true
		} else if a > b {
			greater = true
		}
	}

	switch {
	case greater && !less:
		return OrderDominates
	case less && !greater:
		return OrderDominated
	case less && greater:
		return OrderConcurrent
	default:
		return OrderEqual
	}
}

// Dominates reports whether the receiver dominates the other clock.
func (vc VectorClock) Dominates(other VectorClock) bool {
	return vc.Compare(other) == OrderDominates
}

// Concurrent reports whether neither clock dominates the other.
func (vc VectorClock) Concurrent(other VectorClock) bool {
	return vc.Compare(other) == OrderConcurrent
}

// Equal reports whether both clocks carry identical effective counters.
func (vc VectorClock) Equal(other VectorClock) bool {
	return vc.Compare(other) == OrderEqual
}

// String renders the clock in a deterministic form for logs and tests.
func (vc VectorClock) String() string {
	if len(vc) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(vc))
	for k := range vc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, vc[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
