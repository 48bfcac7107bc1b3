package syncrelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRecord(fields map[string]any, clock VectorClock, writer string, ts int64) *EntityRecord {
	return &EntityRecord{
		EntityType:          "task",
		EntityID:            "t1",
		Fields:              fields,
		VectorClock:         clock,
		LastWriterDeviceID:  writer,
		LastWriterTimestamp: ts,
	}
}

func TestResolve_FirstDeltaForUnknownEntity(t *testing.T) {
	delta := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpInsert,
		ChangedFields: map[string]any{"is_read": true},
		VectorClock:   VectorClock{"web": 1},
		Timestamp:     1000,
	}

	res := Resolve(nil, delta, "web")

	require.True(t, res.Applied)
	require.Nil(t, res.Conflict, "no conflict possible against the empty baseline")
	assert.Equal(t, map[string]any{"is_read": true}, res.Record.Fields)
	assert.Equal(t, VectorClock{"web": 1}, res.Record.VectorClock)
	assert.Equal(t, "web", res.Record.LastWriterDeviceID)
	assert.Equal(t, int64(1000), res.Record.LastWriterTimestamp)
}

func TestResolve_FirstDeltaWithEmptyClock(t *testing.T) {
	// A client that never ticked its clock still gets a clean first write;
	// an empty clock compares EQUAL to the all-zero baseline and must not be
	// misread as a concurrent edit against a record that never existed.
	delta := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpInsert,
		ChangedFields: map[string]any{"is_read": true},
		VectorClock:   VectorClock{},
		Timestamp:     1000,
	}

	res := Resolve(nil, delta, "web")

	require.True(t, res.Applied)
	require.Nil(t, res.Conflict)
	assert.Equal(t, map[string]any{"is_read": true}, res.Record.Fields)
}

func TestResolve_DominatingDeltaAppliesCleanly(t *testing.T) {
	stored := storedRecord(map[string]any{"title": "buy milk"}, VectorClock{"A": 1}, "A", 1000)

	// B observed A's change first, then edited: causally downstream.
	delta := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpUpdate,
		ChangedFields: map[string]any{"is_done": true},
		VectorClock:   VectorClock{"A": 1, "B": 1},
		Timestamp:     2000,
	}

	res := Resolve(stored, delta, "B")

	require.True(t, res.Applied)
	require.Nil(t, res.Conflict)
	assert.Equal(t, map[string]any{"title": "buy milk", "is_done": true}, res.Record.Fields)
	assert.Equal(t, VectorClock{"A": 1, "B": 1}, res.Record.VectorClock)
	assert.Equal(t, "B", res.Record.LastWriterDeviceID)
}

func TestResolve_DominatedDeltaIsDiscarded(t *testing.T) {
	stored := storedRecord(map[string]any{"is_read": true}, VectorClock{"web": 2}, "web", 2000)

	stale := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpUpdate,
		ChangedFields: map[string]any{"is_read": false},
		VectorClock:   VectorClock{"web": 1},
		Timestamp:     9999, // a late wall clock does not resurrect a superseded edit
	}

	res := Resolve(stored, stale, "web")

	require.False(t, res.Applied)
	require.Nil(t, res.Conflict)
	assert.Equal(t, map[string]any{"is_read": true}, res.Record.Fields)
	assert.Equal(t, VectorClock{"web": 2}, res.Record.VectorClock)
}

func TestResolve_IdempotentRedelivery(t *testing.T) {
	stored := storedRecord(map[string]any{"is_read": true}, VectorClock{"web": 1}, "web", 1000)

	duplicate := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpUpdate,
		ChangedFields: map[string]any{"is_read": true},
		VectorClock:   VectorClock{"web": 1},
		Timestamp:     1000,
	}

	res := Resolve(stored, duplicate, "web")

	require.False(t, res.Applied)
	require.Nil(t, res.Conflict)
}

func TestResolve_ConcurrentLWW(t *testing.T) {
	t.Run("later timestamp wins overlapping field", func(t *testing.T) {
		stored := storedRecord(map[string]any{"is_starred": true}, VectorClock{"A": 1}, "A", 1000)

		delta := &DeltaChange{
			EntityType:    "task",
			EntityID:      "t1",
			Op:            OpUpdate,
			ChangedFields: map[string]any{"is_starred": false},
			VectorClock:   VectorClock{"B": 1},
			Timestamp:     3000,
		}

		res := Resolve(stored, delta, "B")

		require.True(t, res.Applied)
		require.NotNil(t, res.Conflict)
		assert.Equal(t, false, res.Record.Fields["is_starred"])
		assert.Equal(t, VectorClock{"A": 1, "B": 1}, res.Record.VectorClock)
		assert.Equal(t, "B", res.Conflict.WinningDeviceID)
		assert.Equal(t, StrategyLWW, res.Conflict.Strategy)
		assert.Equal(t, "B", res.Record.LastWriterDeviceID)
		assert.Equal(t, int64(3000), res.Record.LastWriterTimestamp)
	})

	t.Run("earlier timestamp loses but still conflicts", func(t *testing.T) {
		stored := storedRecord(map[string]any{"is_starred": false}, VectorClock{"A": 1}, "A", 3000)

		delta := &DeltaChange{
			EntityType:    "task",
			EntityID:      "t1",
			Op:            OpUpdate,
			ChangedFields: map[string]any{"is_starred": true},
			VectorClock:   VectorClock{"B": 1},
			Timestamp:     1000,
		}

		res := Resolve(stored, delta, "B")

		require.True(t, res.Applied, "clock merge must still be persisted")
		require.NotNil(t, res.Conflict, "concurrency is tracked even when the loser contributes nothing")
		assert.Equal(t, false, res.Record.Fields["is_starred"])
		assert.Equal(t, "A", res.Conflict.WinningDeviceID)
		assert.Equal(t, "A", res.Record.LastWriterDeviceID)
		assert.Equal(t, VectorClock{"A": 1, "B": 1}, res.Record.VectorClock)
	})

	t.Run("non-overlapping fields kept from both sides", func(t *testing.T) {
		stored := storedRecord(map[string]any{"title": "draft", "owner": "pat"}, VectorClock{"A": 1}, "A", 2000)

		delta := &DeltaChange{
			EntityType:    "task",
			EntityID:      "t1",
			Op:            OpUpdate,
			ChangedFields: map[string]any{"due": "friday"},
			VectorClock:   VectorClock{"B": 1},
			Timestamp:     1000, // loses LWW, but touches no overlapping field
		}

		res := Resolve(stored, delta, "B")

		require.True(t, res.Applied)
		require.NotNil(t, res.Conflict)
		assert.Equal(t, map[string]any{"title": "draft", "owner": "pat", "due": "friday"}, res.Record.Fields)
	})

	t.Run("equal timestamps break ties on device id", func(t *testing.T) {
		stored := storedRecord(map[string]any{"v": "from-android"}, VectorClock{"android": 1}, "android", 1000)

		delta := &DeltaChange{
			EntityType:    "task",
			EntityID:      "t1",
			Op:            OpUpdate,
			ChangedFields: map[string]any{"v": "from-web"},
			VectorClock:   VectorClock{"web": 1},
			Timestamp:     1000,
		}

		res := Resolve(stored, delta, "web")

		require.NotNil(t, res.Conflict)
		assert.Equal(t, "web", res.Conflict.WinningDeviceID, "lexicographically greater device id wins")
		assert.Equal(t, "from-web", res.Record.Fields["v"])
	})

	t.Run("deterministic across reruns", func(t *testing.T) {
		mkStored := func() *EntityRecord {
			return storedRecord(map[string]any{"v": 1}, VectorClock{"A": 1}, "A", 1500)
		}
		delta := &DeltaChange{
			EntityType:    "task",
			EntityID:      "t1",
			Op:            OpUpdate,
			ChangedFields: map[string]any{"v": 2},
			VectorClock:   VectorClock{"B": 1},
			Timestamp:     1500,
		}

		first := Resolve(mkStored(), delta, "B")
		for i := 0; i < 10; i++ {
			again := Resolve(mkStored(), delta, "B")
			assert.Equal(t, first.Conflict.WinningDeviceID, again.Conflict.WinningDeviceID)
			assert.Equal(t, first.Record.Fields, again.Record.Fields)
			assert.Equal(t, first.Record.VectorClock, again.Record.VectorClock)
		}
	})
}

func TestResolve_EqualClocksDivergentFields(t *testing.T) {
	// A caller error: same clock, different content. Resolved by LWW and
	// flagged as a conflict rather than silently dropped.
	stored := storedRecord(map[string]any{"v": "old"}, VectorClock{"web": 1}, "web", 1000)

	delta := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpUpdate,
		ChangedFields: map[string]any{"v": "new"},
		VectorClock:   VectorClock{"web": 1},
		Timestamp:     2000,
	}

	res := Resolve(stored, delta, "web")

	require.True(t, res.Applied)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "new", res.Record.Fields["v"])
}

func TestResolve_DeleteTombstone(t *testing.T) {
	t.Run("dominating delete tombstones the record", func(t *testing.T) {
		stored := storedRecord(map[string]any{"title": "x"}, VectorClock{"web": 1}, "web", 1000)

		delta := &DeltaChange{
			EntityType:  "task",
			EntityID:    "t1",
			Op:          OpDelete,
			VectorClock: VectorClock{"web": 2},
			Timestamp:   2000,
		}

		res := Resolve(stored, delta, "web")

		require.True(t, res.Applied)
		require.Nil(t, res.Conflict)
		assert.True(t, res.Record.Deleted)
		assert.Equal(t, map[string]any{"title": "x"}, res.Record.Fields, "fields survive for causal comparison")
	})

	t.Run("concurrent later update wins over delete", func(t *testing.T) {
		stored := storedRecord(map[string]any{"title": "x"}, VectorClock{"ios": 1}, "ios", 1000)
		stored.Deleted = true

		delta := &DeltaChange{
			EntityType:    "task",
			EntityID:      "t1",
			Op:            OpUpdate,
			ChangedFields: map[string]any{"title": "y"},
			VectorClock:   VectorClock{"web": 1},
			Timestamp:     2000,
		}

		res := Resolve(stored, delta, "web")

		require.True(t, res.Applied)
		require.NotNil(t, res.Conflict)
		assert.False(t, res.Record.Deleted)
		assert.Equal(t, "y", res.Record.Fields["title"])
	})

	t.Run("concurrent later delete wins over update", func(t *testing.T) {
		stored := storedRecord(map[string]any{"title": "x"}, VectorClock{"web": 1}, "web", 2000)

		delta := &DeltaChange{
			EntityType:  "task",
			EntityID:    "t1",
			Op:          OpDelete,
			VectorClock: VectorClock{"ios": 1},
			Timestamp:   3000,
		}

		res := Resolve(stored, delta, "ios")

		require.True(t, res.Applied)
		require.NotNil(t, res.Conflict)
		assert.True(t, res.Record.Deleted)
	})

	t.Run("duplicate delete with equal clock is a no-op", func(t *testing.T) {
		stored := storedRecord(map[string]any{}, VectorClock{"web": 2}, "web", 2000)
		stored.Deleted = true

		delta := &DeltaChange{
			EntityType:  "task",
			EntityID:    "t1",
			Op:          OpDelete,
			VectorClock: VectorClock{"web": 2},
			Timestamp:   2000,
		}

		res := Resolve(stored, delta, "web")

		require.False(t, res.Applied)
		require.Nil(t, res.Conflict)
	})
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	stored := storedRecord(map[string]any{"a": 1}, VectorClock{"A": 1}, "A", 1000)

	delta := &DeltaChange{
		EntityType:    "task",
		EntityID:      "t1",
		Op:            OpUpdate,
		ChangedFields: map[string]any{"b": 2},
		VectorClock:   VectorClock{"B": 1},
		Timestamp:     2000,
	}

	res := Resolve(stored, delta, "B")
	require.True(t, res.Applied)

	assert.Equal(t, map[string]any{"a": 1}, stored.Fields)
	assert.Equal(t, VectorClock{"A": 1}, stored.VectorClock)
	assert.Equal(t, VectorClock{"B": 1}, delta.VectorClock)
}
