package syncrelay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetMissing(t *testing.T) {
	s := NewMemStore()

	_, err := s.Get(context.Background(), "task", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	rec := &EntityRecord{
		EntityType:          "task",
		EntityID:            "t1",
		Fields:              map[string]any{"title": "x"},
		VectorClock:         VectorClock{"web": 1},
		LastWriterDeviceID:  "web",
		LastWriterTimestamp: 1000,
	}
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.Get(ctx, "task", "t1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, 1, s.Len())

	// Overwrite replaces the whole record.
	rec.Fields["title"] = "y"
	rec.VectorClock = VectorClock{"web": 2}
	require.NoError(t, s.Upsert(ctx, rec))

	got, err = s.Get(ctx, "task", "t1")
	require.NoError(t, err)
	assert.Equal(t, "y", got.Fields["title"])
	assert.Equal(t, 1, s.Len())
}

func TestMemStore_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	rec := &EntityRecord{
		EntityType:  "task",
		EntityID:    "t1",
		Fields:      map[string]any{"title": "x"},
		VectorClock: VectorClock{"web": 1},
	}
	require.NoError(t, s.Upsert(ctx, rec))

	// Mutating the caller's record after Upsert must not leak in.
	rec.Fields["title"] = "mutated"

	got, err := s.Get(ctx, "task", "t1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Fields["title"])

	// Mutating a returned record must not leak back either.
	got.Fields["title"] = "mutated again"
	got.VectorClock["web"] = 99

	again, err := s.Get(ctx, "task", "t1")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Fields["title"])
	assert.Equal(t, int64(1), again.VectorClock.Get("web"))
}
