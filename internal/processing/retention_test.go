package processing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/arcwatch/internal/models"
)

func TestEnforceTopK(t *testing.T) {
	store := newMemStore()
	for i, c := range []float64{0.1, 0.9, 0.5, 0.7, 0.3, 0.8, 0.6} {
		store.addSnapshot("f1", i+1, c)
	}
	store.addSnapshot("f2", 1, 0.05)

	removed, err := EnforceTopK(context.Background(), memSnapshots{store}, store, "f1", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	snaps, _ := memSnapshots{store}.ListByConfidence(context.Background(), "f1")
	var got []float64
	for _, s := range snaps {
		got = append(got, s.Confidence)
	}
	assert.Equal(t, []float64{0.9, 0.8, 0.7, 0.6, 0.5}, got)
	assert.Len(t, store.images, 6)

	removed, err = EnforceTopK(context.Background(), memSnapshots{store}, store, "f1", 5)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestEnforceTopK_ReportsDeleteFailures(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 7; i++ {
		store.addSnapshot("f1", i+1, float64(i)/10)
	}
	store.failSnapDelete = true

	removed, err := EnforceTopK(context.Background(), memSnapshots{store}, store, "f1", 5)
	assert.Error(t, err)
	assert.Zero(t, removed)
}

func TestSnapshotKeeper_SeedsFromStore(t *testing.T) {
	store := newMemStore()
	confs := []float64{0.9, 0.8, 0.7, 0.6, 0.5}
	var weakest *models.Snapshot
	for i, c := range confs {
		s := store.addSnapshot("f1", i+1, c)
		if c == 0.5 {
			weakest = s
		}
	}

	ctx := context.Background()
	k := newSnapshotKeeper(ctx, "f1", 5, memSnapshots{store}, store)

	low := models.NewSnapshot("f1", "ev")
	low.Confidence = 0.4
	assert.False(t, k.keep(ctx, low, []byte("x")))
	assert.Len(t, store.snapshots, 5)

	high := models.NewSnapshot("f1", "ev")
	high.Confidence = 0.95
	require.True(t, k.keep(ctx, high, []byte("jpeg")))

	assert.Equal(t, 6, high.Sequence)
	assert.Contains(t, store.snapshots, high.ID)
	assert.NotContains(t, store.snapshots, weakest.ID)
	assert.NotContains(t, store.images, weakest.ImagePath)
	assert.Equal(t, []byte("jpeg"), store.images[high.ImagePath])
	assert.Equal(t, 5, k.topk.Len())
}
