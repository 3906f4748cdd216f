package consumerrt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUWindow_DedupesRepeatedKey(t *testing.T) {
	w := newLRUWindow(10)
	ctx := context.Background()

	seen, err := w.SeenOrMark(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = w.SeenOrMark(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, seen, "second delivery of the same key must be recognized as seen")
}

func TestLRUWindow_EvictsOldestBeyondCapacity(t *testing.T) {
	w := newLRUWindow(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seen, err := w.SeenOrMark(ctx, fmt.Sprintf("evt-%d", i), time.Minute)
		require.NoError(t, err)
		assert.False(t, seen)
	}

	seen, err := w.SeenOrMark(ctx, "evt-3", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = w.SeenOrMark(ctx, "evt-0", time.Minute)
	require.NoError(t, err)
	assert.False(t, seen, "evt-0 should have been evicted once capacity was exceeded")
}

func TestLRUWindow_DefaultsCapacityTo10000(t *testing.T) {
	w := newLRUWindow(0)
	assert.Equal(t, 10000, w.capacity)
}
