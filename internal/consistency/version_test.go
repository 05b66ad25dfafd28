package consistency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"detective_game/internal/kv"
	"detective_game/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionTracker_IncrementAndSync(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	a := NewVersionTracker(store, time.Minute)
	b := NewVersionTracker(store, time.Minute)
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())

	v, err := a.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	var changes atomic.Int32
	b.OnChange(func(int64) { changes.Add(1) })

	v, ok, err := a.TryIncrementVersion(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), a.LastSeen())

	// b still believes 0 and loses, adopting the winner's version
	v, ok, err = b.TryIncrementVersion(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), b.LastSeen())
	assert.Equal(t, int32(1), changes.Load())

	v, changed, err := b.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(1), v)

	raw, err := store.Get(ctx, repository.InstanceKey(b.InstanceID()))
	require.NoError(t, err)
	assert.Equal(t, "1", raw)
}

func TestVersionTracker_ConcurrentIncrementHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	const n = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := NewVersionTracker(store, 0)
			_, ok, err := tr.TryIncrementVersion(ctx, 0)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	v, err := NewVersionTracker(store, 0).Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
