package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseSameKeySerializes(t *testing.T) {
	ml := New()
	require.True(t, ml.Acquire("k"))

	acquired := make(chan struct{})
	go func() {
		ml.Acquire("k")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while first holds the key")
	case <-time.After(50 * time.Millisecond):
	}

	ml.Release("k")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
	ml.Release("k")
}

func TestDistinctKeysDoNotContend(t *testing.T) {
	ml := New()
	require.True(t, ml.Acquire("a"))
	require.True(t, ml.Acquire("b"))
	ml.Release("a")
	ml.Release("b")
}

func TestTryAcquireNonBlocking(t *testing.T) {
	ml := New()
	require.True(t, ml.Acquire("k"))
	assert.False(t, ml.TryAcquire("k"))
	ml.Release("k")
	assert.True(t, ml.TryAcquire("k"))
	ml.Release("k")
}

func TestAcquireTimeout(t *testing.T) {
	ml := New()
	require.True(t, ml.Acquire("k"))
	start := time.Now()
	ok := ml.AcquireTimeout("k", 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	ml.Release("k")
}

func TestReleaseErrOnUnheldKey(t *testing.T) {
	ml := New()
	err := ml.ReleaseErr("never-held")
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestReleaseNoerrorIsSilent(t *testing.T) {
	ml := New()
	assert.NotPanics(t, func() { ml.Release("never-held") })
}

func TestConcurrentAcquireReleaseManyKeys(t *testing.T) {
	ml := New()
	var wg sync.WaitGroup
	counter := map[int]int{}
	var mu sync.Mutex

	for i := 0; i < 50; i++ {
		for k := 0; k < 5; k++ {
			wg.Add(1)
			go func(key int) {
				defer wg.Done()
				ml.Acquire(key)
				mu.Lock()
				counter[key]++
				mu.Unlock()
				ml.Release(key)
			}(k)
		}
	}
	wg.Wait()

	for k := 0; k < 5; k++ {
		assert.Equal(t, 50, counter[k])
	}
}
