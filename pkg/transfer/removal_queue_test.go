package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemovalQueueFIFO(t *testing.T) {
	q := NewRemovalQueue(10)
	require.True(t, q.Put(int64(1), time.Second))
	require.True(t, q.Put(int64(2), time.Second))
	assert.Equal(t, int64(1), q.Get())
	assert.Equal(t, int64(2), q.Get())
}

func TestRemovalQueuePutTimesOutWhenFull(t *testing.T) {
	q := NewRemovalQueue(1)
	require.True(t, q.Put(int64(1), time.Second))
	ok := q.Put(int64(2), 30*time.Millisecond)
	assert.False(t, ok)
}

func TestRemovalQueueGetNonBlocking(t *testing.T) {
	q := NewRemovalQueue(4)
	_, ok := q.GetNonBlocking()
	assert.False(t, ok)

	require.True(t, q.Put(int64(7), time.Second))
	v, ok := q.GetNonBlocking()
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
}

func TestRemovalQueueSentinelsAreDistinct(t *testing.T) {
	q := NewRemovalQueue(4)
	require.True(t, q.Put(Flush, time.Second))
	require.True(t, q.Put(Quit, time.Second))

	assert.Equal(t, Flush, q.Get())
	assert.Equal(t, Quit, q.Get())
}

func TestPoolStopJoinsWorkers(t *testing.T) {
	p := NewPool()
	ran := make(chan struct{}, 3)
	p.Go(3, func(stop <-chan struct{}) {
		<-stop
		ran <- struct{}{}
	})

	ok := p.Stop(time.Second)
	assert.True(t, ok)
	assert.Len(t, ran, 3)
}

func TestPoolStopTimesOutIfWorkerHangs(t *testing.T) {
	p := NewPool()
	p.Go(1, func(stop <-chan struct{}) {
		<-stop
		time.Sleep(time.Second)
	})

	ok := p.Stop(20 * time.Millisecond)
	assert.False(t, ok)
}
