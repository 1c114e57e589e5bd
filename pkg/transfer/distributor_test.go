package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistributorPutTimesOutWithNoReader(t *testing.T) {
	d := NewDistributor()
	start := time.Now()
	ok := d.Put("x", 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDistributorHandsOffToWaitingReader(t *testing.T) {
	d := NewDistributor()
	got := make(chan any, 1)
	go func() { got <- d.Get() }()

	// Give the reader goroutine a chance to register itself.
	time.Sleep(20 * time.Millisecond)

	ok := d.Put("payload", time.Second)
	assert.True(t, ok)
	assert.Equal(t, "payload", <-got)
}

func TestDistributorNoBuffering(t *testing.T) {
	d := NewDistributor()

	done := make(chan struct{})
	go func() {
		ok := d.Put("only-once", time.Second)
		assert.True(t, ok)
		close(done)
	}()

	// Without a reader, Put should not return immediately.
	select {
	case <-done:
		t.Fatal("Put returned without any reader present")
	case <-time.After(30 * time.Millisecond):
	}

	assert.Equal(t, "only-once", d.Get())
	<-done
}

func TestDistributorPanicsOnNil(t *testing.T) {
	d := NewDistributor()
	assert.Panics(t, func() { d.Put(nil, time.Second) })
}
