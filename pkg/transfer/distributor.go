// Package transfer implements the hand-off primitives of spec.md §4.2-4.3:
// a single-slot rendezvous Distributor for uploads, and a bounded FIFO
// removal queue with Quit/Flush sentinels. Structurally grounded in the
// worker-pool lifecycle of the teacher's pkg/payload/transfer.TransferQueue
// (stopCh/stoppedCh/sync.WaitGroup, Start/Stop(timeout)), but the Distributor
// itself is deliberately unbuffered — spec.md requires zero-buffer
// backpressure, the opposite of the teacher's buffered channel queue.
package transfer

import (
	"sync"
	"time"
)

// Distributor hands objects from producers to consumers one at a time with
// no buffering: Put blocks until a Get is already waiting to receive, then
// transfers directly. This is what bounds upload concurrency to the number
// of live upload workers (spec.md §4.2).
type Distributor struct {
	cv     *sync.Cond
	mu     sync.Mutex
	slot   any
	filled bool
	readers int
}

func NewDistributor() *Distributor {
	d := &Distributor{}
	d.cv = sync.NewCond(&d.mu)
	return d
}

// Put offers obj for consumption. It blocks until a reader is waiting in Get
// and the slot is free, then hands obj to that reader, or gives up once
// timeout (measured from the call) has elapsed; a timeout <= 0 waits without
// limit. Returns true if obj was handed off, false on timeout. obj must not
// be nil.
func (d *Distributor) Put(obj any, timeout time.Duration) bool {
	if obj == nil {
		panic("transfer: Distributor.Put(nil)")
	}

	deadline := time.Now().Add(timeout)
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.readers == 0 || d.filled {
		if timeout <= 0 {
			if !d.waitUnbounded() {
				return false
			}
			continue
		}
		if !d.waitUntil(deadline) {
			return false
		}
	}

	d.readers--
	d.slot = obj
	d.filled = true
	d.cv.Broadcast()
	return true
}

// Get consumes and returns an object offered by Put, blocking until one is
// available.
func (d *Distributor) Get() any {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.readers++
	d.cv.Broadcast()
	for !d.filled {
		d.cv.Wait()
	}
	obj := d.slot
	d.slot = nil
	d.filled = false
	d.cv.Broadcast()
	return obj
}

// waitUnbounded waits on the condition variable with no timeout. Always
// returns true (kept for symmetry with waitUntil's bool signature).
func (d *Distributor) waitUnbounded() bool {
	d.cv.Wait()
	return true
}

// waitUntil waits on the condition variable until deadline. sync.Cond has
// no native timed wait, so a helper timer wakes the condition when the
// deadline passes; the caller's loop re-checks both the wake-up condition
// and (via the remaining<=0 guard here) whether the deadline has actually
// elapsed, so spurious/early wake-ups from unrelated activity on the same
// condition variable don't cause a premature timeout.
func (d *Distributor) waitUntil(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}

	timer := time.AfterFunc(remaining, func() {
		d.mu.Lock()
		d.cv.Broadcast()
		d.mu.Unlock()
	})
	defer timer.Stop()

	d.cv.Wait()
	return true
}
