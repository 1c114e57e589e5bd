package transfer

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// sentinel is the type of the two special removal-queue values; kept
// unexported and comparable by identity so callers can't construct a
// colliding object id value by accident.
type sentinel struct{ name string }

func (s sentinel) String() string { return s.name }

var (
	// Quit asks a removal worker to exit.
	Quit = sentinel{"quit"}
	// Flush asks the multi-delete worker to drain and issue its current
	// batch without waiting for more ids to arrive.
	Flush = sentinel{"flush"}
)

// ErrQueueFull names the full-queue condition. RemovalQueue.Put reports a
// full queue by returning false; no function in this package returns
// ErrQueueFull.
var ErrQueueFull = errors.New("transfer: removal queue full")

// RemovalQueue is the bounded FIFO of spec.md §4.3: object ids awaiting a
// backend delete, plus the two sentinel values worker goroutines use to
// coordinate shutdown and batch flushing.
type RemovalQueue struct {
	ch chan any
}

func NewRemovalQueue(capacity int) *RemovalQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RemovalQueue{ch: make(chan any, capacity)}
}

// Put enqueues v (an object id or a sentinel), blocking up to timeout if the
// queue is full. Returns false on timeout.
func (q *RemovalQueue) Put(v any, timeout time.Duration) bool {
	if timeout <= 0 {
		q.ch <- v
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case q.ch <- v:
		return true
	case <-t.C:
		return false
	}
}

// Get blocks until a value is available.
func (q *RemovalQueue) Get() any {
	return <-q.ch
}

// GetNonBlocking returns (v, true) if a value is immediately available, or
// (nil, false) if the queue is currently empty.
func (q *RemovalQueue) GetNonBlocking() (any, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		return nil, false
	}
}

// Len reports the number of pending entries (an estimate; may be
// momentarily stale under concurrent access, matching spec.md §4.5's
// get_usage note that pending removals is an estimate).
func (q *RemovalQueue) Len() int {
	return len(q.ch)
}

// Pool bounds concurrent worker goroutines started for upload/removal
// processing, matching the teacher's TransferQueue.Start/Stop(timeout)
// lifecycle (stopCh/stoppedCh) but joining workers via errgroup.Group rather
// than a hand-rolled sync.WaitGroup.
type Pool struct {
	g         *errgroup.Group
	stopCh    chan struct{}
	stoppedCh chan struct{}
	once      sync.Once
}

func NewPool() *Pool {
	return &Pool{
		g:         &errgroup.Group{},
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Go starts n copies of fn, each receiving the pool's stop channel so it can
// observe shutdown.
func (p *Pool) Go(n int, fn func(stop <-chan struct{})) {
	for i := 0; i < n; i++ {
		p.g.Go(func() error {
			fn(p.stopCh)
			return nil
		})
	}
}

// Stop signals all workers to exit and waits up to timeout for them to do
// so. Returns false if the timeout elapsed with workers still running.
func (p *Pool) Stop(timeout time.Duration) bool {
	p.once.Do(func() {
		close(p.stopCh)
		go func() {
			p.g.Wait()
			close(p.stoppedCh)
		}()
	})

	select {
	case <-p.stoppedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}
