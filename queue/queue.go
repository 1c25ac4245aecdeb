package queue

import (
	"sync"
	"time"

	"github.com/grailbio/base/log"
	"github.com/minio/highwayhash"
)

// State describes the outcome of a Pop or PopUntil call.
type State int

const (
	// Item means a value was returned.
	Item State = iota
	// Timeout means PopUntil's deadline passed with nothing available.
	Timeout
	// Terminate means the queue has been shut down and will never yield
	// another item.
	Terminate
)

// ErrTerminated is returned by Push once the queue has been terminated.
type ErrTerminated struct{}

func (ErrTerminated) Error() string { return "queue: push on terminated queue" }

// Queue is a fixed-capacity FIFO safe for concurrent use by multiple
// producers and multiple consumers. Ordering is FIFO among items pushed by
// a single goroutine; there is no ordering guarantee across goroutines.
//
// Terminate causes every blocked and future Push to return ErrTerminated.
// Terminate never discards items already in the buffer: Pop/PopUntil keep
// returning them in order and return Terminate only once the buffer is
// empty, so a consumer such as the inference batcher (infer.Batcher) sees
// every item pushed before termination, then flushes its accumulator and
// exits.
type Queue struct {
	mu         sync.Mutex
	notEmpty   sync.Cond
	notFull    sync.Cond
	buf        []interface{}
	capacity   int
	terminated bool

	// checksum, when non-nil, accumulates a debug-only highwayhash digest of
	// every popped item's byte representation (via digestFunc), used by
	// tests to check that each pop advances the digest. It is never
	// consulted by production code paths.
	checksum   []byte
	digestFunc func(interface{}) []byte
	hashKey    [32]byte
}

// New creates an empty Queue with the given capacity. capacity must be > 0.
func New(capacity int) *Queue {
	if capacity <= 0 {
		log.Panicf("queue.New: capacity must be positive, got %d", capacity)
	}
	q := &Queue{
		buf:      make([]interface{}, 0, capacity),
		capacity: capacity,
	}
	q.notEmpty.L = &q.mu
	q.notFull.L = &q.mu
	return q
}

// EnableDebugChecksum turns on the optional highwayhash accumulation used
// only by tests (see DebugChecksum). digest must return a stable byte
// representation of an item.
func (q *Queue) EnableDebugChecksum(digest func(interface{}) []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.digestFunc = digest
	q.checksum = make([]byte, 0, highwayhash.Size)
}

// DebugChecksum returns the running highwayhash digest of every item popped
// so far, for test-only order verification. Returns nil if
// EnableDebugChecksum was never called.
func (q *Queue) DebugChecksum() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.digestFunc == nil {
		return nil
	}
	out := make([]byte, len(q.checksum))
	copy(out, q.checksum)
	return out
}

func (q *Queue) mixChecksum(x interface{}) {
	if q.digestFunc == nil {
		return
	}
	h, err := highwayhash.New(q.hashKey[:])
	if err != nil {
		log.Panicf("queue: highwayhash.New: %v", err)
	}
	h.Write(q.checksum)
	h.Write(q.digestFunc(x))
	q.checksum = h.Sum(q.checksum[:0])
}

// Push inserts x at the tail of the queue, blocking while the queue is
// full. It returns ErrTerminated if the queue has already been terminated,
// and may also return ErrTerminated if the queue is terminated while the
// call is blocked waiting for room.
func (q *Queue) Push(x interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) >= q.capacity && !q.terminated {
		q.notFull.Wait()
	}
	if q.terminated {
		return ErrTerminated{}
	}
	q.buf = append(q.buf, x)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the item at the head of the queue, blocking until
// one is available or the queue is terminated.
func (q *Queue) Pop() (interface{}, State) {
	return q.pop(nil)
}

// PopUntil behaves like Pop, but additionally returns (nil, Timeout) if
// deadline passes with no item available and the queue has not been
// terminated.
func (q *Queue) PopUntil(deadline time.Time) (interface{}, State) {
	return q.pop(&deadline)
}

func (q *Queue) pop(deadline *time.Time) (interface{}, State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Buffered items are still handed out after Terminate; Terminate is
	// returned only once the buffer is empty, so shutdown (which happens
	// after producers stop) loses none of the work already queued.
	for len(q.buf) == 0 && !q.terminated {
		if deadline == nil {
			q.notEmpty.Wait()
			continue
		}
		remaining := time.Until(*deadline)
		if remaining <= 0 {
			return nil, Timeout
		}
		q.waitWithTimeout(remaining)
		if len(q.buf) == 0 && !q.terminated && time.Until(*deadline) <= 0 {
			return nil, Timeout
		}
	}
	if len(q.buf) == 0 {
		return nil, Terminate
	}
	x := q.buf[0]
	q.buf = q.buf[1:]
	q.mixChecksum(x)
	q.notFull.Signal()
	return x, Item
}

// waitWithTimeout waits on notEmpty for at most d. The queue's mutex must
// be held on entry and is held again on return, matching sync.Cond.Wait;
// the caller re-checks its predicate afterward since the wakeup may be the
// timer, a genuine push, or a spurious broadcast.
func (q *Queue) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.notEmpty.Broadcast()
	})
	defer timer.Stop()
	q.notEmpty.Wait()
}

// Terminate shuts the queue down: every blocked and future Push returns
// ErrTerminated, every blocked and future Pop/PopUntil returns Terminate
// once the buffer has been drained. Terminate is idempotent.
func (q *Queue) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.terminated {
		return
	}
	q.terminated = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the current number of buffered items, for metrics
// (correct.Stats' queue-depth fields).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Capacity returns the queue's fixed capacity.
func (q *Queue) Capacity() int {
	return q.capacity
}
