package audioio

import (
	"sync"
	"sync/atomic"
	"time"
)

// FrameQueue is a bounded FIFO between the capture callback and the send loop.
//
// Push never blocks: when the queue is full the oldest frame is discarded so
// the capture device can never stall. Pop waits at most the given timeout.
// FrameQueue is safe for concurrent use.
type FrameQueue struct {
	mu    sync.Mutex
	buf   []Frame
	head  int
	count int

	// notify holds at most one pending wakeup for a blocked Pop.
	notify chan struct{}

	dropped atomic.Int64
	pushed  atomic.Int64
}

// NewFrameQueue creates a queue holding at most capacity frames.
// A non-positive capacity uses DefaultQueueCapacity.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &FrameQueue{
		buf:    make([]Frame, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends a frame. It reports false when an older frame had to be dropped.
func (q *FrameQueue) Push(f Frame) bool {
	q.mu.Lock()
	kept := true
	if q.count == len(q.buf) {
		q.buf[q.head] = Frame{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		kept = false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = f
	q.count++
	q.mu.Unlock()

	q.pushed.Add(1)
	if !kept {
		q.dropped.Add(1)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return kept
}

// Pop removes the oldest frame, waiting up to timeout for one to arrive.
// It returns ok=false if the queue stayed empty for the whole timeout.
func (q *FrameQueue) Pop(timeout time.Duration) (Frame, bool) {
	if f, ok := q.tryPop(); ok {
		return f, true
	}
	if timeout <= 0 {
		return Frame{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if f, ok := q.tryPop(); ok {
				return f, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *FrameQueue) tryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Frame{}, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = Frame{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--

	// Leave a wakeup for the next waiter if frames remain.
	if q.count > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return f, true
}

// Len returns the number of buffered frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *FrameQueue) Cap() int {
	return len(q.buf)
}

// Dropped returns how many frames were discarded on overflow.
func (q *FrameQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Pushed returns how many frames were pushed in total.
func (q *FrameQueue) Pushed() int64 {
	return q.pushed.Load()
}

// Reset discards all buffered frames.
func (q *FrameQueue) Reset() {
	q.mu.Lock()
	for i := range q.buf {
		q.buf[i] = Frame{}
	}
	q.head = 0
	q.count = 0
	q.mu.Unlock()
}
