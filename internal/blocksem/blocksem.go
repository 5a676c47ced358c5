// Package blocksem implements the block-height-biased fairness semaphore
// from spec's concurrency design: when multiple Filter fetches contend for
// a bounded pool of in-flight slots, the waiter covering the lowest block
// range is admitted first, so the in-order commit chain never stalls behind
// a fetch for blocks nobody can commit yet.
package blocksem

import (
	"container/heap"
	"context"
	"sync"
)

// BlockSemaphore bounds concurrent fetches to capacity slots, releasing
// queued waiters in ascending order of their ToBlock rather than FIFO
// arrival order.
type BlockSemaphore struct {
	mu       sync.Mutex
	capacity int
	inFlight int
	waiters  waiterHeap
}

// New builds a BlockSemaphore admitting up to capacity concurrent holders.
func New(capacity int) *BlockSemaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &BlockSemaphore{capacity: capacity}
}

type waiter struct {
	toBlock uint64
	ready   chan struct{}
	index   int
}

// waiterHeap orders by ascending toBlock, so Pop always returns the waiter
// covering the earliest block range.
type waiterHeap []*waiter

func (h waiterHeap) Len() int            { return len(h) }
func (h waiterHeap) Less(i, j int) bool  { return h[i].toBlock < h[j].toBlock }
func (h waiterHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *waiterHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Acquire blocks until a slot is free, admitting the lowest-toBlock waiter
// first among everyone currently queued. Returns ctx.Err() if ctx is
// cancelled before a slot is granted; a cancelled waiter already popped off
// the heap releases its slot back immediately.
func (s *BlockSemaphore) Acquire(ctx context.Context, toBlock uint64) error {
	s.mu.Lock()
	if s.inFlight < s.capacity {
		s.inFlight++
		s.mu.Unlock()
		return nil
	}
	w := &waiter{toBlock: toBlock, ready: make(chan struct{})}
	heap.Push(&s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		if w.index >= 0 {
			heap.Remove(&s.waiters, w.index)
			s.mu.Unlock()
			return ctx.Err()
		}
		s.mu.Unlock()
		// Already granted a slot concurrently with cancellation; honor the
		// grant so inFlight bookkeeping stays correct, then release it.
		<-w.ready
		s.Release()
		return ctx.Err()
	}
}

// Release frees one slot, admitting the queued waiter with the lowest
// toBlock if any are waiting.
func (s *BlockSemaphore) Release() {
	s.mu.Lock()
	if s.waiters.Len() > 0 {
		w := heap.Pop(&s.waiters).(*waiter)
		close(w.ready)
		s.mu.Unlock()
		return
	}
	s.inFlight--
	s.mu.Unlock()
}

// Len reports the number of waiters currently queued, for diagnostics.
func (s *BlockSemaphore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}
