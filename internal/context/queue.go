package context

import "sync"

// queue is an ordered command buffer bound to one logical sub-device:
// operations submitted to it run on a single worker goroutine in
// submission order, and Flush is the only ordering barrier within it,
// matching spec.md §5's "within one (context, queue) pair, operations
// submitted in API order execute in backend-submission order;
// flush_queue is the only barrier." The single-worker-drains-a-channel
// shape is the same one the teacher's internal/queue/runner.go used to
// serialize ublk I/O onto one completion ring; the io_uring plumbing
// that ring needed has no VMAccel counterpart (see DESIGN.md), but the
// ordering idea it existed to provide carries over directly.
type queue struct {
	id          int64
	subDeviceID int64

	ops  chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newQueue(id, subDeviceID int64) *queue {
	q := &queue{
		id:          id,
		subDeviceID: subDeviceID,
		ops:         make(chan func(), 64),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *queue) run() {
	defer q.wg.Done()
	for op := range q.ops {
		op()
	}
}

// submit enqueues op for in-order execution on this queue's worker,
// returning immediately.
func (q *queue) submit(op func()) {
	q.ops <- op
}

// flush blocks until every operation submitted before this call has
// drained, the queue's one ordering barrier.
func (q *queue) flush() {
	done := make(chan struct{})
	q.submit(func() { close(done) })
	<-done
}

// close drains and stops the worker. Submitting to a closed queue
// panics, matching a programming-error-class misuse (operating on a
// destroyed queue).
func (q *queue) close() {
	q.once.Do(func() { close(q.ops) })
	q.wg.Wait()
}
