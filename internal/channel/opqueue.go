package channel

import "sync"

// opQueue runs provider lifecycle calls one at a time, in submission order.
// push never blocks, so it is safe to call from inside a running op.
type opQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ops    []func()
	closed bool
	done   chan struct{}
}

func newOpQueue() *opQueue {
	q := &opQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *opQueue) push(op func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.ops = append(q.ops, op)
	q.cond.Signal()
}

// close lets queued ops drain, then stops run.
func (q *opQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *opQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.ops) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		q.mu.Unlock()

		op()
	}
}
