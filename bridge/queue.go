package bridge

import "sync"

// Queue is an unbounded FIFO of user ops with a single consumer.
// Pop never blocks, an empty queue returns false.
type Queue struct {
	lock  sync.Mutex
	items []*UserOp
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(op *UserOp) {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.items = append(q.items, op)
}

func (q *Queue) Pop() (*UserOp, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	return item, true
}

func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return len(q.items)
}
