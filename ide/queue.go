package ide

import (
	"container/list"

	"idedisk/buf"
)

// request is one trip of a buffer through the queued path. done is closed
// exactly once, by the interrupt handler.
type request struct {
	b    *buf.Buf
	done chan struct{}
	err  error
}

func newRequest(b *buf.Buf) *request {
	return &request{b: b, done: make(chan struct{})}
}

// settled reports whether the waiter may return
func (r *request) settled() bool {
	return r.err != nil || r.b.Flags.Settled()
}

// queue of pending requests; the front one owns the controller.
type queue struct {
	l *list.List
}

func (q *queue) push(r *request) {
	if q.l == nil {
		q.l = list.New()
	}
	q.l.PushBack(r)
}

func (q *queue) front() *request {
	if q.l == nil || q.l.Front() == nil {
		return nil
	}
	return q.l.Front().Value.(*request)
}

func (q *queue) pop() *request {
	if q.l == nil || q.l.Front() == nil {
		return nil
	}
	return q.l.Remove(q.l.Front()).(*request)
}

func (q *queue) len() int {
	if q.l == nil {
		return 0
	}
	return q.l.Len()
}
