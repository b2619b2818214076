package utils

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrClosed   = errors.New("[yrb] batch queue is closed")
	ErrOverflow = errors.New("[yrb] record does not fit the queue")
)

// BatchQueue buffers byte records from any number of writers for one
// reader that takes them in batches. The buffer is bounded in bytes:
// writers wait for room. Records pushed by one Push call stay in order.
type BatchQueue[T ~[][]byte] struct {
	lock  sync.Mutex
	data  T
	size  int
	limit int
	batch int

	closed  chan struct{}
	ready   chan struct{}
	room    chan struct{}
	closing sync.Once
}

// NewBatchQueue makes a queue holding up to limit bytes and handing out
// batches of about batch bytes.
func NewBatchQueue[T ~[][]byte](limit, batch int) *BatchQueue[T] {
	return &BatchQueue[T]{
		limit:  limit,
		batch:  batch,
		closed: make(chan struct{}),
		ready:  make(chan struct{}, 1),
		room:   make(chan struct{}, 1),
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (q *BatchQueue[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Close stops accepting records. What is buffered can still be taken.
func (q *BatchQueue[T]) Close() error {
	q.closing.Do(func() { close(q.closed) })
	return nil
}

// Size is the number of buffered bytes.
func (q *BatchQueue[T]) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.size
}

func (q *BatchQueue[T]) Push(ctx context.Context, recs ...[]byte) error {
	for _, rec := range recs {
		if len(rec) > q.limit {
			return ErrOverflow
		}
	}
	for len(recs) > 0 {
		if q.isClosed() {
			return ErrClosed
		}
		q.lock.Lock()
		n := 0
		for n < len(recs) && q.size+len(recs[n]) <= q.limit {
			q.data = append(q.data, recs[n])
			q.size += len(recs[n])
			n++
		}
		q.lock.Unlock()
		recs = recs[n:]
		if n > 0 {
			notify(q.ready)
		}
		if len(recs) == 0 {
			return nil
		}
		select {
		case <-q.room:
		case <-q.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Pop waits for records and returns a batch of them: at least one, more
// while they fit the batch size. After Close it drains what is left and
// then returns ErrClosed.
func (q *BatchQueue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.lock.Lock()
		if len(q.data) > 0 {
			n, size := 1, len(q.data[0])
			for n < len(q.data) && size+len(q.data[n]) <= q.batch {
				size += len(q.data[n])
				n++
			}
			recs := q.data[:n:n]
			q.data = q.data[n:]
			q.size -= size
			q.lock.Unlock()
			notify(q.room)
			return recs, nil
		}
		q.lock.Unlock()
		if q.isClosed() {
			return nil, ErrClosed
		}
		select {
		case <-q.ready:
		case <-q.closed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
