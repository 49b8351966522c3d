package storage

import (
	"context"
	"errors"

	"github.com/alitto/pond/v2"
)

// ErrQueueClosed is returned for work submitted after Close.
var ErrQueueClosed = errors.New("store queue closed")

// Queue runs submitted work one task at a time on a single worker.
// Every read-check-write sequence of a store goes through it, which makes the
// sequence atomic with respect to other writers. Tasks must not call Do themselves.
type Queue struct {
	pool pond.Pool
}

// NewQueue starts a queue with a single worker.
func NewQueue() *Queue {
	return &Queue{pool: pond.NewPool(1)}
}

// Do runs fn on the queue and waits for its result. Work whose ctx ended while it
// was queued is skipped.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.pool.SubmitErr(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn()
	}).Wait()
	if errors.Is(err, pond.ErrPoolStopped) {
		return ErrQueueClosed
	}
	return err
}

// Close stops the queue after the queued work finished.
func (q *Queue) Close() {
	q.pool.StopAndWait()
}
