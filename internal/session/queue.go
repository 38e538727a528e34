// Package session owns everything that touches the single shared
// automation session: the FIFO task queue that serializes access to it
// and the driver that speaks to the automation sidecar.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cesargomez89/tidepool/internal/logger"
)

type task struct {
	ctx   context.Context
	label string
	fn    func(context.Context) error
	done  chan error
}

// Queue serializes session work: tasks run strictly one at a time in
// submission order on a single worker goroutine. A failing task never
// blocks the tasks behind it; its error goes only to its submitter.
type Queue struct {
	tasks chan task
	depth atomic.Int64
	log   *logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue starts the worker goroutine. Call Close on teardown.
func NewQueue(log *logger.Logger) *Queue {
	q := &Queue{
		tasks:  make(chan task, 64),
		log:    log.WithComponent("session-queue"),
		closed: make(chan struct{}),
	}
	go q.run()
	return q
}

// Do submits fn and blocks until it has run. fn receives the
// submitter's ctx so layered timeouts reach into the running task. If
// ctx expires while the task is still waiting its turn, the wait is
// abandoned; a task that already started runs to completion (or to its
// own timeout) and its result is discarded.
func (q *Queue) Do(ctx context.Context, label string, fn func(context.Context) error) error {
	t := task{ctx: ctx, label: label, fn: fn, done: make(chan error, 1)}

	depth := q.depth.Add(1)
	q.log.Debug("task enqueued", "label", label, "depth", depth)

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		q.depth.Add(-1)
		return ctx.Err()
	case <-q.closed:
		q.depth.Add(-1)
		return fmt.Errorf("queue closed")
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth reports how many tasks are submitted but not yet finished.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Close stops the worker after the current task finishes. Pending
// tasks are rejected.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

func (q *Queue) run() {
	for {
		select {
		case <-q.closed:
			q.drainPending()
			return
		case t := <-q.tasks:
			q.runOne(t)
		}
	}
}

func (q *Queue) runOne(t task) {
	q.log.Debug("task started", "label", t.label)
	err := q.safeCall(t)
	q.depth.Add(-1)
	if err != nil {
		q.log.Warn("task failed", "label", t.label, "error", err)
	} else {
		q.log.Debug("task finished", "label", t.label)
	}
	t.done <- err
}

// safeCall keeps a panicking task from killing the worker goroutine.
func (q *Queue) safeCall(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("task panicked", "label", t.label, "panic", r)
			err = fmt.Errorf("task %s panicked: %v", t.label, r)
		}
	}()
	return t.fn(t.ctx)
}

func (q *Queue) drainPending() {
	for {
		select {
		case t := <-q.tasks:
			q.depth.Add(-1)
			t.done <- fmt.Errorf("queue closed")
		default:
			return
		}
	}
}
