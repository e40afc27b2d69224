package pipeline

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// inflightQueue bounds the number of tasks a stage has running. Tasks are awaited strictly in the order they were
// launched, which is what keeps batch output in submission order even though tasks may finish in any order.
// An inflightQueue is owned by a single goroutine.
type inflightQueue[T any] struct {
	capacity int
	tasks    []*task[T]
	wg       sync.WaitGroup
}

func newInflightQueue[T any](capacity int) *inflightQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &inflightQueue[T]{
		capacity: capacity,
		tasks:    make([]*task[T], 0, capacity),
	}
}

func (q *inflightQueue[T]) Len() int {
	return len(q.tasks)
}

func (q *inflightQueue[T]) Full() bool {
	return len(q.tasks) >= q.capacity
}

// Launch starts fn on its own goroutine. Callers must make room with AwaitOldest first if the queue is Full.
func (q *inflightQueue[T]) Launch(fn func() (T, error)) {
	t := &task[T]{done: make(chan struct{})}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer close(t.done)
		t.result, t.err = fn()
	}()
	q.tasks = append(q.tasks, t)
}

// AwaitOldest removes the longest running task from the queue and blocks until it completes or ctx is done.
func (q *inflightQueue[T]) AwaitOldest(ctx context.Context) (T, error) {
	var zero T
	if len(q.tasks) == 0 {
		return zero, errors.New("no tasks in flight")
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return zero, errors.WithStack(ctx.Err())
	}
}

// Wait blocks until every launched task has exited, whether or not it was awaited.
func (q *inflightQueue[T]) Wait() {
	q.wg.Wait()
}

func send[T any](ctx context.Context, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}
