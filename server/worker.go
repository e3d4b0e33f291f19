package server

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("worker stopped")

// request represents a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func() (any, error)
	done chan result
}

// result holds the return value from a unit of work.
type result struct {
	value any
	err   error
}

// Worker serializes all compile and run requests through a single
// goroutine. The Translator and Interpreter are single-threaded; every
// handler must go through the worker.
type Worker struct {
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func() (any, error)) (res result) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker recovered: %v", r)
			res = result{err: fmt.Errorf("internal error: %v", r)}
		}
	}()
	v, err := fn()
	return result{value: v, err: err}
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Returns the result and any error (including panics).
func (w *Worker) Do(fn func() (any, error)) (any, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}

	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
