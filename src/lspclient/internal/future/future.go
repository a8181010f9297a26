// Package future provides a single-assignment asynchronous result.
package future

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uber/lsp-session/src/lspclient/internal/errors"
)

type state int

const (
	statePending state = iota
	stateCompleted
	stateFailed
	stateCancelled
)

// Future holds a value or an error that becomes available later.
// The first of Complete, Fail or Cancel wins; later calls are ignored.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	state    state
	value    T
	err      error
	onCancel func()
}

// New returns a pending future. onCancel, if set, runs once when the future is cancelled while pending.
func New[T any](onCancel func()) *Future[T] {
	return &Future[T]{
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

// Completed returns a future already resolved with v.
func Completed[T any](v T) *Future[T] {
	f := New[T](nil)
	f.Complete(v)
	return f
}

// Failed returns a future already failed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T](nil)
	f.Fail(err)
	return f
}

// Complete resolves the future with v. It reports whether this call settled the future.
func (f *Future[T]) Complete(v T) bool {
	return f.settle(stateCompleted, v, nil)
}

// Fail fails the future with err. It reports whether this call settled the future.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.settle(stateFailed, zero, err)
}

// Cancel fails a pending future with errors.ErrCancelled and runs the cancel hook.
// Cancelling a settled future does nothing.
func (f *Future[T]) Cancel() bool {
	var zero T
	if !f.settle(stateCancelled, zero, errors.ErrCancelled) {
		return false
	}
	if f.onCancel != nil {
		f.onCancel()
	}
	return true
}

func (f *Future[T]) settle(s state, v T, err error) bool {
	f.mu.Lock()
	if f.state != statePending {
		f.mu.Unlock()
		return false
	}
	f.state = s
	f.value = v
	f.err = err
	close(f.done)
	f.mu.Unlock()
	return true
}

// Wait blocks until the future settles, ctx ends or expired fires.
// Expiry returns errors.ErrWaitExpired and leaves the future pending.
func (f *Future[T]) Wait(ctx context.Context, expired <-chan time.Time) (T, error) {
	var zero T
	select {
	case <-f.done:
		return f.result()
	default:
	}

	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-expired:
		return zero, errors.ErrWaitExpired
	}
}

// Get waits at most timeout for the outcome. A zero or negative timeout is rejected; waits are always bounded.
func (f *Future[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	if timeout <= 0 {
		var zero T
		return zero, fmt.Errorf("future: wait requires a positive timeout, got %v", timeout)
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	v, err := f.Wait(ctx, t.C)
	if errors.Is(err, errors.ErrWaitExpired) {
		return v, &errors.TimeoutError{Timeout: timeout}
	}
	return v, err
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}
