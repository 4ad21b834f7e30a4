package future

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNilRejection is the failure recorded when Reject is called with a nil error.
var ErrNilRejection = errors.New("future: rejected with nil error")

// Future is the single-assignment result of an asynchronous operation.
//
// A Future is completed exactly once, either with a value (Resolve) or with an
// error (Reject). Later completion attempts are ignored. Any number of
// goroutines may wait on it.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already resolved with v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Failed returns a future already rejected with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve completes the future with v. It reports whether this call completed it.
func (f *Future[T]) Resolve(v T) bool {
	return f.complete(v, nil)
}

// Reject completes the future with err. It reports whether this call completed it.
func (f *Future[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.val = v
		f.err = err
		completed = true
		close(f.done)
	})
	return completed
}

// Done is closed once the future is completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed, without blocking.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes or ctx is done.
//
// Giving up on ctx does not affect the underlying operation; it keeps running
// and the future still completes.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		var zero T
		return zero, errors.New("future: nil context")
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the future completes.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// All waits for every future and returns their values in argument order.
//
// The first failure is returned as soon as it is observed; remaining futures
// are no longer waited on but keep running.
func All[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	for _, f := range futures {
		if f == nil {
			return nil, errors.New("future: nil future in All")
		}
	}

	out := make([]T, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Wait(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
