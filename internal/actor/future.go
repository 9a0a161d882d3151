package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Future represents the result of an asynchronous computation. It allows
// consumers to wait for the result (Await), apply transformations upon
// completion (ThenApply), or register a callback to be executed when the
// result is available (OnComplete).
type Future[T any] interface {
	// Await blocks until the result is available or the context is
	// cancelled, then returns it.
	Await(ctx context.Context) fn.Result[T]

	// ThenApply registers a function to transform the result of a
	// future. The original future is not modified, a new instance is
	// returned. If the passed context is cancelled while waiting for the
	// original future to complete, the new future completes with the
	// context's error.
	ThenApply(ctx context.Context, fn func(T) T) Future[T]

	// OnComplete registers a function to be called when the result of
	// the future is ready. If the passed context is cancelled before the
	// future completes, the callback is invoked with the context's
	// error.
	OnComplete(ctx context.Context, fn func(fn.Result[T]))
}

// Promise is an interface that allows for the completion of an associated
// Future. The producer of an asynchronous result uses a Promise to set the
// outcome, while consumers use the associated Future to retrieve it.
type Promise[T any] interface {
	// Future returns the Future interface associated with this Promise.
	Future() Future[T]

	// Complete attempts to set the result of the future. It returns true
	// if this call successfully set the result (i.e., it was the first
	// to complete it), and false if the future had already been
	// completed.
	Complete(result fn.Result[T]) bool
}

// promise is the concrete Promise/Future implementation shared by both
// halves. A single done channel gates every reader; the completed flag,
// guarded by mu, ensures Complete is idempotent.
type promise[T any] struct {
	mu        sync.Mutex
	result    fn.Result[T]
	done      chan struct{}
	completed bool
}

// NewPromise creates a new, uncompleted Promise.
func NewPromise[T any]() Promise[T] {
	return &promise[T]{
		done: make(chan struct{}),
	}
}

func (p *promise[T]) Future() Future[T] {
	return p
}

func (p *promise[T]) Complete(result fn.Result[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completed {
		return false
	}

	p.result = result
	p.completed = true
	close(p.done)

	return true
}

func (p *promise[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()

		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

func (p *promise[T]) ThenApply(ctx context.Context, f func(T) T) Future[T] {
	chained := NewPromise[T]()

	go func() {
		result := p.Await(ctx)

		val, err := result.Unpack()
		if err != nil {
			chained.Complete(fn.Err[T](err))
			return
		}

		chained.Complete(fn.Ok(f(val)))
	}()

	return chained.Future()
}

func (p *promise[T]) OnComplete(ctx context.Context, f func(fn.Result[T])) {
	go func() {
		result := p.Await(ctx)
		f(result)
	}()
}
