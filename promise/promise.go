// Package promise implements a single-settlement future with chained handlers.
//
// Handlers are executed synchronously by the goroutine which settles the promise.
// In the client this is the network read loop, so handlers must not block: a
// handler which waits on another reply stalls processing of all inbound frames.
package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadySettled is returned by Resolve or Reject on a promise which is already settled.
	ErrAlreadySettled = errors.New("promise already resolved or rejected")
	// ErrHandlersAlreadySet is the error of the promise returned by a repeated ThenApply.
	ErrHandlersAlreadySet = errors.New("promise handlers already set")
)

type state int

const (
	waiting state = iota
	resolved
	rejected
)

// SuccessHandler is called with the value of the resolved promise. Returning (nil, nil)
// passes the original value to the next promise. Returning a promise makes the next
// promise settle the same way as the returned one. Returning an error rejects the next promise.
type SuccessHandler[T any] func(result T) (*PromisedReply[T], error)

// FailureHandler is called with the error of the rejected promise. Returning (nil, nil)
// absorbs the error: the next promise is resolved with the zero value.
type FailureHandler[T any] func(err error) (*PromisedReply[T], error)

// PromisedReply is a result of an asynchronous operation which settles exactly once.
type PromisedReply[T any] struct {
	mu sync.Mutex

	state  state
	result T
	err    error
	done   chan struct{}

	handlersSet bool
	onSuccess   SuccessHandler[T]
	onFailure   FailureHandler[T]
	next        *PromisedReply[T]

	// Internal observers notified after settlement: flattened promises, AllOf.
	followers []func(T, error)
}

// New creates a waiting promise.
func New[T any]() *PromisedReply[T] {
	return &PromisedReply[T]{done: make(chan struct{})}
}

// Resolved creates a promise already resolved with the value.
func Resolved[T any](result T) *PromisedReply[T] {
	p := New[T]()
	p.Resolve(result)
	return p
}

// Rejected creates a promise already rejected with the error.
func Rejected[T any](err error) *PromisedReply[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve settles the promise with a value and calls the success handler inline.
func (p *PromisedReply[T]) Resolve(result T) error {
	return p.settle(result, nil)
}

// Reject settles the promise with an error and calls the failure handler inline.
func (p *PromisedReply[T]) Reject(err error) error {
	if err == nil {
		err = errors.New("promise rejected with nil error")
	}
	var zero T
	return p.settle(zero, err)
}

func (p *PromisedReply[T]) settle(result T, err error) error {
	p.mu.Lock()
	if p.state != waiting {
		p.mu.Unlock()
		return ErrAlreadySettled
	}
	if err != nil {
		p.state = rejected
		p.err = err
	} else {
		p.state = resolved
		p.result = result
	}
	close(p.done)

	handlersSet := p.handlersSet
	onSuccess, onFailure, next := p.onSuccess, p.onFailure, p.next
	followers := p.followers
	p.followers = nil
	p.mu.Unlock()

	if handlersSet {
		dispatch(next, onSuccess, onFailure, result, err)
	}
	for _, f := range followers {
		f(result, err)
	}
	return nil
}

// ThenApply registers handlers and returns a promise derived from the result of the handlers.
// Either handler may be nil. If the promise is already settled, the matching handler is
// called before ThenApply returns. Handlers can be registered only once: a repeated call
// returns a promise rejected with ErrHandlersAlreadySet.
func (p *PromisedReply[T]) ThenApply(onSuccess SuccessHandler[T], onFailure FailureHandler[T]) *PromisedReply[T] {
	p.mu.Lock()
	if p.handlersSet {
		p.mu.Unlock()
		return Rejected[T](ErrHandlersAlreadySet)
	}
	p.handlersSet = true
	p.onSuccess = onSuccess
	p.onFailure = onFailure
	p.next = New[T]()
	next := p.next

	st, result, err := p.state, p.result, p.err
	p.mu.Unlock()

	if st != waiting {
		dispatch(next, onSuccess, onFailure, result, err)
	}
	return next
}

// ThenFinally calls fn after the promise is settled either way. The returned promise
// settles the same way as this one.
func (p *PromisedReply[T]) ThenFinally(fn func()) *PromisedReply[T] {
	return p.ThenApply(
		func(T) (*PromisedReply[T], error) {
			fn()
			return nil, nil
		},
		func(err error) (*PromisedReply[T], error) {
			fn()
			return nil, err
		})
}

// dispatch calls the appropriate handler and settles next according to its outcome.
func dispatch[T any](next *PromisedReply[T], onSuccess SuccessHandler[T], onFailure FailureHandler[T], result T, err error) {
	var ret *PromisedReply[T]
	var herr error

	if err == nil {
		if onSuccess == nil {
			next.settle(result, nil)
			return
		}
		ret, herr = callSafely(func() (*PromisedReply[T], error) { return onSuccess(result) })
		if herr == nil && ret == nil {
			next.settle(result, nil)
			return
		}
	} else {
		if onFailure == nil {
			next.settle(result, err)
			return
		}
		ret, herr = callSafely(func() (*PromisedReply[T], error) { return onFailure(err) })
		if herr == nil && ret == nil {
			var zero T
			next.settle(zero, nil)
			return
		}
	}

	if herr != nil {
		next.Reject(herr)
		return
	}
	ret.follow(func(v T, e error) {
		next.settle(v, e)
	})
}

// callSafely converts a panic in a handler into an error so the dispatching
// goroutine survives a misbehaving handler.
func callSafely[T any](fn func() (*PromisedReply[T], error)) (ret *PromisedReply[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			ret = nil
			err = fmt.Errorf("promise handler panic: %v", r)
		}
	}()
	return fn()
}

// follow calls fn once the promise is settled, immediately if it already is.
// Unlike ThenApply it can be used any number of times.
func (p *PromisedReply[T]) follow(fn func(T, error)) {
	p.mu.Lock()
	if p.state == waiting {
		p.followers = append(p.followers, fn)
		p.mu.Unlock()
		return
	}
	result, err := p.result, p.err
	p.mu.Unlock()
	fn(result, err)
}

// Result blocks until the promise is settled and returns the value or the error.
// It's safe to call any number of times from any goroutine.
func (p *PromisedReply[T]) Result() (T, error) {
	<-p.done
	return p.result, p.err
}

// Wait is like Result but gives up when the context is cancelled.
func (p *PromisedReply[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel which is closed when the promise is settled.
func (p *PromisedReply[T]) Done() <-chan struct{} {
	return p.done
}

// IsDone checks if the promise is resolved or rejected.
func (p *PromisedReply[T]) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != waiting
}

// IsResolved checks if the promise is resolved.
func (p *PromisedReply[T]) IsResolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == resolved
}

// IsRejected checks if the promise is rejected.
func (p *PromisedReply[T]) IsRejected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == rejected
}

// AllOf returns a promise which resolves with the values of all promises in the
// original order once all of them are resolved, or rejects with the first error.
// An empty list resolves immediately.
func AllOf[T any](promises ...*PromisedReply[T]) *PromisedReply[[]T] {
	all := New[[]T]()
	if len(promises) == 0 {
		all.Resolve([]T{})
		return all
	}

	var mu sync.Mutex
	results := make([]T, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		i := i
		p.follow(func(v T, err error) {
			if err != nil {
				// Only the first error matters, the rest get ErrAlreadySettled.
				all.Reject(err)
				return
			}
			mu.Lock()
			results[i] = v
			remaining--
			finished := remaining == 0
			mu.Unlock()
			if finished {
				all.Resolve(results)
			}
		})
	}
	return all
}
