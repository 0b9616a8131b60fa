package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned by WithTimeout when fn does not finish in time.
var ErrTimeout = eris.New("resilience: call timed out")

// WithTimeout runs fn with a deadline of d. If fn has not returned by then,
// WithTimeout returns ErrTimeout without waiting for it; fn sees its context
// cancelled and its eventual result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		val, err := fn(ctx)
		ch <- result{val, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, eris.Wrap(ErrTimeout, ctx.Err().Error())
	}
}

// Fallback runs fn under WithTimeout and returns fallback() on any error.
// The second return value reports whether the fallback was used.
func Fallback[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error), fallback func(err error) T) (T, bool) {
	val, err := WithTimeout(ctx, d, fn)
	if err != nil {
		return fallback(err), true
	}
	return val, false
}
