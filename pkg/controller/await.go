package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/hdrlab/linstage/pkg/stage"
)

// await runs fn and returns its result, or ctx's error once ctx is done even
// if fn has not returned. A result that arrives after the wait gave up is
// passed to release.
//
// A non-nil slot is taken before fn starts and given back only when fn
// returns, so an abandoned call keeps later callers of the same slot out.
func await[T any](ctx context.Context, slot chan struct{}, fn func(context.Context) (T, error), release func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	if slot != nil {
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		if slot != nil {
			<-slot
		}
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && release != nil {
				release(r.v)
			}
		}()
		var zero T
		return zero, ctx.Err()
	}
}

// run is await for calls without a result.
func run(ctx context.Context, slot chan struct{}, fn func(context.Context) error) error {
	_, err := await(ctx, slot, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}

// classify wraps a backend error in the stage taxonomy.
func classify(err error, kind error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", stage.ErrTimeout, err)
	case errors.Is(err, kind):
		return err
	default:
		return fmt.Errorf("%w: %v", kind, err)
	}
}
