// internal/blockchain/solbc/rpc/timeout.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout выполняет op с ограничением по времени. Зависание превращается в
// ErrAttemptTimeout; отмена родительского контекста возвращается как есть.
// Если d <= 0, op выполняется без ограничения.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(tctx)
		done <- result{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, timeoutError(d)
		}
		return r.value, r.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, timeoutError(d)
	}
}

func timeoutError(d time.Duration) error {
	return fmt.Errorf("%w after %s", ErrAttemptTimeout, d)
}
