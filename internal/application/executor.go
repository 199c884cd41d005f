package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
	"github.com/ericfisherdev/quotapool/internal/domain/port/driven"
)

// ErrPoolExhausted is returned when no key in the pool can serve the call.
// The last underlying transport error is wrapped alongside it.
var ErrPoolExhausted = errors.New("API key pool exhausted")

// Executor runs remote calls against the pool with bounded retry-and-rotate
// semantics. A call is an opaque closure bound to the key secret the
// executor hands it; the closure owns its own timeout and cancellation. On
// success the declared cost is charged to the key that served the call; on
// failure the error is classified once at the transport boundary and the
// pool reacts accordingly.
//
// Callers see a successful result or one of three terminal errors --
// ErrPoolExhausted, a non-retryable transport error, or ErrNoKeysConfigured.
// Intermediate rotation is visible only through the status snapshot and logs.
type Executor struct {
	pool       *KeyPool
	classifier driven.ErrorClassifier
}

// NewExecutor creates an Executor over the given pool and classifier.
func NewExecutor(pool *KeyPool, classifier driven.ErrorClassifier) *Executor {
	return &Executor{
		pool:       pool,
		classifier: classifier,
	}
}

// Do runs call with retry and key rotation, charging cost quota units on
// success. The attempt bound is pool size + 1, which guarantees termination
// without any wall-clock timeout of its own: every key gets at most one full
// chance plus one attempt for the key the loop started on.
func (e *Executor) Do(ctx context.Context, cost int, call func(ctx context.Context, apiKey string) error) error {
	maxAttempts := e.pool.Size() + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		usage, secret, err := e.pool.Current(ctx)
		if err != nil {
			return err
		}

		err = call(ctx, secret)
		if err == nil {
			return e.pool.ChargeUsage(ctx, cost)
		}
		lastErr = err

		kind := e.classifier.Classify(err)
		slog.Warn("remote call failed",
			"key", usage.Identifier,
			"attempt", attempt,
			"kind", kind.String(),
			"error", err,
		)

		if kind == model.KindNonRetryable {
			return err
		}

		usable, rerr := e.pool.RecordFailure(ctx, kind)
		if rerr != nil {
			return rerr
		}
		if !usable {
			return fmt.Errorf("%w: %w", ErrPoolExhausted, lastErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrPoolExhausted, maxAttempts, lastErr)
}

// Execute runs a value-returning call through the executor. It exists so
// call sites keep their result types without threading an out-parameter
// through the closure.
func Execute[T any](ctx context.Context, e *Executor, cost int, call func(ctx context.Context, apiKey string) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, cost, func(ctx context.Context, apiKey string) error {
		var callErr error
		result, callErr = call(ctx, apiKey)
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
