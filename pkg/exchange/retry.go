package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptime-industries/ota-agent/pkg/log"
	"github.com/uptime-industries/ota-agent/pkg/util"
	"go.uber.org/zap"
)

const (
	DefaultAttempts = 6
	DefaultInterval = 50 * time.Millisecond
)

// RetryPolicy bounds RetryOperation. The worst case wait is
// (Attempts-1) * Interval plus the time spent in the operation itself.
type RetryPolicy struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultAttempts, Interval: DefaultInterval}
}

// RetryOperation invokes op until it succeeds, returns a Permanent error, the
// context is done, or policy.Attempts invocations failed.
func RetryOperation[T any](
	ctx context.Context,
	clock util.Clock,
	name string,
	policy RetryPolicy,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retryAttempts.WithLabelValues(name).Inc()

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			log.FromContext(ctx).Warn("Operation failed permanently",
				zap.String("operation", name), zap.Int("attempt", attempt), zap.Error(perm.err))
			return zero, perm.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%s interrupted: %w", name, errors.Join(ctxErr, err))
		}

		log.FromContext(ctx).Warn("Operation failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)

		if attempt < attempts {
			if err := util.Sleep(ctx, clock, policy.Interval); err != nil {
				return zero, fmt.Errorf("%s interrupted: %w", name, errors.Join(err, lastErr))
			}
		}
	}

	retryExhausted.WithLabelValues(name).Inc()
	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

// Retry is RetryOperation for operations without a result.
func Retry(ctx context.Context, clock util.Clock, name string, policy RetryPolicy, op func(ctx context.Context) error) error {
	_, err := RetryOperation(ctx, clock, name, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
