package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/logging"
)

// RetryPolicy controls how transient Redis failures are retried.
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy matches the backoff used across the service.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// WithRetry runs fn, retrying transient failures with exponential backoff.
// Permanent failures, including ErrMiss, return immediately. The returned
// error wraps the last failure in an OperationError carrying the operation
// name and task id.
func WithRetry(ctx context.Context, logger *zap.Logger, policy RetryPolicy, operation, taskID string, fn func() error) error {
	if policy.Attempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, taskID, err)
	}

	backoff := policy.InitialBackoff
	opLogger := logging.WithOperation(logger, operation, taskID)
	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, taskID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= policy.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !faults.IsTransient(err) || attempt == policy.Attempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, taskID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, taskID, err)
}

// GetWithRetry reads a key through WithRetry and returns its value.
func GetWithRetry(ctx context.Context, logger *zap.Logger, policy RetryPolicy, c Cache, operation, taskID, key string) (string, error) {
	var result string
	err := WithRetry(ctx, logger, policy, operation, taskID, func() error {
		value, err := c.Get(ctx, key)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
