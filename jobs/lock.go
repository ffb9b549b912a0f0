package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
)

const lockPrefix = "backoffice:lock:"

// Exclusive wraps next so that only one worker at a time runs tasks of the
// same type. A task that finds the lock taken is dropped as done.
func Exclusive(locker *redislock.Client, ttl time.Duration, logger *slog.Logger, next asynq.HandlerFunc) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		key := lockPrefix + task.Type()
		lock, err := locker.Obtain(ctx, key, ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("task already running on another worker", slog.String("type", task.Type()))
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release task lock", slog.String("key", key), slog.Any("error", err))
			}
		}()
		return next(ctx, task)
	}
}
