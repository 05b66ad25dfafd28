package kv

import (
	"context"
	"errors"
	"time"

	"detective_game/internal/logger"

	"github.com/google/uuid"
)

// ErrLockNotAcquired means another holder owns the lock right now.
var ErrLockNotAcquired = errors.New("kv: lock not acquired")

// WithLock runs fn while holding a short-lived lock on key. The lock is
// released on every exit path, and only if it is still ours.
func WithLock(ctx context.Context, s Store, key string, ttl time.Duration, fn func() error) error {
	token := uuid.NewString()
	ok, err := s.SetNX(ctx, key, token, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}
	defer func() {
		// release even if the caller's context is already cancelled
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := s.CompareAndDelete(rctx, key, token); err != nil {
			logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}()
	return fn()
}

// WithLockRetry is WithLock with a bounded number of acquisition attempts.
func WithLockRetry(ctx context.Context, s Store, key string, ttl time.Duration, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = WithLock(ctx, s, key, ttl, fn)
		if !errors.Is(err, ErrLockNotAcquired) {
			return err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
