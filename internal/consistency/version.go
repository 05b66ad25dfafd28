package consistency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"
	"detective_game/internal/logger"
	"detective_game/internal/metrics"
	"detective_game/internal/repository"

	"github.com/google/uuid"
)

// VersionTracker follows the shared state version. The version only moves
// forward, by one, on phase changes and resets.
type VersionTracker struct {
	kv          kv.Store
	instanceID  string
	instanceTTL time.Duration
	lastSeen    atomic.Int64

	mu       sync.Mutex
	onChange []func(version int64)
}

func NewVersionTracker(store kv.Store, instanceTTL time.Duration) *VersionTracker {
	return &VersionTracker{
		kv:          store,
		instanceID:  uuid.NewString(),
		instanceTTL: instanceTTL,
	}
}

func (t *VersionTracker) InstanceID() string { return t.instanceID }

// LastSeen is the last version this instance observed.
func (t *VersionTracker) LastSeen() int64 { return t.lastSeen.Load() }

// OnChange registers fn to run whenever the observed version changes.
func (t *VersionTracker) OnChange(fn func(version int64)) {
	t.mu.Lock()
	t.onChange = append(t.onChange, fn)
	t.mu.Unlock()
}

// Current reads the shared version. A missing key is version 0.
func (t *VersionTracker) Current(ctx context.Context) (int64, error) {
	raw, err := t.kv.Get(ctx, repository.StateVersionKey)
	if errors.Is(err, kv.ErrNil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse state version %q: %w", raw, err)
	}
	return v, nil
}

// Sync reads the shared version and adopts it. It reports whether it differed
// from the last one seen.
func (t *VersionTracker) Sync(ctx context.Context) (int64, bool, error) {
	v, err := t.Current(ctx)
	if err != nil {
		return t.LastSeen(), false, err
	}
	return v, t.observe(ctx, v), nil
}

// TryIncrementVersion moves the shared version from expected to expected+1.
// When another instance got there first the current version is adopted and
// false is returned.
func (t *VersionTracker) TryIncrementVersion(ctx context.Context, expected int64) (int64, bool, error) {
	if expected == 0 {
		if _, err := t.kv.SetNX(ctx, repository.StateVersionKey, "0", 0); err != nil {
			return 0, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	next := expected + 1
	ok, err := t.kv.CompareAndSwap(ctx, repository.StateVersionKey,
		strconv.FormatInt(expected, 10), strconv.FormatInt(next, 10), 0)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if ok {
		t.observe(ctx, next)
		return next, true, nil
	}

	metrics.VersionConflicts.Inc()
	cur, _, err := t.Sync(ctx)
	if err != nil {
		return 0, false, err
	}
	logger.Debug("lost state version race", "expected", expected, "current", cur, "instance", t.instanceID)
	return cur, false, nil
}

// Heartbeat publishes this instance's last seen version under instance:<id>.
func (t *VersionTracker) Heartbeat(ctx context.Context) error {
	if t.instanceTTL <= 0 {
		return nil
	}
	err := t.kv.Set(ctx, repository.InstanceKey(t.instanceID), strconv.FormatInt(t.LastSeen(), 10), t.instanceTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (t *VersionTracker) observe(ctx context.Context, v int64) bool {
	prev := t.lastSeen.Swap(v)
	if prev == v {
		return false
	}
	if err := t.Heartbeat(ctx); err != nil {
		logger.Warn("failed to record instance version", "instance", t.instanceID, "error", err)
	}
	t.mu.Lock()
	fns := append([]func(int64){}, t.onChange...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
	return true
}
