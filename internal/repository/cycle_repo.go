package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"
	"detective_game/internal/logger"
)

// CycleSnapshot is a cycle as read from the store. The raw value is kept so a
// later Swap only succeeds if nobody replaced the record in between.
type CycleSnapshot struct {
	Cycle *domain.GameCycle
	raw   string
}

// Raw returns the stored encoding, empty when there was no cycle.
func (s CycleSnapshot) Raw() string { return s.raw }

type CycleRepository struct {
	kv  kv.Store
	ttl time.Duration
}

func NewCycleRepository(store kv.Store, ttl time.Duration) *CycleRepository {
	return &CycleRepository{kv: store, ttl: ttl}
}

// Load returns the current cycle. A missing or unreadable record yields a
// snapshot with a nil Cycle.
func (r *CycleRepository) Load(ctx context.Context) (CycleSnapshot, error) {
	raw, err := r.kv.Get(ctx, keyCycle)
	if errors.Is(err, kv.ErrNil) {
		return CycleSnapshot{}, nil
	}
	if err != nil {
		return CycleSnapshot{}, storeErr(err)
	}
	var c domain.GameCycle
	if err := json.Unmarshal([]byte(raw), &c); err != nil || !c.Phase.Valid() || c.CycleID == "" {
		logger.Warn("discarding unreadable cycle record", "error", err)
		return CycleSnapshot{raw: raw}, nil
	}
	return CycleSnapshot{Cycle: &c, raw: raw}, nil
}

// Swap replaces prev with next. It returns false when the stored record is no
// longer prev.
func (r *CycleRepository) Swap(ctx context.Context, prev CycleSnapshot, next *domain.GameCycle) (CycleSnapshot, bool, error) {
	b, err := json.Marshal(next)
	if err != nil {
		return CycleSnapshot{}, false, fmt.Errorf("encode cycle: %w", err)
	}
	ok, err := r.kv.CompareAndSwap(ctx, keyCycle, prev.raw, string(b), r.ttl)
	if err != nil {
		return CycleSnapshot{}, false, storeErr(err)
	}
	if !ok {
		return CycleSnapshot{}, false, nil
	}
	c := *next
	return CycleSnapshot{Cycle: &c, raw: string(b)}, true, nil
}

func (r *CycleRepository) Delete(ctx context.Context) error {
	return storeErr(r.kv.Del(ctx, keyCycle))
}
