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

// LeaderboardRepository holds the leaderboard frozen when a cycle finishes.
type LeaderboardRepository struct {
	kv  kv.Store
	ttl time.Duration
}

func NewLeaderboardRepository(store kv.Store, ttl time.Duration) *LeaderboardRepository {
	return &LeaderboardRepository{kv: store, ttl: ttl}
}

// Get returns nil, nil when nothing was frozen yet.
func (r *LeaderboardRepository) Get(ctx context.Context) (*domain.Leaderboard, error) {
	raw, err := r.kv.Get(ctx, keyLeaderboard)
	if errors.Is(err, kv.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal([]byte(raw), &lb); err != nil {
		logger.Warn("discarding unreadable leaderboard", "error", err)
		return nil, nil
	}
	return &lb, nil
}

// Freeze stores lb unless a leaderboard is already frozen. It reports whether
// lb was written.
func (r *LeaderboardRepository) Freeze(ctx context.Context, lb *domain.Leaderboard) (bool, error) {
	b, err := json.Marshal(lb)
	if err != nil {
		return false, fmt.Errorf("encode leaderboard: %w", err)
	}
	ok, err := r.kv.SetNX(ctx, keyLeaderboard, string(b), r.ttl)
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}
