package repository

import (
	"context"
	"time"

	"detective_game/internal/kv"
)

// Repositories bundles the store-backed collections of one cycle.
type Repositories struct {
	Cycles      *CycleRepository
	Players     *PlayerRepository
	Bots        *BotRepository
	Sessions    *SessionRepository
	Matches     *MatchRepository
	Leaderboard *LeaderboardRepository

	kv kv.Store
}

func New(store kv.Store, recordTTL, voteRetention time.Duration) *Repositories {
	return &Repositories{
		Cycles:      NewCycleRepository(store, recordTTL),
		Players:     NewPlayerRepository(store, recordTTL),
		Bots:        NewBotRepository(store, recordTTL),
		Sessions:    NewSessionRepository(store, recordTTL),
		Matches:     NewMatchRepository(store, recordTTL, voteRetention),
		Leaderboard: NewLeaderboardRepository(store, recordTTL),
		kv:          store,
	}
}

// Wipe removes everything that belongs to the current cycle except the cycle
// record itself.
func (r *Repositories) Wipe(ctx context.Context) error {
	players, err := r.Players.All(ctx)
	if err != nil {
		return err
	}
	fids := make([]int64, 0, len(players))
	for _, p := range players {
		fids = append(fids, p.FID)
	}
	if err := r.Matches.deleteAll(ctx, fids); err != nil {
		return err
	}
	return storeErr(r.kv.Del(ctx, keyPlayers, keyBots, keySessions, keyLeaderboard))
}
