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

// MatchRepository keeps one string key per match so each match can carry its
// own expiry. match_ids indexes them for bulk reads and inbound:<fid> lists the
// REAL matches a player is the opponent in.
type MatchRepository struct {
	kv        kv.Store
	ttl       time.Duration
	retention time.Duration
}

func NewMatchRepository(store kv.Store, ttl, retention time.Duration) *MatchRepository {
	return &MatchRepository{kv: store, ttl: ttl, retention: retention}
}

func decodeMatch(id, raw string) (*domain.Match, error) {
	var m domain.Match
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m.ID != id {
		return nil, fmt.Errorf("match %q stored under %q", m.ID, id)
	}
	if !m.OpponentKind.Valid() {
		return nil, fmt.Errorf("unknown opponent kind %q", m.OpponentKind)
	}
	return &m, nil
}

// Get returns nil, nil when the match is absent, expired or unreadable.
func (r *MatchRepository) Get(ctx context.Context, id string) (*domain.Match, error) {
	raw, err := r.kv.Get(ctx, matchKey(id))
	if errors.Is(err, kv.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	m, err := decodeMatch(id, raw)
	if err != nil {
		logger.Warn("skipping corrupt record", "collection", "match", "id", id, "error", err)
		return nil, nil
	}
	return m, nil
}

// GetMany returns the matches found, keyed by id.
func (r *MatchRepository) GetMany(ctx context.Context, ids []string) (map[string]*domain.Match, error) {
	res := make(map[string]*domain.Match, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = matchKey(id)
	}
	raws, err := r.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, storeErr(err)
	}
	for i, id := range ids {
		raw, ok := raws[keys[i]]
		if !ok {
			continue
		}
		m, err := decodeMatch(id, raw)
		if err != nil {
			logger.Warn("skipping corrupt record", "collection", "match", "id", id, "error", err)
			continue
		}
		res[id] = m
	}
	return res, nil
}

// Save writes m. Locked matches are only kept for the vote retention window.
func (r *MatchRepository) Save(ctx context.Context, m *domain.Match) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	ttl := r.ttl
	if m.VoteLocked && r.retention > 0 {
		ttl = r.retention
	}
	if err := r.kv.Set(ctx, matchKey(m.ID), string(b), ttl); err != nil {
		return storeErr(err)
	}
	if err := r.kv.SAdd(ctx, keyMatchIDs, m.ID); err != nil {
		return storeErr(err)
	}
	if r.ttl > 0 {
		if err := r.kv.Expire(ctx, keyMatchIDs, r.ttl); err != nil {
			return storeErr(err)
		}
	}
	if m.OpponentKind == domain.KindReal {
		key := inboundKey(m.OpponentFID)
		if err := r.kv.SAdd(ctx, key, m.ID); err != nil {
			return storeErr(err)
		}
		if r.ttl > 0 {
			return storeErr(r.kv.Expire(ctx, key, r.ttl))
		}
	}
	return nil
}

// All returns every live match and drops expired ids from the index.
func (r *MatchRepository) All(ctx context.Context) ([]*domain.Match, error) {
	return r.members(ctx, keyMatchIDs)
}

// Inbound returns the REAL matches in which fid is the opponent.
func (r *MatchRepository) Inbound(ctx context.Context, fid int64) ([]*domain.Match, error) {
	return r.members(ctx, inboundKey(fid))
}

func (r *MatchRepository) members(ctx context.Context, setKey string) ([]*domain.Match, error) {
	ids, err := r.kv.SMembers(ctx, setKey)
	if err != nil {
		return nil, storeErr(err)
	}
	found, err := r.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	var stale []string
	res := make([]*domain.Match, 0, len(found))
	for _, id := range ids {
		if m, ok := found[id]; ok {
			res = append(res, m)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := r.kv.SRem(ctx, setKey, stale...); err != nil {
			logger.Warn("failed to prune match index", "key", setKey, "error", err)
		}
	}
	return res, nil
}

func (r *MatchRepository) deleteAll(ctx context.Context, fids []int64) error {
	ids, err := r.kv.SMembers(ctx, keyMatchIDs)
	if err != nil {
		return storeErr(err)
	}
	keys := make([]string, 0, len(ids)+len(fids)+1)
	for _, id := range ids {
		keys = append(keys, matchKey(id))
	}
	for _, fid := range fids {
		keys = append(keys, inboundKey(fid))
	}
	keys = append(keys, keyMatchIDs)
	return storeErr(r.kv.Del(ctx, keys...))
}
