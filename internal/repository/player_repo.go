package repository

import (
	"context"
	"fmt"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"
)

type PlayerRepository struct {
	c hashCollection[domain.Player]
}

func NewPlayerRepository(store kv.Store, ttl time.Duration) *PlayerRepository {
	return &PlayerRepository{c: hashCollection[domain.Player]{
		kv:   store,
		key:  keyPlayers,
		name: "player",
		ttl:  ttl,
		validate: func(field string, p *domain.Player) error {
			if fidField(p.FID) != field {
				return fmt.Errorf("fid %d stored under %q", p.FID, field)
			}
			return nil
		},
	}}
}

// Get returns nil, nil when fid is not registered.
func (r *PlayerRepository) Get(ctx context.Context, fid int64) (*domain.Player, error) {
	return r.c.get(ctx, fidField(fid))
}

func (r *PlayerRepository) All(ctx context.Context) ([]*domain.Player, error) {
	return r.c.all(ctx)
}

// Create stores p unless a player with the same fid exists. It reports
// whether p was written.
func (r *PlayerRepository) Create(ctx context.Context, p *domain.Player) (bool, error) {
	return r.c.putNX(ctx, fidField(p.FID), p)
}

func (r *PlayerRepository) Save(ctx context.Context, p *domain.Player) error {
	return r.c.put(ctx, fidField(p.FID), p)
}

func (r *PlayerRepository) Count(ctx context.Context) (int, error) {
	return r.c.count(ctx)
}
