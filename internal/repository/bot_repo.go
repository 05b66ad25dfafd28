package repository

import (
	"context"
	"fmt"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"
)

type BotRepository struct {
	c hashCollection[domain.Bot]
}

func NewBotRepository(store kv.Store, ttl time.Duration) *BotRepository {
	return &BotRepository{c: hashCollection[domain.Bot]{
		kv:   store,
		key:  keyBots,
		name: "bot",
		ttl:  ttl,
		validate: func(field string, b *domain.Bot) error {
			if fidField(b.FID) != field {
				return fmt.Errorf("fid %d stored under %q", b.FID, field)
			}
			return nil
		},
	}}
}

func (r *BotRepository) Get(ctx context.Context, fid int64) (*domain.Bot, error) {
	return r.c.get(ctx, fidField(fid))
}

func (r *BotRepository) All(ctx context.Context) ([]*domain.Bot, error) {
	return r.c.all(ctx)
}

// Create stores b unless a bot for the same fid exists.
func (r *BotRepository) Create(ctx context.Context, b *domain.Bot) (bool, error) {
	return r.c.putNX(ctx, fidField(b.FID), b)
}

func (r *BotRepository) Save(ctx context.Context, b *domain.Bot) error {
	return r.c.put(ctx, fidField(b.FID), b)
}

func (r *BotRepository) Count(ctx context.Context) (int, error) {
	return r.c.count(ctx)
}
