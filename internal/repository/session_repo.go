package repository

import (
	"context"
	"fmt"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/kv"
)

type SessionRepository struct {
	c hashCollection[sessionRecord]
}

func NewSessionRepository(store kv.Store, ttl time.Duration) *SessionRepository {
	return &SessionRepository{c: hashCollection[sessionRecord]{
		kv:   store,
		key:  keySessions,
		name: "session",
		ttl:  ttl,
		validate: func(field string, rec *sessionRecord) error {
			if fidField(rec.FID) != field {
				return fmt.Errorf("fid %d stored under %q", rec.FID, field)
			}
			_, err := decodeSession(rec)
			return err
		},
	}}
}

// Get returns nil, nil when fid has no session yet.
func (r *SessionRepository) Get(ctx context.Context, fid int64) (*domain.PlayerSession, error) {
	rec, err := r.c.get(ctx, fidField(fid))
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeSession(rec)
}

func (r *SessionRepository) All(ctx context.Context) ([]*domain.PlayerSession, error) {
	recs, err := r.c.all(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*domain.PlayerSession, 0, len(recs))
	for _, rec := range recs {
		s, err := decodeSession(rec)
		if err != nil {
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

func (r *SessionRepository) Save(ctx context.Context, s *domain.PlayerSession) error {
	rec := encodeSession(s)
	return r.c.put(ctx, fidField(s.FID), &rec)
}
