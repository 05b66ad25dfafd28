package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"detective_game/internal/kv"
	"detective_game/internal/logger"
)

// hashCollection stores one JSON record per field of a hash. The hash TTL is
// refreshed on every write.
type hashCollection[T any] struct {
	kv       kv.Store
	key      string
	name     string
	ttl      time.Duration
	validate func(field string, v *T) error
}

func (h *hashCollection[T]) decode(field, raw string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	if h.validate != nil {
		if err := h.validate(field, &v); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// get returns nil when the record is absent or corrupt.
func (h *hashCollection[T]) get(ctx context.Context, field string) (*T, error) {
	raw, err := h.kv.HGet(ctx, h.key, field)
	if errors.Is(err, kv.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	v, err := h.decode(field, raw)
	if err != nil {
		logger.Warn("skipping corrupt record", "collection", h.name, "field", field, "error", err)
		return nil, nil
	}
	return v, nil
}

func (h *hashCollection[T]) all(ctx context.Context) ([]*T, error) {
	m, err := h.kv.HGetAll(ctx, h.key)
	if err != nil {
		return nil, storeErr(err)
	}
	res := make([]*T, 0, len(m))
	for field, raw := range m {
		v, err := h.decode(field, raw)
		if err != nil {
			logger.Warn("skipping corrupt record", "collection", h.name, "field", field, "error", err)
			continue
		}
		res = append(res, v)
	}
	return res, nil
}

func (h *hashCollection[T]) put(ctx context.Context, field string, v *T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", h.name, err)
	}
	if err := h.kv.HSet(ctx, h.key, field, string(raw)); err != nil {
		return storeErr(err)
	}
	return h.touch(ctx)
}

func (h *hashCollection[T]) putNX(ctx context.Context, field string, v *T) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", h.name, err)
	}
	ok, err := h.kv.HSetNX(ctx, h.key, field, string(raw))
	if err != nil {
		return false, storeErr(err)
	}
	if ok {
		return true, h.touch(ctx)
	}
	return false, nil
}

func (h *hashCollection[T]) count(ctx context.Context) (int, error) {
	n, err := h.kv.HLen(ctx, h.key)
	if err != nil {
		return 0, storeErr(err)
	}
	return int(n), nil
}

func (h *hashCollection[T]) touch(ctx context.Context) error {
	if h.ttl <= 0 {
		return nil
	}
	return storeErr(h.kv.Expire(ctx, h.key, h.ttl))
}
