package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNil is returned when a key or field does not exist.
	ErrNil = errors.New("kv: nil")
	// ErrUnavailable wraps transport and server failures.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the shared key-value store every instance talks to.
// A zero ttl means the key does not expire. In CompareAndSwap an empty old
// value stands for "key is absent".
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Incr adds one to key. A positive ttl is set in the same step when the
	// key has no expiry yet.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CompareAndSwap(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
