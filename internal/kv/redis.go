package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then cur = '' end
if cur ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if tonumber(ARGV[1]) > 0 and redis.call('PTTL', KEYS[1]) == -1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

var cadScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	rdb       *redis.Client
	opTimeout time.Duration
}

// NewRedisStore wraps an existing client. Every call is bounded by opTimeout
// on top of the client's own dial/read/write timeouts.
func NewRedisStore(rdb *redis.Client, opTimeout time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, opTimeout: opTimeout}
}

// Client exposes the underlying client for pub/sub and rate limiting.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func (s *RedisStore) op(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	v, err := s.rdb.Get(ctx, key).Result()
	return v, wrap(err)
}

func (s *RedisStore) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	res := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return res, nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap(err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			res[keys[i]] = str
		}
	}
	return res, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, wrap(err)
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.Del(ctx, keys...).Err())
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	n, err := incrScript.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Int64()
	return n, wrap(err)
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	n, err := casScript.Run(ctx, s.rdb, []string{key}, old, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, wrap(err)
	}
	return n == 1, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	n, err := cadScript.Run(ctx, s.rdb, []string{key}, value).Int()
	if err != nil {
		return false, wrap(err)
	}
	return n == 1, nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	v, err := s.rdb.HGet(ctx, key, field).Result()
	return v, wrap(err)
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.HSet(ctx, key, field, value).Err())
}

func (s *RedisStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	ok, err := s.rdb.HSetNX(ctx, key, field, value).Result()
	return ok, wrap(err)
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.rdb.HGetAll(ctx, key).Result()
	return m, wrap(err)
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.HDel(ctx, key, fields...).Err())
}

func (s *RedisStore) HLen(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	n, err := s.rdb.HLen(ctx, key).Result()
	return n, wrap(err)
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.SAdd(ctx, key, toArgs(members)...).Err())
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.SRem(ctx, key, toArgs(members)...).Err())
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	m, err := s.rdb.SMembers(ctx, key).Result()
	return m, wrap(err)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return wrap(s.rdb.Ping(ctx).Err())
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
