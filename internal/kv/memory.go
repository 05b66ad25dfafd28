package kv

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type item struct {
	value     string
	hash      map[string]string
	set       map[string]struct{}
	expiresAt time.Time
}

func (it *item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// MemoryStore implements Store in process memory. It is used for single
// instance deployments and in tests; all instances sharing one MemoryStore
// value behave like instances sharing one Redis.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*item
	now   func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*item),
		now:   time.Now,
	}
}

// SetClock replaces the clock used for expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// lookup returns a live item, dropping it if it has expired. Caller holds mu.
func (m *MemoryStore) lookup(key string) *item {
	it, ok := m.items[key]
	if !ok {
		return nil
	}
	if it.expired(m.now()) {
		delete(m.items, key)
		return nil
	}
	return it
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func wrongType(key string) error {
	return fmt.Errorf("kv: wrong type for key %s", key)
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.lookup(key)
	if it == nil {
		return "", ErrNil
	}
	if it.hash != nil || it.set != nil {
		return "", wrongType(key)
	}
	return it.value, nil
}

func (m *MemoryStore) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make(map[string]string, len(keys))
	for _, k := range keys {
		if it := m.lookup(k); it != nil && it.hash == nil && it.set == nil {
			res[k] = it.value
		}
	}
	return res, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = &item{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookup(key) != nil {
		return false, nil
	}
	m.items[key] = &item{value: value, expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it := m.lookup(key); it != nil {
		it.expiresAt = m.deadline(ttl)
	}
	return nil
}

func (m *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.lookup(key)
	if it == nil {
		m.items[key] = &item{value: "1", expiresAt: m.deadline(ttl)}
		return 1, nil
	}
	if it.expiresAt.IsZero() {
		it.expiresAt = m.deadline(ttl)
	}
	n, err := strconv.ParseInt(it.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("kv: value at %s is not an integer", key)
	}
	n++
	it.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, key, old, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := ""
	if it := m.lookup(key); it != nil {
		cur = it.value
	}
	if cur != old {
		return false, nil
	}
	m.items[key] = &item{value: value, expiresAt: m.deadline(ttl)}
	return true, nil
}

func (m *MemoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.lookup(key)
	if it == nil || it.value != value {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

// hashFor returns the hash at key, creating it when create is set. Caller holds mu.
func (m *MemoryStore) hashFor(key string, create bool) (*item, error) {
	it := m.lookup(key)
	if it == nil {
		if !create {
			return nil, nil
		}
		it = &item{hash: make(map[string]string)}
		m.items[key] = it
	}
	if it.hash == nil {
		return nil, wrongType(key)
	}
	return it, nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.hashFor(key, false)
	if err != nil {
		return "", err
	}
	if it == nil {
		return "", ErrNil
	}
	v, ok := it.hash[field]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (m *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.hashFor(key, true)
	if err != nil {
		return err
	}
	it.hash[field] = value
	return nil
}

func (m *MemoryStore) HSetNX(_ context.Context, key, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.hashFor(key, true)
	if err != nil {
		return false, err
	}
	if _, ok := it.hash[field]; ok {
		return false, nil
	}
	it.hash[field] = value
	return true, nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.hashFor(key, false)
	if err != nil {
		return nil, err
	}
	res := make(map[string]string)
	if it != nil {
		for f, v := range it.hash {
			res[f] = v
		}
	}
	return res, nil
}

func (m *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.hashFor(key, false)
	if err != nil || it == nil {
		return err
	}
	for _, f := range fields {
		delete(it.hash, f)
	}
	if len(it.hash) == 0 {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStore) HLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.hashFor(key, false)
	if err != nil || it == nil {
		return 0, err
	}
	return int64(len(it.hash)), nil
}

func (m *MemoryStore) setFor(key string, create bool) (*item, error) {
	it := m.lookup(key)
	if it == nil {
		if !create {
			return nil, nil
		}
		it = &item{set: make(map[string]struct{})}
		m.items[key] = it
	}
	if it.set == nil {
		return nil, wrongType(key)
	}
	return it, nil
}

func (m *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.setFor(key, true)
	if err != nil {
		return err
	}
	for _, mem := range members {
		it.set[mem] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.setFor(key, false)
	if err != nil || it == nil {
		return err
	}
	for _, mem := range members {
		delete(it.set, mem)
	}
	if len(it.set) == 0 {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.setFor(key, false)
	if err != nil {
		return nil, err
	}
	var res []string
	if it != nil {
		for mem := range it.set {
			res = append(res, mem)
		}
	}
	return res, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
