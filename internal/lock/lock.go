// Package lock guards content aggregates with a single writer at a time, so
// the delete-then-recreate taxonomy and relation sync of two overlapping saves
// cannot interleave.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("content is being saved by another request")

// Locker hands out exclusive, expiring leases keyed by aggregate.
type Locker interface {
	Acquire(ctx context.Context, key string) (*Lease, error)
}

// Lease is held until Release or until its TTL runs out.
type Lease struct {
	Key     string
	token   string
	release func(ctx context.Context, key, token string) error
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	return l.release(ctx, l.Key, l.token)
}

// Noop grants every lease; used when locking is disabled.
type Noop struct{}

func (Noop) Acquire(_ context.Context, key string) (*Lease, error) {
	return &Lease{Key: key}, nil
}

// MemoryLocker is a process-local locker for single instance deployments
// and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	ttl  time.Duration
	held map[string]memoryLease
	now  func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{ttl: ttl, held: make(map[string]memoryLease), now: time.Now}
}

func (m *MemoryLocker) Acquire(_ context.Context, key string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	m.held[key] = memoryLease{token: token, expires: now.Add(m.ttl)}
	return &Lease{Key: key, token: token, release: m.release}, nil
}

func (m *MemoryLocker) release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.held[key]; ok && cur.token == token {
		delete(m.held, key)
	}
	return nil
}

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares leases between instances through SET NX with a TTL.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-based locker. Prefix may be empty.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lease{Key: key, token: token, release: r.release}, nil
}

func (r *RedisLocker) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err()
}
