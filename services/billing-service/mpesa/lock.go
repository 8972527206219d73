package mpesa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("a payment request for this invoice is already in progress")

// Locker serialises STK push requests per invoice.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// STKLockKey is the lock held while a prompt for the invoice is being sent.
func STKLockKey(invoiceID string) string {
	return "mpesa:stk:" + invoiceID
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// LocalLocker only guards a single process; it is the fallback without Redis.
// Each acquisition gets its own token so a release after expiry cannot drop
// a lock that another caller has since obtained.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localLock
	now  func() time.Time
}

type localLock struct {
	token string
	until time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]localLock{}, now: time.Now}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.until) {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	l.held[key] = localLock{token: token, until: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
