// Package lock provides named mutual exclusion across server processes.
//
// Two implementations are available. PGLocker takes a transaction-scoped
// postgres advisory lock and must be used inside db.Transactor.WithTx.
// RedisLocker holds a SET NX key with a TTL and a random owner token.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicsched/clinic/internal/platform/db"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another process")

// Release gives the lock back. It is safe to call after the lock expired.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

// PGLocker uses pg_try_advisory_xact_lock on the transaction carried by ctx.
// The lock is released when that transaction ends, so Release is a no-op.
type PGLocker struct{}

func (PGLocker) Acquire(ctx context.Context, name string) (Release, error) {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return nil, errors.New("pg advisory lock requires a transaction in context")
	}
	var ok bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		return nil, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisLocker builds a locker whose keys expire after ttl, bounding how
// long a crashed holder can block others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, prefix: "clinic:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	key := l.prefix + name
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", name, err)
	}
	if !acquired {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release redis lock %s: %w", name, err)
		}
		return nil
	}, nil
}
