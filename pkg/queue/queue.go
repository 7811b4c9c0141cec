// Package queue provides a Redis-backed work queue and named locks shared by
// every worker process. Messages are opaque byte payloads; callers own the
// encoding.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/lexis/pkg/lifecycle"
)

var (
	// ErrEmpty indicates no message arrived before the pop timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrLockHeld indicates another holder owns the named lock.
	ErrLockHeld = errors.New("lock held")
)

const lockPrefix = "lexis:lock:"

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// System is a FIFO queue of byte messages with cross-process locks.
type System interface {
	// Start registers a connectivity check and connection shutdown with the coordinator.
	Start(lc *lifecycle.Coordinator) error
	// Push appends a message to the tail of the queue.
	Push(ctx context.Context, msg []byte) error
	// Pop blocks until a message is available or the pop timeout elapses,
	// in which case ErrEmpty is returned.
	Pop(ctx context.Context) ([]byte, error)
	// Ping checks the Redis connection.
	Ping(ctx context.Context) error
	// Depth returns the number of queued messages.
	Depth(ctx context.Context) (int64, error)
	// Acquire takes the named lock for ttl under token. An empty token is
	// replaced with a random one. Returns ErrLockHeld when another holder
	// owns it.
	Acquire(ctx context.Context, name, token string, ttl time.Duration) (Lock, error)
	// Held returns a handle to a lock acquired elsewhere with token, so a
	// different process can release it.
	Held(name, token string) Lock
}

// Lock is a held named lock.
type Lock interface {
	// Token identifies the holder.
	Token() string
	// Release frees the lock if it is still held by this holder.
	Release(ctx context.Context) error
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLock) Token() string { return l.token }

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

type redisQueue struct {
	rdb        *redis.Client
	key        string
	popTimeout time.Duration
	logger     *slog.Logger
}

// New creates a Redis queue. No connection is made until Start or first use.
func New(cfg *Config, logger *slog.Logger) System {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeoutDuration(),
	})

	return &redisQueue{
		rdb:        rdb,
		key:        cfg.Key,
		popTimeout: cfg.PopTimeoutDuration(),
		logger:     logger.With("system", "queue"),
	}
}

func (q *redisQueue) Start(lc *lifecycle.Coordinator) error {
	q.logger.Info("starting queue", "key", q.key)

	lc.OnStartup("queue", func() error {
		if err := q.Ping(lc.Context()); err != nil {
			q.logger.Error("redis ping failed", "error", err)
			return err
		}
		q.logger.Info("queue connection established")
		return nil
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := q.rdb.Close(); err != nil {
			q.logger.Error("redis close failed", "error", err)
			return
		}
		q.logger.Info("queue connection closed")
	})

	return nil
}

func (q *redisQueue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (q *redisQueue) Push(ctx context.Context, msg []byte) error {
	if err := q.rdb.LPush(ctx, q.key, msg).Err(); err != nil {
		return fmt.Errorf("push %s: %w", q.key, err)
	}
	return nil
}

func (q *redisQueue) Pop(ctx context.Context) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, q.popTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("pop %s: %w", q.key, err)
	}

	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("pop %s: unexpected reply length %d", q.key, len(res))
	}
	return []byte(res[1]), nil
}

func (q *redisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("depth %s: %w", q.key, err)
	}
	return n, nil
}

func (q *redisQueue) Acquire(ctx context.Context, name, token string, ttl time.Duration) (Lock, error) {
	key := lockPrefix + name
	if token == "" {
		token = uuid.NewString()
	}

	ok, err := q.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, name)
	}

	return &redisLock{rdb: q.rdb, key: key, token: token}, nil
}

func (q *redisQueue) Held(name, token string) Lock {
	return &redisLock{rdb: q.rdb, key: lockPrefix + name, token: token}
}
