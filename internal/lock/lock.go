// Package lock serializes job runs across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appconfig "activeoi/config"
	"activeoi/logger"
)

// ErrNotAcquired is returned when another run holds the lock.
var ErrNotAcquired = errors.New("run lock held by another process")

// Release gives the lock back.
type Release func(ctx context.Context) error

// Locker takes the run lock.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// Nop always succeeds. It is used when no lock backend is configured.
type Nop struct{}

func (Nop) Acquire(context.Context) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only while it still holds our token, so a run
// that outlived its TTL cannot drop a lock taken by the next run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a single-key lock: SET NX with a TTL and a token-checked release.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *logger.Log
}

// NewRedis connects to the configured Redis and verifies it with a PING.
func NewRedis(ctx context.Context, cfg appconfig.RedisLockConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisWithClient(client, cfg.Key, cfg.TTL), nil
}

// NewRedisWithClient builds a lock on an existing client.
func NewRedisWithClient(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl, log: logger.GetLogger()}
}

// Acquire takes the lock or returns ErrNotAcquired.
func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	log := r.log.WithComponent("run_lock").WithFields(logger.Fields{"key": r.key, "ttl": r.ttl.String()})
	log.Debug("run lock acquired")

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
		if n == 0 {
			log.Warn("run lock expired before release")
			return nil
		}
		log.Debug("run lock released")
		return nil
	}, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
