// Copyright (c) 2025 @AmarnathCJD

package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releases the lock only if it still carries our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Store and Locker backed by a Redis server; every process
// sharing the server shares windows, pointers and locks.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var (
	_ Store  = (*Redis)(nil)
	_ Locker = (*Redis)(nil)
)

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// NewRedisFromURL parses a redis:// URL and connects lazily.
func NewRedisFromURL(url, password, prefix string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	if password != "" {
		opt.Password = password
	}
	return NewRedis(redis.NewClient(opt), prefix), nil
}

func (r *Redis) Client() redis.UniversalClient { return r.client }

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return b, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return errors.Wrapf(r.client.Set(ctx, r.key(key), value, ttl).Err(), "redis set %s", key)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(r.client.Del(ctx, r.key(key)).Err(), "redis del %s", key)
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(key)).Result()
	return n, errors.Wrapf(err, "redis incr %s", key)
}

func (r *Redis) Lock(ctx context.Context, key string, hold, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	full := r.key(key)
	deadline := time.Now().Add(wait)

	for {
		ok, err := r.client.SetNX(ctx, full, token, hold).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "redis lock %s", key)
		}
		if ok {
			return func() {
				// a fresh context: the caller's may already be cancelled
				_ = unlockScript.Run(context.Background(), r.client, []string{full}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for lock "+key)
		case <-time.After(25 * time.Millisecond):
		}
	}
}
