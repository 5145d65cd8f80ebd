// Copyright (c) 2025 @AmarnathCJD

package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// moves every delayed job whose time has come onto the ready list
var migrateScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, raw in ipairs(due) do
	redis.call("RPUSH", KEYS[2], raw)
end
if #due > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
end
return #due
`)

// Redis stores each lane as a LIST ({prefix}queues:{lane}) plus a ZSET of
// delayed jobs scored by their ready time in milliseconds.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Queue = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) listKey(lane string) string    { return r.prefix + "queues:" + lane }
func (r *Redis) delayedKey(lane string) string { return r.prefix + "queues:" + lane + ":delayed" }

func (r *Redis) Push(ctx context.Context, lane string, job *Job, delay time.Duration) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return errors.Wrapf(r.client.RPush(ctx, r.listKey(lane), raw).Err(), "pushing job to %s", lane)
	}
	readyAt := time.Now().Add(delay).UnixMilli()
	err = r.client.ZAdd(ctx, r.delayedKey(lane), redis.Z{Score: float64(readyAt), Member: raw}).Err()
	return errors.Wrapf(err, "scheduling job on %s", lane)
}

func (r *Redis) Pop(ctx context.Context, timeout time.Duration, lanes ...string) (*Job, string, error) {
	if err := r.migrate(ctx, lanes); err != nil {
		return nil, "", err
	}

	keys := make([]string, len(lanes))
	byKey := make(map[string]string, len(lanes))
	for i, lane := range lanes {
		keys[i] = r.listKey(lane)
		byKey[keys[i]] = lane
	}

	if timeout < time.Second {
		// BLPOP timeouts have second granularity on older servers
		timeout = time.Second
	}
	res, err := r.client.BLPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrEmpty
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "popping job")
	}

	job, err := decode([]byte(res[1]))
	return job, byKey[res[0]], err
}

func (r *Redis) migrate(ctx context.Context, lanes []string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, lane := range lanes {
		err := migrateScript.Run(ctx, r.client, []string{r.delayedKey(lane), r.listKey(lane)}, now).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return errors.Wrapf(err, "migrating delayed jobs on %s", lane)
		}
	}
	return nil
}

func (r *Redis) Len(ctx context.Context, lane string) (int, error) {
	ready, err := r.client.LLen(ctx, r.listKey(lane)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s", lane)
	}
	delayed, err := r.client.ZCard(ctx, r.delayedKey(lane)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "counting delayed %s", lane)
	}
	return int(ready + delayed), nil
}
