package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "email:schedule"

// RedisQueue implements DelayQueue on a redis sorted set. The member is the
// job id and the score is the due time in unix milliseconds, so ZADD is the
// idempotent upsert and ZREM's return value decides which puller claimed an
// entry when several poll at once. The sorted set survives process restarts.
type RedisQueue struct {
	rdb          *redis.Client
	key          string
	pollInterval time.Duration
}

func NewRedisQueue(rdb *redis.Client, pollInterval time.Duration) *RedisQueue {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	return &RedisQueue{
		rdb:          rdb,
		key:          defaultKey,
		pollInterval: pollInterval,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, due time.Time) error {
	return q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: jobID,
	}).Err()
}

func (q *RedisQueue) Pull(ctx context.Context) (string, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		id, err := q.tryClaim(ctx)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// tryClaim returns one due job id, or "" when nothing is due. The read and
// the removal are separate commands, so a concurrent puller may race for the
// same member; ZREM returning 0 means this caller lost and retries.
func (q *RedisQueue) tryClaim(ctx context.Context) (string, error) {
	for {
		dueNow := strconv.FormatInt(time.Now().UnixMilli(), 10)

		ids, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    dueNow,
			Offset: 0,
			Count:  1,
		}).Result()
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "", nil
		}

		removed, err := q.rdb.ZRem(ctx, q.key, ids[0]).Result()
		if err != nil {
			return "", err
		}
		if removed == 1 {
			return ids[0], nil
		}
	}
}

func (q *RedisQueue) Remove(ctx context.Context, jobID string) (bool, error) {
	removed, err := q.rdb.ZRem(ctx, q.key, jobID).Result()
	return removed == 1, err
}

func (q *RedisQueue) Contains(ctx context.Context, jobID string) (bool, error) {
	_, err := q.rdb.ZScore(ctx, q.key, jobID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
