package repository

import (
	"context"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const lockKeyPrefix = "lock:job:"

// Compare-and-delete so a holder never releases a lock it no longer owns.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var ErrLockLost = jobs.ErrLockLost

type redisLocker struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisLocker(redisClient *redis.Client, ttl time.Duration) jobs.Locker {
	return &redisLocker{redisClient: redisClient, ttl: ttl}
}

func (l *redisLocker) TryLock(ctx context.Context, jobID string) (string, bool, error) {
	token := uuid.NewString()
	locked, err := l.redisClient.SetNX(ctx, lockKeyPrefix+jobID, token, l.ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "redisLocker.TryLock.SetNX")
	}
	if !locked {
		return "", false, nil
	}
	return token, true, nil
}

func (l *redisLocker) Extend(ctx context.Context, jobID, token string) error {
	n, err := extendScript.Run(ctx, l.redisClient, []string{lockKeyPrefix + jobID}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return errors.Wrap(err, "redisLocker.Extend")
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLocker) Unlock(ctx context.Context, jobID, token string) error {
	if err := unlockScript.Run(ctx, l.redisClient, []string{lockKeyPrefix + jobID}, token).Err(); err != nil {
		return errors.Wrap(err, "redisLocker.Unlock")
	}
	return nil
}

// redisQueue is a list based dispatch queue: LPUSH to enqueue, BRPOP to take.
// A job taken by a crashed worker is recovered by the startup scan of
// unfinished jobs, so deliveries need no server side acknowledgement.
type redisQueue struct {
	redisClient *redis.Client
	key         string
	pollTimeout time.Duration
}

func NewRedisQueue(redisClient *redis.Client, key string) jobs.Queue {
	return &redisQueue{
		redisClient: redisClient,
		key:         key,
		pollTimeout: 5 * time.Second,
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.redisClient.LPush(ctx, q.key, jobID).Err(); err != nil {
		return errors.Wrap(err, "redisQueue.Enqueue.LPush")
	}
	return nil
}

func (q *redisQueue) Dequeue(ctx context.Context) (*jobs.Delivery, error) {
	for {
		res, err := q.redisClient.BRPop(ctx, q.pollTimeout, q.key).Result()
		if err == redis.Nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(err, "redisQueue.Dequeue.BRPop")
		}
		jobID := res[1]
		return jobs.NewDelivery(jobID, nil, func(requeue bool) error {
			if !requeue {
				return nil
			}
			return q.Enqueue(context.Background(), jobID)
		}), nil
	}
}

func (q *redisQueue) Close() error {
	return nil
}
