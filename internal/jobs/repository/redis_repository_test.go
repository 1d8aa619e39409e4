package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/go-redis/redis/v8"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLockerExclusive(t *testing.T) {
	mr, client := newMiniRedis(t)
	locker := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job-1")
	if err != nil || !ok || token == "" {
		t.Fatalf("first TryLock = %q %v %v", token, ok, err)
	}
	if _, ok, err = locker.TryLock(ctx, "job-1"); err != nil || ok {
		t.Fatalf("second TryLock = %v %v, want held", ok, err)
	}
	if _, ok, err = locker.TryLock(ctx, "job-2"); err != nil || !ok {
		t.Fatalf("other job TryLock = %v %v", ok, err)
	}
	if got, _ := mr.Get(lockKeyPrefix + "job-1"); got != token {
		t.Fatalf("stored token = %q, want %q", got, token)
	}
	if ttl := mr.TTL(lockKeyPrefix + "job-1"); ttl != time.Minute {
		t.Fatalf("ttl = %s", ttl)
	}
}

func TestRedisLockerExtend(t *testing.T) {
	mr, client := newMiniRedis(t)
	locker := NewRedisLocker(client, 10*time.Second)
	ctx := context.Background()

	token, _, err := locker.TryLock(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(8 * time.Second)
	if err = locker.Extend(ctx, "job-1", token); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if ttl := mr.TTL(lockKeyPrefix + "job-1"); ttl != 10*time.Second {
		t.Fatalf("ttl after extend = %s", ttl)
	}

	mr.FastForward(11 * time.Second)
	if err = locker.Extend(ctx, "job-1", token); !errors.Is(err, jobs.ErrLockLost) {
		t.Fatalf("Extend after expiry = %v, want ErrLockLost", err)
	}

	other, ok, err := locker.TryLock(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("TryLock after expiry = %v %v", ok, err)
	}
	if err = locker.Extend(ctx, "job-1", token); !errors.Is(err, jobs.ErrLockLost) {
		t.Fatalf("Extend with stale token = %v, want ErrLockLost", err)
	}
	if err = locker.Extend(ctx, "job-1", other); err != nil {
		t.Fatalf("Extend by new holder: %v", err)
	}
}

func TestRedisLockerForeignTokenCannotUnlock(t *testing.T) {
	mr, client := newMiniRedis(t)
	locker := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	token, _, err := locker.TryLock(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err = locker.Unlock(ctx, "job-1", "not-the-owner"); err != nil {
		t.Fatalf("Unlock with foreign token: %v", err)
	}
	if !mr.Exists(lockKeyPrefix + "job-1") {
		t.Fatal("foreign token released the lock")
	}
	if _, ok, _ := locker.TryLock(ctx, "job-1"); ok {
		t.Fatal("lock acquired while still held")
	}

	if err = locker.Unlock(ctx, "job-1", token); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if mr.Exists(lockKeyPrefix + "job-1") {
		t.Fatal("owner did not release the lock")
	}
	if _, ok, _ := locker.TryLock(ctx, "job-1"); !ok {
		t.Fatal("lock not available after release")
	}
}

func TestRedisQueueFIFOAndRequeue(t *testing.T) {
	mr, client := newMiniRedis(t)
	q := NewRedisQueue(client, "transcript_jobs")
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range []string{"a", "b"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue %s: %v", id, err)
		}
	}

	d, err := q.Dequeue(ctx)
	if err != nil || d.JobID != "a" {
		t.Fatalf("Dequeue = %+v %v, want a", d, err)
	}
	if err = d.Nack(true); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if list, _ := mr.List("transcript_jobs"); len(list) != 2 {
		t.Fatalf("queue after requeue = %v", list)
	}

	d, err = q.Dequeue(ctx)
	if err != nil || d.JobID != "b" {
		t.Fatalf("Dequeue = %+v %v, want b", d, err)
	}
	if err = d.Ack(); err != nil {
		t.Fatal(err)
	}
	d, err = q.Dequeue(ctx)
	if err != nil || d.JobID != "a" {
		t.Fatalf("requeued delivery = %+v %v, want a", d, err)
	}
	if err = d.Nack(false); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("transcript_jobs") {
		t.Fatal("Nack without requeue put the job back")
	}
}

func TestRedisQueueDequeueHonoursContext(t *testing.T) {
	_, client := newMiniRedis(t)
	q := &redisQueue{redisClient: client, key: "transcript_jobs", pollTimeout: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dequeue = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("Dequeue ignored the context deadline")
	}
}
