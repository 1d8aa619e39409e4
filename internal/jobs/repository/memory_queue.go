package repository

import (
	"context"
	"sync"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrQueueClosed = jobs.ErrQueueClosed
	errQueueFull   = errors.New("queue full")
)

type memoryQueue struct {
	ch     chan string
	once   sync.Once
	closed chan struct{}
}

func NewMemoryQueue(size int) jobs.Queue {
	if size <= 0 {
		size = 1024
	}
	return &memoryQueue{
		ch:     make(chan string, size),
		closed: make(chan struct{}),
	}
}

func (q *memoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- jobID:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (*jobs.Delivery, error) {
	select {
	case jobID := <-q.ch:
		return jobs.NewDelivery(jobID, nil, func(requeue bool) error {
			if !requeue {
				return nil
			}
			return q.requeue(jobID)
		}), nil
	case <-q.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// requeue never blocks. When the queue is closed or full the id is dropped
// and the unfinished job is picked up again by the startup recovery scan.
func (q *memoryQueue) requeue(jobID string) error {
	select {
	case <-q.closed:
		return errors.Wrapf(ErrQueueClosed, "requeue %s dropped", jobID)
	default:
	}
	select {
	case q.ch <- jobID:
		return nil
	default:
		return errors.Wrapf(errQueueFull, "requeue %s dropped", jobID)
	}
}

func (q *memoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewMemoryLocker guards jobs within a single process.
func NewMemoryLocker() jobs.Locker {
	return &memoryLocker{held: make(map[string]string)}
}

func (l *memoryLocker) TryLock(ctx context.Context, jobID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[jobID]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[jobID] = token
	return token, true, nil
}

func (l *memoryLocker) Extend(ctx context.Context, jobID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[jobID] != token {
		return ErrLockLost
	}
	return nil
}

func (l *memoryLocker) Unlock(ctx context.Context, jobID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[jobID] == token {
		delete(l.held, jobID)
	}
	return nil
}
