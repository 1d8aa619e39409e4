package jobs

import (
	"context"
)

// Locker guards a job against concurrent orchestration passes.
type Locker interface {
	// TryLock returns ok=false without error when another holder owns the lock.
	TryLock(ctx context.Context, jobID string) (token string, ok bool, err error)
	// Extend pushes the expiry of a held lock forward.
	Extend(ctx context.Context, jobID, token string) error
	// Unlock releases the lock only if token still owns it.
	Unlock(ctx context.Context, jobID, token string) error
}

// Queue dispatches job ids from the gateway to the workers.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue blocks until a job id is available or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)
	Close() error
}

type Delivery struct {
	JobID string
	ack   func() error
	nack  func(requeue bool) error
}

func NewDelivery(jobID string, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{JobID: jobID, ack: ack, nack: nack}
}

func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}
