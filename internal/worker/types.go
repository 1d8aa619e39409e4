package worker

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/executor"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/cenkalti/backoff/v4"
)

// ErrAlreadyInFlight is returned by Run when another pass holds the job.
var ErrAlreadyInFlight = errors.New("job is already being processed")

// errCancelRequested is the cause attached to a run context when the caller
// asked for the job to be cancelled while a stage was running.
var errCancelRequested = errors.New(models.CancelledDetail)

// Executors bundles the stage executors a job passes through.
type Executors struct {
	Downloader  executor.Downloader
	Transcriber executor.Transcriber
	Formatter   executor.Formatter
}

// RetryPolicy is bounded exponential backoff for transient stage failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewRetryPolicy(cfg config.WorkerConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// NewBackOff returns the delays between attempts of one stage: BaseDelay
// doubled per failed attempt, capped at MaxDelay, and backoff.Stop once
// MaxAttempts calls have been made.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
