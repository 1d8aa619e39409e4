package worker

import (
	"context"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/pkg/errors"
)

func (w *Worker) handle(ctx context.Context, d *jobs.Delivery) {
	err := w.orch.Run(ctx, d.JobID)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyInFlight), errors.Is(err, jobs.ErrLockLost):
		w.ack(d)
	case errors.Is(err, jobs.ErrNotFound):
		w.logger.Warnf("job %s no longer exists, dropping", d.JobID)
		w.ack(d)
	case ctx.Err() != nil:
		if nerr := d.Nack(true); nerr != nil {
			w.logger.Errorf("Worker.handle - requeue %s error: %v", d.JobID, nerr)
		}
	default:
		w.logger.Errorf("Worker.handle - job %s error: %v", d.JobID, err)
		if nerr := d.Nack(false); nerr != nil {
			w.logger.Errorf("Worker.handle - nack %s error: %v", d.JobID, nerr)
		}
	}
}

func (w *Worker) ack(d *jobs.Delivery) {
	if err := d.Ack(); err != nil {
		w.logger.Errorf("Worker.handle - ack %s error: %v", d.JobID, err)
	}
}

// Recover re-enqueues every job that is not done or failed, so work lost in
// a crash is picked up again. Orchestration resumes from the stored stage.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	unfinished, err := w.repo.ListUnfinished(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "Worker.Recover.ListUnfinished")
	}
	for i, job := range unfinished {
		if err = w.queue.Enqueue(ctx, job.JobID); err != nil {
			return i, errors.Wrap(err, "Worker.Recover.Enqueue")
		}
	}
	return len(unfinished), nil
}

func (w *Worker) janitor(ctx context.Context) {
	defer w.wg.Done()
	interval := w.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, c := range w.cleaners {
			n, err := c.Cleanup(ctx, w.cfg.Retention)
			if err != nil {
				w.logger.Errorf("Worker.janitor - cleanup error: %v", err)
				continue
			}
			if n > 0 {
				w.logger.Infof("Janitor removed %d entries older than %s", n, w.cfg.Retention)
			}
		}
	}
}
