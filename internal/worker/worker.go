package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/pkg/errors"
)

// Cleaner removes finished jobs older than a cutoff together with their artifacts.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// Worker is a pool of goroutines feeding queued job ids to the Orchestrator.
type Worker struct {
	cfg      config.WorkerConfig
	logger   logger.Logger
	queue    jobs.Queue
	repo     jobs.Repository
	orch     *Orchestrator
	cleaners []Cleaner
	cpuCheck func(maxUsage float64) (bool, float64)
	wg       sync.WaitGroup
}

func NewWorker(
	cfg config.WorkerConfig,
	logger logger.Logger,
	queue jobs.Queue,
	repo jobs.Repository,
	orch *Orchestrator,
	cleaners ...Cleaner,
) *Worker {
	var active []Cleaner
	for _, c := range cleaners {
		if c != nil {
			active = append(active, c)
		}
	}
	return &Worker{
		cfg:      cfg,
		logger:   logger,
		queue:    queue,
		repo:     repo,
		orch:     orch,
		cleaners: active,
		cpuCheck: utils.CheckCPUUsage,
	}
}

// Start launches the pool and returns. Workers stop when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	count := w.cfg.WorkerCount
	if count < 1 {
		count = 1
	}
	w.logger.Infof("Starting %d workers", count)
	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}

	if w.cfg.Recover {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if n, err := w.Recover(ctx); err != nil {
				w.logger.Errorf("Worker.Recover error: %v", err)
			} else if n > 0 {
				w.logger.Infof("Re-enqueued %d unfinished jobs", n)
			}
		}()
	}

	if len(w.cleaners) > 0 && w.cfg.Retention > 0 {
		w.wg.Add(1)
		go w.janitor(ctx)
	}
}

// Wait blocks until every goroutine started by Start has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) admit() (bool, float64) {
	if w.cfg.MaxCPUUsage <= 0 || w.cpuCheck == nil {
		return true, 0
	}
	return w.cpuCheck(w.cfg.MaxCPUUsage)
}

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if ok, usage := w.admit(); !ok {
			w.logger.Infof("worker %d: CPU usage is high: %.1f%%", id, usage)
			if sleepCtx(ctx, w.cfg.CheckInterval) != nil {
				return
			}
			continue
		}

		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Errorf("worker %d: dequeue error: %v", id, err)
			if sleepCtx(ctx, w.cfg.CheckInterval) != nil {
				return
			}
			continue
		}
		w.handle(ctx, d)
	}
}
