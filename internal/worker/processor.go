package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/executor"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Orchestrator drives a single job through download, transcribe and format.
type Orchestrator struct {
	repo          jobs.Repository
	locker        jobs.Locker
	artifacts     jobs.ArtifactStore
	exec          Executors
	policy        RetryPolicy
	lockTTL       time.Duration
	watchInterval time.Duration
	logger        logger.Logger
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	cfg config.WorkerConfig,
	repo jobs.Repository,
	locker jobs.Locker,
	artifacts jobs.ArtifactStore,
	exec Executors,
	logger logger.Logger,
) *Orchestrator {
	interval := cfg.CheckInterval
	if cfg.LockTTL > 0 && (interval <= 0 || interval > cfg.LockTTL/3) {
		interval = cfg.LockTTL / 3
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Orchestrator{
		repo:          repo,
		locker:        locker,
		artifacts:     artifacts,
		exec:          exec,
		policy:        NewRetryPolicy(cfg),
		lockTTL:       cfg.LockTTL,
		watchInterval: interval,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

// pipelineState carries stage outputs between stages of one pass.
type pipelineState struct {
	media *models.MediaHandle
	raw   *models.RawTranscript
}

// Run processes jobID until it is done or failed. A second concurrent call
// for the same job returns ErrAlreadyInFlight without touching it.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	token, ok, err := o.locker.TryLock(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "Orchestrator.Run.TryLock")
	}
	if !ok {
		return ErrAlreadyInFlight
	}
	defer func() {
		if err := o.locker.Unlock(context.Background(), jobID, token); err != nil {
			o.logger.Warnf("Orchestrator.Run - unlock %s error: %v", jobID, err)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go o.watch(runCtx, cancel, jobID, token)

	err = o.drive(runCtx, jobID)
	cause := context.Cause(runCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobs.ErrJobTerminal):
		o.logger.Infof("job %s became terminal while running, result discarded", jobID)
		return nil
	case errors.Is(cause, errCancelRequested):
		return o.fail(ctx, jobID, models.CancelledDetail)
	case errors.Is(cause, jobs.ErrLockLost):
		return jobs.ErrLockLost
	}
	return err
}

// watch keeps the lock alive and stops the pass when the job lock is lost or
// the caller requested cancellation.
func (o *Orchestrator) watch(ctx context.Context, cancel context.CancelCauseFunc, jobID, token string) {
	ticker := time.NewTicker(o.watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if o.lockTTL > 0 {
			if err := o.locker.Extend(ctx, jobID, token); err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, jobs.ErrLockLost) {
					o.logger.Warnf("job %s lock lost, stopping", jobID)
					cancel(jobs.ErrLockLost)
					return
				}
				o.logger.Warnf("Orchestrator.watch - extend lock %s error: %v", jobID, err)
			}
		}
		job, err := o.repo.Get(ctx, jobID)
		if err == nil && job.CancelRequested {
			cancel(errCancelRequested)
			return
		}
	}
}

func (o *Orchestrator) drive(ctx context.Context, jobID string) error {
	var st pipelineState
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := o.repo.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Stage.IsTerminal() {
			return nil
		}
		if job.CancelRequested {
			return o.fail(ctx, jobID, models.CancelledDetail)
		}

		switch job.Stage {
		case models.StageQueued:
			_, err = o.repo.Update(ctx, jobID, func(j *models.Job) error {
				j.Stage = models.StageDownloading
				j.Message = j.Stage.StatusMessage()
				j.Attempts = 0
				return nil
			})
		case models.StageDownloading:
			err = o.download(ctx, job, &st)
		case models.StageTranscribing:
			err = o.transcribe(ctx, job, &st)
		case models.StageFormatting:
			err = o.format(ctx, job, &st)
		default:
			err = o.fail(ctx, jobID, fmt.Sprintf("unknown stage %q", job.Stage))
		}
		if err != nil {
			return err
		}
	}
}

func (o *Orchestrator) download(ctx context.Context, job *models.Job, st *pipelineState) error {
	media, err := o.fetch(ctx, job)
	if err != nil {
		return o.settle(ctx, job.JobID, err)
	}
	st.media = media
	_, err = o.repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.Stage = models.StageTranscribing
		j.Message = j.Stage.StatusMessage()
		j.ProgressPercent = models.ProgressDownloaded
		j.Attempts = 0
		j.Title = media.Title
		j.MediaLocation = media.Path
		return nil
	})
	return err
}

func (o *Orchestrator) transcribe(ctx context.Context, job *models.Job, st *pipelineState) error {
	raw, err := o.runTranscriber(ctx, job, st)
	if err != nil {
		return o.settle(ctx, job.JobID, err)
	}
	st.raw = raw
	location := o.checkpointTranscript(ctx, job.JobID, raw)
	_, err = o.repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.Stage = models.StageFormatting
		j.Message = j.Stage.StatusMessage()
		j.ProgressPercent = models.ProgressTranscribed
		j.Attempts = 0
		j.TranscriptLocation = location
		return nil
	})
	return err
}

func (o *Orchestrator) format(ctx context.Context, job *models.Job, st *pipelineState) error {
	raw := st.raw
	if raw == nil {
		raw = o.loadTranscript(ctx, job)
	}
	if raw == nil {
		r, err := o.runTranscriber(ctx, job, st)
		if err != nil {
			return o.settle(ctx, job.JobID, err)
		}
		raw = r
	}

	var art *models.Artifact
	err := o.attempt(ctx, job.JobID, executor.StageFormat, func(ctx context.Context) error {
		body, err := o.exec.Formatter.Render(raw, job.Format)
		if err != nil {
			return err
		}
		a, err := o.artifacts.Put(ctx, models.ArtifactKey(job.JobID, job.Format), job.Format, body)
		if err != nil {
			return &executor.StageError{Stage: executor.StageFormat, Kind: executor.KindTransientService, Err: err}
		}
		art = a
		return nil
	})
	if err != nil {
		return o.settle(ctx, job.JobID, err)
	}

	_, err = o.repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.Stage = models.StageDone
		j.Message = j.Stage.StatusMessage()
		j.ProgressPercent = models.ProgressFormatted
		j.Attempts = 0
		j.ArtifactLocation = art.Key
		return nil
	})
	if errors.Is(err, jobs.ErrJobTerminal) {
		if rmErr := o.artifacts.Remove(context.Background(), art.Key); rmErr != nil {
			o.logger.Warnf("Orchestrator.format - remove orphaned artifact %s error: %v", art.Key, rmErr)
		}
	}
	return err
}

func (o *Orchestrator) fetch(ctx context.Context, job *models.Job) (*models.MediaHandle, error) {
	var media *models.MediaHandle
	err := o.attempt(ctx, job.JobID, executor.StageDownload, func(ctx context.Context) error {
		m, err := o.exec.Downloader.Fetch(ctx, job.SourceReference)
		media = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return media, nil
}

// resumeMedia returns the media of an earlier pass, fetching it again when
// the local file is gone.
func (o *Orchestrator) resumeMedia(ctx context.Context, job *models.Job, st *pipelineState) (*models.MediaHandle, error) {
	if st.media != nil {
		return st.media, nil
	}
	if job.MediaLocation != "" {
		if info, err := os.Stat(job.MediaLocation); err == nil && info.Size() > 0 {
			st.media = &models.MediaHandle{
				Path:     job.MediaLocation,
				Title:    job.Title,
				SourceID: filepath.Base(filepath.Dir(job.MediaLocation)),
			}
			return st.media, nil
		}
	}
	media, err := o.fetch(ctx, job)
	if err != nil {
		return nil, err
	}
	st.media = media
	return media, nil
}

func (o *Orchestrator) runTranscriber(ctx context.Context, job *models.Job, st *pipelineState) (*models.RawTranscript, error) {
	media, err := o.resumeMedia(ctx, job, st)
	if err != nil {
		return nil, err
	}
	var raw *models.RawTranscript
	err = o.attempt(ctx, job.JobID, executor.StageTranscribe, func(ctx context.Context) error {
		r, err := o.exec.Transcriber.Transcribe(ctx, media, job.Language)
		raw = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (o *Orchestrator) checkpointTranscript(ctx context.Context, jobID string, raw *models.RawTranscript) string {
	data, err := json.Marshal(raw)
	if err != nil {
		o.logger.Warnf("Orchestrator.checkpointTranscript - marshal error: %v", err)
		return ""
	}
	art, err := o.artifacts.Put(ctx, models.RawTranscriptKey(jobID), models.FormatJSON, data)
	if err != nil {
		o.logger.Warnf("Orchestrator.checkpointTranscript - put %s error: %v", jobID, err)
		return ""
	}
	return art.Key
}

func (o *Orchestrator) loadTranscript(ctx context.Context, job *models.Job) *models.RawTranscript {
	if job.TranscriptLocation == "" {
		return nil
	}
	body, _, err := o.artifacts.Get(ctx, job.TranscriptLocation)
	if err != nil {
		o.logger.Warnf("Orchestrator.loadTranscript - get %s error: %v", job.TranscriptLocation, err)
		return nil
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil
	}
	raw := &models.RawTranscript{}
	if err = json.Unmarshal(data, raw); err != nil {
		return nil
	}
	return raw
}

// attempt runs call under the retry policy. The final executor failure of
// the stage comes back as a *executor.StageError; any other error is a store
// or context error that ends the pass.
func (o *Orchestrator) attempt(ctx context.Context, jobID string, stage executor.Stage, call func(context.Context) error) error {
	b := o.policy.NewBackOff()
	for n := 1; ; n++ {
		if _, err := o.repo.Update(ctx, jobID, func(j *models.Job) error {
			j.Attempts = n
			j.Message = j.Stage.StatusMessage()
			if n > 1 {
				j.Message = fmt.Sprintf("%s (attempt %d of %d)", j.Message, n, o.policy.MaxAttempts)
			}
			return nil
		}); err != nil {
			return err
		}

		err := o.safeCall(ctx, stage, call)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !executor.IsRetryable(err) {
			return err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		o.logger.Warnf("job %s %s attempt %d/%d failed, retrying in %s: %v",
			jobID, stage, n, o.policy.MaxAttempts, delay, err)
		if err = o.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// safeCall turns panics and foreign errors into internal stage errors.
func (o *Orchestrator) safeCall(ctx context.Context, stage executor.Stage, call func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("Orchestrator.safeCall - panic in %s: %v\n%s", stage, r, debug.Stack())
			err = &executor.StageError{Stage: stage, Kind: executor.KindInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err = call(ctx); err != nil {
		var se *executor.StageError
		if !errors.As(err, &se) {
			err = &executor.StageError{Stage: stage, Kind: executor.KindInternal, Err: err}
		}
	}
	return err
}

// settle fails the job for a stage error and passes anything else through.
func (o *Orchestrator) settle(ctx context.Context, jobID string, err error) error {
	var se *executor.StageError
	if errors.As(err, &se) {
		return o.fail(ctx, jobID, se.Error())
	}
	return err
}

func (o *Orchestrator) fail(ctx context.Context, jobID, detail string) error {
	_, err := o.repo.Update(ctx, jobID, func(j *models.Job) error {
		j.Fail(detail)
		return nil
	})
	if errors.Is(err, jobs.ErrJobTerminal) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "Orchestrator.fail")
	}
	o.logger.Infof("job %s failed: %s", jobID, detail)
	return nil
}
