package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type jobsUC struct {
	cfg       *config.Config
	repo      jobs.Repository
	queue     jobs.Queue
	artifacts jobs.ArtifactStore
	logger    logger.Logger
	now       func() time.Time
}

func NewJobsUseCase(
	cfg *config.Config,
	repo jobs.Repository,
	queue jobs.Queue,
	artifacts jobs.ArtifactStore,
	log logger.Logger,
) jobs.UseCase {
	return &jobsUC{
		cfg:       cfg,
		repo:      repo,
		queue:     queue,
		artifacts: artifacts,
		logger:    log,
		now:       time.Now,
	}
}

// Submit validates the request, stores a queued job and hands it to the
// dispatch queue. It never waits for processing.
func (u *jobsUC) Submit(ctx context.Context, input *models.SubmitInput) (*models.Job, error) {
	if input == nil {
		return nil, &jobs.ValidationError{Reason: "empty request"}
	}
	input.SourceReference = strings.TrimSpace(input.SourceReference)
	input.Language = strings.ToLower(strings.TrimSpace(input.Language))
	input.Format = strings.ToLower(strings.TrimSpace(input.Format))

	if err := utils.ValidateStruct(ctx, input); err != nil {
		u.logger.Warnf("Submit - ValidateStruct error: %v", err)
		return nil, toValidationError(err)
	}
	if input.Language == "" {
		input.Language = models.DefaultLanguage
	}
	if input.Format == "" {
		input.Format = string(models.DefaultFormat)
	}
	if !models.IsLanguageCode(input.Language) {
		return nil, &jobs.ValidationError{Field: "language", Reason: "must be auto or a two letter ISO-639-1 code"}
	}
	if _, err := models.ParseSource(input.SourceReference); err != nil {
		return nil, &jobs.ValidationError{Field: "source_reference", Reason: err.Error()}
	}

	job, err := u.repo.Create(ctx, models.NewJob(input.SourceReference, input.Language, models.Format(input.Format)))
	if err != nil {
		u.logger.Errorf("Submit - Create error: %v", err)
		return nil, errors.Wrap(err, "jobsUC.Submit.Create")
	}
	if err = u.queue.Enqueue(ctx, job.JobID); err != nil {
		u.logger.Errorf("Submit - Enqueue %s error: %v", job.JobID, err)
		if _, ferr := u.repo.Update(ctx, job.JobID, func(j *models.Job) error {
			j.Fail("could not be queued: " + err.Error())
			return nil
		}); ferr != nil {
			u.logger.Errorf("Submit - fail unqueued job %s error: %v", job.JobID, ferr)
		}
		return nil, errors.Wrap(err, "jobsUC.Submit.Enqueue")
	}
	u.logger.Infof("Job %s queued for %s (%s, %s)", job.JobID, job.SourceReference, job.Language, job.Format)
	return job, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := map[string]string{
			"SourceReference": "source_reference",
			"Language":        "language",
			"Format":          "format",
		}[fe.Field()]
		if field == "" {
			field = fe.Field()
		}
		reason := "failed the " + fe.Tag() + " rule"
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "oneof":
			reason = "must be one of: " + fe.Param()
		case "max":
			reason = "must be at most " + fe.Param() + " characters"
		}
		return &jobs.ValidationError{Field: field, Reason: reason}
	}
	return &jobs.ValidationError{Reason: err.Error()}
}

func (u *jobsUC) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := u.repo.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, jobs.ErrNotFound) {
			u.logger.Errorf("GetJob - Get %s error: %v", jobID, err)
		}
		return nil, err
	}
	return job, nil
}

func (u *jobsUC) ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	list, err := u.repo.List(ctx, pq)
	if err != nil {
		u.logger.Errorf("ListJobs - List error: %v", err)
		return nil, err
	}
	return list, nil
}

// finished returns the job when its artifact can be served.
func (u *jobsUC) finished(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := u.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.Stage {
	case models.StageDone:
		return job, nil
	case models.StageFailed:
		return job, &jobs.FailedError{JobID: job.JobID, Detail: job.ErrorDetail}
	default:
		return job, jobs.ErrNotReady
	}
}

func (u *jobsUC) Download(ctx context.Context, jobID string) (*models.Download, error) {
	job, err := u.finished(ctx, jobID)
	if err != nil {
		return &models.Download{Job: job}, err
	}
	body, art, err := u.artifacts.Get(ctx, job.ArtifactLocation)
	if err != nil {
		u.logger.Errorf("Download - artifact %s error: %v", job.ArtifactLocation, err)
		return nil, errors.Wrap(err, "jobsUC.Download.Get")
	}
	return &models.Download{
		Job:      job,
		Body:     body,
		Artifact: art,
		Filename: models.DownloadFilename(job),
	}, nil
}

func (u *jobsUC) DownloadURL(ctx context.Context, jobID string) (string, error) {
	job, err := u.finished(ctx, jobID)
	if err != nil {
		return "", err
	}
	url, err := u.artifacts.PresignGet(ctx, job.ArtifactLocation, models.DownloadFilename(job))
	if err != nil {
		if !errors.Is(err, jobs.ErrPresignUnsupported) {
			u.logger.Errorf("DownloadURL - PresignGet %s error: %v", job.ArtifactLocation, err)
		}
		return "", err
	}
	return url, nil
}

// Cancel fails a queued job at once. A job already in a stage is flagged and
// stopped by its worker at the next opportunity.
func (u *jobsUC) Cancel(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := u.repo.Update(ctx, jobID, func(j *models.Job) error {
		j.CancelRequested = true
		if j.Stage == models.StageQueued {
			j.Fail(models.CancelledDetail)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, jobs.ErrNotFound) && !errors.Is(err, jobs.ErrJobTerminal) {
			u.logger.Errorf("Cancel - Update %s error: %v", jobID, err)
		}
		return nil, err
	}
	u.logger.Infof("Cancellation requested for job %s (%s)", jobID, job.Stage)
	return job, nil
}

// Cleanup deletes finished jobs last updated before now-olderThan and the
// objects they reference.
func (u *jobsUC) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	removed, err := u.repo.DeleteFinishedBefore(ctx, u.now().Add(-olderThan))
	if err != nil {
		u.logger.Errorf("Cleanup - DeleteFinishedBefore error: %v", err)
		return 0, err
	}
	for _, job := range removed {
		for _, key := range []string{job.ArtifactLocation, job.TranscriptLocation} {
			if key == "" {
				continue
			}
			if err = u.artifacts.Remove(ctx, key); err != nil {
				u.logger.Warnf("Cleanup - remove %s error: %v", key, err)
			}
		}
	}
	return len(removed), nil
}
