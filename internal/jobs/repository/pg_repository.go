package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type jobsRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewJobsRepo(db *sqlx.DB) *jobsRepo {
	return &jobsRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the jobs table when it does not exist.
func (r *jobsRepo) Migrate(ctx context.Context) error {
	for _, q := range []string{createJobsTableQuery, addJobsMessageColumnQuery, createJobsStageIndexQuery} {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "jobsRepo.Migrate.ExecContext")
		}
	}
	return nil
}

func (r *jobsRepo) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	if _, err := r.db.NamedExecContext(ctx, createJobQuery, job); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.Create.NamedExecContext")
	}
	return job.Clone(), nil
}

func (r *jobsRepo) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job := &models.Job{}
	if err := r.db.GetContext(ctx, job, getJobByIDQuery, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, errors.Wrap(err, "jobsRepo.Get.GetContext")
	}
	return job, nil
}

// Update locks the row for the duration of the mutation so that writers
// on other processes are serialised by postgres.
func (r *jobsRepo) Update(ctx context.Context, jobID string, mutate jobs.Mutation) (*models.Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "jobsRepo.Update.BeginTxx")
	}
	defer tx.Rollback()

	cur := &models.Job{}
	if err = tx.GetContext(ctx, cur, getJobForUpdateQuery, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, errors.Wrap(err, "jobsRepo.Update.GetContext")
	}

	next, changed, err := applyMutation(cur, mutate, r.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return next, nil
	}
	if _, err = tx.NamedExecContext(ctx, updateJobQuery, next); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.Update.NamedExecContext")
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.Update.Commit")
	}
	return next, nil
}

func (r *jobsRepo) List(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, getTotalJobsCountQuery); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.List.GetContext.totalCount")
	}
	if totalCount == 0 {
		return &models.JobList{
			TotalCount: 0,
			TotalPages: 0,
			Page:       pq.GetPage(),
			Size:       pq.GetSize(),
			HasMore:    false,
			Jobs:       make([]*models.Job, 0),
		}, nil
	}

	list := make([]*models.Job, 0, pq.GetSize())
	if err := r.db.SelectContext(ctx, &list, getJobsQuery, pq.GetOffset(), pq.GetLimit()); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.List.SelectContext")
	}
	return &models.JobList{
		TotalCount: totalCount,
		TotalPages: utils.GetTotalPages(totalCount, pq.GetSize()),
		Page:       pq.GetPage(),
		Size:       pq.GetSize(),
		HasMore:    utils.GetHasMore(pq.GetPage(), totalCount, pq.GetSize()),
		Jobs:       list,
	}, nil
}

func (r *jobsRepo) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	list := make([]*models.Job, 0)
	if err := r.db.SelectContext(ctx, &list, getUnfinishedJobsQuery); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.ListUnfinished.SelectContext")
	}
	return list, nil
}

func (r *jobsRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) ([]*models.Job, error) {
	list := make([]*models.Job, 0)
	if err := r.db.SelectContext(ctx, &list, deleteFinishedJobsQuery, before); err != nil {
		return nil, errors.Wrap(err, "jobsRepo.DeleteFinishedBefore.SelectContext")
	}
	return list, nil
}
