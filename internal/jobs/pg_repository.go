package jobs

import (
	"context"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
)

// Mutation edits a private copy of a job. Returning an error aborts the update.
type Mutation func(job *models.Job) error

// Repository is the job store. Every implementation applies Update
// atomically, validates it with models.ValidateTransition and stamps
// updated_at itself. Returned jobs are copies owned by the caller.
type Repository interface {
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	Get(ctx context.Context, jobID string) (*models.Job, error)
	Update(ctx context.Context, jobID string, mutate Mutation) (*models.Job, error)
	List(ctx context.Context, pq *utils.Pagination) (*models.JobList, error)
	ListUnfinished(ctx context.Context) ([]*models.Job, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) ([]*models.Job, error)
}
