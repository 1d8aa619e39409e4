package jobs

import (
	"context"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
)

type UseCase interface {
	Submit(ctx context.Context, input *models.SubmitInput) (*models.Job, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error)
	Download(ctx context.Context, jobID string) (*models.Download, error)
	DownloadURL(ctx context.Context, jobID string) (string, error)
	Cancel(ctx context.Context, jobID string) (*models.Job, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}
