package jobs

import (
	"context"
	"io"

	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type AWSRepository interface {
	PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error
	GetObject(ctx context.Context, bucket, key string) (*s3.GetObjectOutput, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	GetPresignedURL(ctx context.Context, bucket, key, filename string) (string, error)
}

// ArtifactStore keeps rendered transcripts addressed by models.ArtifactKey.
type ArtifactStore interface {
	Put(ctx context.Context, key string, format models.Format, body []byte) (*models.Artifact, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *models.Artifact, error)
	Remove(ctx context.Context, key string) error
	// PresignGet returns ErrPresignUnsupported when the store cannot hand out URLs.
	PresignGet(ctx context.Context, key, filename string) (string, error)
}
