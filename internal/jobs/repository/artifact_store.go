package repository

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/pkg/errors"
)

type s3ArtifactStore struct {
	awsRepo jobs.AWSRepository
	bucket  string
}

func NewS3ArtifactStore(awsRepo jobs.AWSRepository, bucket string) jobs.ArtifactStore {
	return &s3ArtifactStore{awsRepo: awsRepo, bucket: bucket}
}

// Put overwrites the object, so storing the same rendering twice is harmless.
func (s *s3ArtifactStore) Put(ctx context.Context, key string, format models.Format, body []byte) (*models.Artifact, error) {
	if err := s.awsRepo.PutObject(ctx, s.bucket, key, format.ContentType(), bytes.NewReader(body), int64(len(body))); err != nil {
		return nil, err
	}
	return &models.Artifact{Key: key, ContentType: format.ContentType(), Size: int64(len(body))}, nil
}

func (s *s3ArtifactStore) Get(ctx context.Context, key string) (io.ReadCloser, *models.Artifact, error) {
	out, err := s.awsRepo.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, nil, err
	}
	return out.Body, &models.Artifact{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

func (s *s3ArtifactStore) Remove(ctx context.Context, key string) error {
	return s.awsRepo.RemoveObject(ctx, s.bucket, key)
}

func (s *s3ArtifactStore) PresignGet(ctx context.Context, key, filename string) (string, error) {
	return s.awsRepo.GetPresignedURL(ctx, s.bucket, key, filename)
}

type localArtifactStore struct {
	root string
}

func NewLocalArtifactStore(root string) jobs.ArtifactStore {
	return &localArtifactStore{root: root}
}

func (l *localArtifactStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

// Put writes through a temp file and rename so readers never see partial output.
func (l *localArtifactStore) Put(ctx context.Context, key string, format models.Format, body []byte) (*models.Artifact, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrap(err, "localArtifactStore.Put.MkdirAll")
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".artifact-*")
	if err != nil {
		return nil, errors.Wrap(err, "localArtifactStore.Put.CreateTemp")
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(body); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "localArtifactStore.Put.Write")
	}
	if err = tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "localArtifactStore.Put.Close")
	}
	if err = os.Rename(tmp.Name(), p); err != nil {
		return nil, errors.Wrap(err, "localArtifactStore.Put.Rename")
	}
	return &models.Artifact{Key: key, ContentType: format.ContentType(), Size: int64(len(body))}, nil
}

func (l *localArtifactStore) Get(ctx context.Context, key string) (io.ReadCloser, *models.Artifact, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, nil, errors.Wrap(err, "localArtifactStore.Get.Open")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "localArtifactStore.Get.Stat")
	}
	format := models.Format(strings.TrimPrefix(filepath.Ext(p), "."))
	return f, &models.Artifact{Key: key, ContentType: format.ContentType(), Size: info.Size()}, nil
}

func (l *localArtifactStore) Remove(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "localArtifactStore.Remove")
	}
	_ = os.Remove(filepath.Dir(p))
	return nil
}

func (l *localArtifactStore) PresignGet(ctx context.Context, key, filename string) (string, error) {
	return "", jobs.ErrPresignUnsupported
}
