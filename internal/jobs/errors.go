package jobs

import (
	"errors"
	"fmt"

	"github.com/amankumarsingh77/yt-transcriber/internal/models"
)

var (
	ErrNotFound           = errors.New("job not found")
	ErrNotReady           = errors.New("job is not finished yet")
	ErrJobFailed          = errors.New("job failed")
	ErrInvalidTransition  = models.ErrInvalidTransition
	ErrJobTerminal        = models.ErrJobTerminal
	ErrPresignUnsupported = errors.New("artifact store cannot presign urls")
	ErrQueueClosed        = errors.New("queue closed")
	ErrLockLost           = errors.New("job lock is held by another worker")
)

// ValidationError is a caller error on submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// FailedError carries the error detail of a failed job.
type FailedError struct {
	JobID  string
	Detail string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Detail)
}

func (e *FailedError) Is(target error) bool {
	return target == ErrJobFailed
}
