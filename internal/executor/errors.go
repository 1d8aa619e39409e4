package executor

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindSourceUnavailable   Kind = "source unavailable"
	KindTransientNetwork    Kind = "transient network error"
	KindUnsupportedLanguage Kind = "unsupported language"
	KindTransientService    Kind = "transient service error"
	KindUnsupportedFormat   Kind = "unsupported format"
	KindInternal            Kind = "internal error"
)

type Stage string

const (
	StageDownload   Stage = "download"
	StageTranscribe Stage = "transcribe"
	StageFormat     Stage = "format"
)

// StageError is the single failure type returned by every executor.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(stage Stage, kind Kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsRetryable is true only for transient network and service failures.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientNetwork, KindTransientService:
		return true
	}
	return false
}
