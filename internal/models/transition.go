package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrJobTerminal       = errors.New("job is in a terminal stage")
)

// ValidateTransition checks that next is a legal successor state of prev.
//
// The stage may stay where it is, move forward by exactly one step, or move
// to failed from any non-terminal stage. Terminal jobs never change. Identity
// fields are fixed at creation and progress never goes backwards unless the
// job fails.
func ValidateTransition(prev, next *Job) error {
	if prev == nil || next == nil {
		return fmt.Errorf("%w: missing job", ErrInvalidTransition)
	}
	if prev.Stage.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, prev.JobID, prev.Stage)
	}
	if !next.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, next.Stage)
	}
	if next.JobID != prev.JobID ||
		next.SourceReference != prev.SourceReference ||
		next.Language != prev.Language ||
		next.Format != prev.Format ||
		!next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: immutable field changed", ErrInvalidTransition)
	}

	if next.Stage != prev.Stage && next.Stage != StageFailed && next.Stage != prev.Stage.Next() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Stage, next.Stage)
	}

	if next.ProgressPercent < 0 || next.ProgressPercent > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, next.ProgressPercent)
	}
	if next.Stage != StageFailed && next.ProgressPercent < prev.ProgressPercent {
		return fmt.Errorf("%w: progress %d -> %d", ErrInvalidTransition, prev.ProgressPercent, next.ProgressPercent)
	}

	switch next.Stage {
	case StageFailed:
		if next.ErrorDetail == "" {
			return fmt.Errorf("%w: failed without error detail", ErrInvalidTransition)
		}
	case StageDone:
		if next.ArtifactLocation == "" || next.ProgressPercent != ProgressFormatted {
			return fmt.Errorf("%w: done without artifact", ErrInvalidTransition)
		}
	}
	if next.Stage != StageFailed && next.ErrorDetail != "" {
		return fmt.Errorf("%w: error detail on %s job", ErrInvalidTransition, next.Stage)
	}
	if next.Stage != StageDone && next.ArtifactLocation != "" {
		return fmt.Errorf("%w: artifact on %s job", ErrInvalidTransition, next.Stage)
	}
	return nil
}
