package repository

import (
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
)

// applyMutation runs mutate on a copy of cur and validates the result.
// changed is false when the mutation left the job untouched.
func applyMutation(cur *models.Job, mutate jobs.Mutation, now time.Time) (next *models.Job, changed bool, err error) {
	if cur.Stage.IsTerminal() {
		return nil, false, models.ValidateTransition(cur, cur)
	}
	next = cur.Clone()
	if err = mutate(next); err != nil {
		return nil, false, err
	}
	next.UpdatedAt = cur.UpdatedAt
	if *next == *cur {
		return next, false, nil
	}
	if err = models.ValidateTransition(cur, next); err != nil {
		return nil, false, err
	}
	if !now.After(cur.UpdatedAt) {
		now = cur.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now
	return next, true, nil
}
