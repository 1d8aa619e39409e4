package repository

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
)

func newJob(t *testing.T, repo jobs.Repository) *models.Job {
	t.Helper()
	job, err := repo.Create(context.Background(), models.NewJob("dQw4w9WgXcQ", "en", models.FormatSRT))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestMemoryRepoGetNotFound(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	_, err := repo.Update(context.Background(), "missing", func(j *models.Job) error { return nil })
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on update, got %v", err)
	}
}

func TestMemoryRepoCreateRejectsDuplicates(t *testing.T) {
	repo := NewMemoryRepo()
	job := newJob(t, repo)
	if _, err := repo.Create(context.Background(), job); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate Create = %v", err)
	}
	if _, err := repo.Create(context.Background(), &models.Job{}); err == nil {
		t.Fatal("Create accepted a job without id")
	}
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	repo := NewMemoryRepo()
	job := newJob(t, repo)
	job.Stage = models.StageDone

	got, err := repo.Get(context.Background(), job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != models.StageQueued {
		t.Fatalf("caller mutation leaked into store: %s", got.Stage)
	}
}

func TestMemoryRepoUpdateStampsAndValidates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	job := newJob(t, repo)

	updated, err := repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.Stage = models.StageDownloading
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.UpdatedAt.After(job.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %s -> %s", job.UpdatedAt, updated.UpdatedAt)
	}

	_, err = repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.Stage = models.StageFormatting
		return nil
	})
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("skipping a stage: want ErrInvalidTransition, got %v", err)
	}

	abort := errors.New("abort")
	if _, err = repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.ProgressPercent = 50
		return abort
	}); !errors.Is(err, abort) {
		t.Fatalf("want mutation error, got %v", err)
	}
	got, _ := repo.Get(ctx, job.JobID)
	if got.Stage != models.StageDownloading || got.ProgressPercent != 0 {
		t.Fatalf("rejected updates must not be stored: %+v", got)
	}
}

func TestMemoryRepoTerminalIsImmutable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	job := newJob(t, repo)

	if _, err := repo.Update(ctx, job.JobID, func(j *models.Job) error {
		j.Fail("cancelled")
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	called := false
	_, err := repo.Update(ctx, job.JobID, func(j *models.Job) error {
		called = true
		j.CancelRequested = true
		return nil
	})
	if !errors.Is(err, jobs.ErrJobTerminal) {
		t.Fatalf("want ErrJobTerminal, got %v", err)
	}
	if called {
		t.Fatal("mutation must not run on a terminal job")
	}
}

// Concurrent readers must see either the old or the new snapshot, never a
// stage without its matching progress.
func TestMemoryRepoConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	job := newJob(t, repo)

	steps := []struct {
		stage    models.Stage
		progress int
	}{
		{models.StageDownloading, 0},
		{models.StageTranscribing, models.ProgressDownloaded},
		{models.StageFormatting, models.ProgressTranscribed},
	}
	valid := map[models.Stage]int{models.StageQueued: 0}
	for _, s := range steps {
		valid[s.stage] = s.progress
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				j, err := repo.Get(ctx, job.JobID)
				if err != nil {
					errs <- err
					return
				}
				if want, ok := valid[j.Stage]; !ok || want != j.ProgressPercent {
					errs <- errors.New("torn read: " + string(j.Stage))
					return
				}
			}
		}()
	}
	for _, s := range steps {
		s := s
		if _, err := repo.Update(ctx, job.JobID, func(j *models.Job) error {
			j.Stage = s.stage
			j.ProgressPercent = s.progress
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestMemoryRepoConcurrentWritersAreLinearizable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	job := newJob(t, repo)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, job.JobID, func(j *models.Job) error {
				j.Attempts++
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := repo.Get(ctx, job.JobID)
	if got.Attempts != 50 {
		t.Fatalf("attempts = %d, want 50", got.Attempts)
	}
}

func TestMemoryRepoListAndRetention(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, newJob(t, repo).JobID)
	}
	if _, err := repo.Update(ctx, ids[0], func(j *models.Job) error {
		j.Fail("boom")
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	list, err := repo.List(ctx, &utils.Pagination{Page: 1, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	if list.TotalCount != 3 || len(list.Jobs) != 2 || !list.HasMore || list.TotalPages != 2 {
		t.Fatalf("list = %+v", list)
	}

	unfinished, _ := repo.ListUnfinished(ctx)
	if len(unfinished) != 2 {
		t.Fatalf("unfinished = %d", len(unfinished))
	}

	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].JobID != ids[0] {
		t.Fatalf("deleted = %+v", deleted)
	}
	if _, err = repo.Get(ctx, ids[0]); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("deleted job still present: %v", err)
	}
}

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	token, ok, err := l.TryLock(ctx, "job")
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, _ = l.TryLock(ctx, "job"); ok {
		t.Fatal("second lock acquired")
	}
	if err = l.Unlock(ctx, "job", "stale"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ = l.TryLock(ctx, "job"); ok {
		t.Fatal("stale token released the lock")
	}
	if err = l.Extend(ctx, "job", token); err != nil {
		t.Fatal(err)
	}
	_ = l.Unlock(ctx, "job", token)
	if _, ok, _ = l.TryLock(ctx, "job"); !ok {
		t.Fatal("lock not released")
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q := NewMemoryQueue(4)
	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	d, err := q.Dequeue(ctx)
	if err != nil || d.JobID != "a" {
		t.Fatalf("Dequeue = %v, %v", d, err)
	}
	if err = d.Nack(true); err != nil {
		t.Fatal(err)
	}
	d, err = q.Dequeue(ctx)
	if err != nil || d.JobID != "a" {
		t.Fatalf("requeued Dequeue = %v, %v", d, err)
	}
	_ = d.Ack()

	_ = q.Close()
	if _, err = q.Dequeue(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}
}

func TestMemoryQueueRequeueNeverBlocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q := NewMemoryQueue(1)
	if err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err = q.Enqueue(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Nack(true) }()
	select {
	case err = <-done:
		if !errors.Is(err, errQueueFull) {
			t.Fatalf("full requeue error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("requeue blocked on a full queue")
	}

	d, err = q.Dequeue(ctx)
	if err != nil || d.JobID != "b" {
		t.Fatalf("Dequeue = %v, %v", d, err)
	}
	_ = q.Close()
	if err = d.Nack(true); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("closed requeue error = %v", err)
	}
}

func TestLocalArtifactStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalArtifactStore(t.TempDir())
	key := models.ArtifactKey("01HZX", models.FormatVTT)

	for i := 0; i < 2; i++ {
		if _, err := store.Put(ctx, key, models.FormatVTT, []byte("WEBVTT\n")); err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
	}
	body, art, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "WEBVTT\n" || art.ContentType != models.FormatVTT.ContentType() || art.Size != 7 {
		t.Fatalf("artifact = %q %+v", data, art)
	}
	if _, err = store.PresignGet(ctx, key, "x.vtt"); !errors.Is(err, jobs.ErrPresignUnsupported) {
		t.Fatalf("want ErrPresignUnsupported, got %v", err)
	}
	if _, _, err = store.Get(ctx, "../../etc/passwd"); err == nil {
		t.Fatal("path traversal accepted")
	}
	if err = store.Remove(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, _, err = store.Get(ctx, key); err == nil {
		t.Fatal("artifact still readable after Remove")
	}
}
