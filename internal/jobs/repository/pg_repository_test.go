package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/jmoiron/sqlx"
)

var jobRowColumns = []string{
	"job_id", "source_reference", "requested_language", "requested_format", "stage", "progress_percent",
	"message", "error_detail", "artifact_location", "title", "attempts", "cancel_requested", "media_location",
	"transcript_location", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*jobsRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := NewJobsRepo(sqlx.NewDb(db, "sqlmock"))
	return repo, mock
}

func jobRows(list ...*models.Job) *sqlmock.Rows {
	rows := sqlmock.NewRows(jobRowColumns)
	for _, j := range list {
		rows.AddRow(j.JobID, j.SourceReference, j.Language, string(j.Format), string(j.Stage), j.ProgressPercent,
			j.Message, j.ErrorDetail, j.ArtifactLocation, j.Title, j.Attempts, j.CancelRequested, j.MediaLocation,
			j.TranscriptLocation, j.CreatedAt, j.UpdatedAt)
	}
	return rows
}

func downloadingJob() *models.Job {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Job{
		JobID:           "01HZX3Q6J7S8Y5T4M2N1P0R9VW",
		SourceReference: "dQw4w9WgXcQ",
		Language:        "en",
		Format:          models.FormatSRT,
		Stage:           models.StageDownloading,
		Message:         "Downloading audio",
		Attempts:        1,
		CreatedAt:       created,
		UpdatedAt:       created.Add(time.Second),
	}
}

func TestPgRepoMigrate(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS transcript_jobs")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(addJobsMessageColumnQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(createJobsStageIndexQuery)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := models.NewJob("dQw4w9WgXcQ", "en", models.FormatTXT)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transcript_jobs")).
		WithArgs(job.JobID, job.SourceReference, "en", "txt", "queued", 0, "Queued", "", "", "", 0, false, "", "",
			job.CreatedAt, job.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), job)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got == job || got.JobID != job.JobID {
		t.Fatal("Create must return a copy of the stored job")
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(getJobByIDQuery)).WithArgs("missing").WillReturnRows(sqlmock.NewRows(jobRowColumns))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(getJobForUpdateQuery)).WithArgs("missing").WillReturnRows(sqlmock.NewRows(jobRowColumns))
	mock.ExpectRollback()

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
	_, err := repo.Update(context.Background(), "missing", func(j *models.Job) error { return nil })
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("Update = %v, want ErrNotFound", err)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := downloadingJob()
	mock.ExpectQuery(regexp.QuoteMeta(getJobByIDQuery)).WithArgs(job.JobID).WillReturnRows(jobRows(job))

	got, err := repo.Get(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *job {
		t.Fatalf("Get = %+v, want %+v", got, job)
	}
}

func TestPgRepoUpdateLocksRowAndCommits(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	job := downloadingJob()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(getJobForUpdateQuery)).WithArgs(job.JobID).WillReturnRows(jobRows(job))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE transcript_jobs")).
		WithArgs("transcribing", models.ProgressDownloaded, "Transcribing audio", "", "", "Demo", 0, false,
			"/work/dQw4w9WgXcQ/audio.wav", "", now, job.JobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Update(context.Background(), job.JobID, func(j *models.Job) error {
		j.Stage = models.StageTranscribing
		j.Message = j.Stage.StatusMessage()
		j.ProgressPercent = models.ProgressDownloaded
		j.Attempts = 0
		j.Title = "Demo"
		j.MediaLocation = "/work/dQw4w9WgXcQ/audio.wav"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Stage != models.StageTranscribing || !got.UpdatedAt.Equal(now) {
		t.Fatalf("Update = %s at %s", got.Stage, got.UpdatedAt)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoUpdateWithoutChangeRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := downloadingJob()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(getJobForUpdateQuery)).WithArgs(job.JobID).WillReturnRows(jobRows(job))
	mock.ExpectRollback()

	got, err := repo.Update(context.Background(), job.JobID, func(j *models.Job) error {
		j.Attempts = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.UpdatedAt.Equal(job.UpdatedAt) {
		t.Fatalf("updated_at moved without a change: %s", got.UpdatedAt)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoUpdateTerminalJob(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := downloadingJob()
	job.Fail("download: source unavailable: Private video")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(getJobForUpdateQuery)).WithArgs(job.JobID).WillReturnRows(jobRows(job))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), job.JobID, func(j *models.Job) error {
		j.CancelRequested = true
		return nil
	})
	if !errors.Is(err, jobs.ErrJobTerminal) {
		t.Fatalf("Update = %v, want ErrJobTerminal", err)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoUpdateRejectsInvalidTransition(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := downloadingJob()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(getJobForUpdateQuery)).WithArgs(job.JobID).WillReturnRows(jobRows(job))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), job.JobID, func(j *models.Job) error {
		j.Stage = models.StageDone
		return nil
	})
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("Update = %v, want ErrInvalidTransition", err)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoDeleteFinishedBeforeReturnsRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	done := downloadingJob()
	done.JobID = "01HZX3Q6J7S8Y5T4M2N1P0R9VX"
	done.Stage = models.StageDone
	done.ProgressPercent = models.ProgressFormatted
	done.ArtifactLocation = models.ArtifactKey(done.JobID, done.Format)
	failed := downloadingJob()
	failed.Fail("cancelled by user")

	mock.ExpectQuery(regexp.QuoteMeta(deleteFinishedJobsQuery)).WithArgs(cutoff).WillReturnRows(jobRows(done, failed))

	removed, err := repo.DeleteFinishedBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteFinishedBefore: %v", err)
	}
	if len(removed) != 2 || removed[0].ArtifactLocation != done.ArtifactLocation || removed[1].Stage != models.StageFailed {
		t.Fatalf("removed = %+v", removed)
	}
	if err = mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPgRepoWrapsDriverErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(getJobByIDQuery)).WithArgs("x").WillReturnError(errors.New("connection refused"))

	_, err := repo.Get(context.Background(), "x")
	if err == nil || errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("Get = %v, want a wrapped driver error", err)
	}
}
