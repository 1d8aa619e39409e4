package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/config"
	"github.com/amankumarsingh77/yt-transcriber/internal/executor"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs/repository"
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs/usecase"
	"github.com/amankumarsingh77/yt-transcriber/internal/middleware"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/internal/worker"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/labstack/echo/v4"
)

const privateVideo = "https://www.youtube.com/watch?v=PRIVATE0000"

type stubDownloader struct {
	calls atomic.Int32
}

func (s *stubDownloader) Fetch(ctx context.Context, ref string) (*models.MediaHandle, error) {
	s.calls.Add(1)
	if ref == privateVideo {
		return nil, &executor.StageError{
			Stage: executor.StageDownload,
			Kind:  executor.KindSourceUnavailable,
			Err:   errors.New("ERROR: [youtube] PRIVATE0000: Private video"),
		}
	}
	return &models.MediaHandle{Path: "/work/x/audio.wav", Title: "Never Gonna Give You Up", SourceID: "x"}, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, media *models.MediaHandle, lang string) (*models.RawTranscript, error) {
	return &models.RawTranscript{
		Title:    media.Title,
		Language: lang,
		Text:     "We're no strangers to love",
		Segments: []models.Segment{{Start: 0, End: 3, Text: "We're no strangers to love"}},
	}, nil
}

type testAPI struct {
	e    *echo.Echo
	repo jobs.Repository
	orch *worker.Orchestrator
	dl   *stubDownloader
}

func newTestAPI(t *testing.T, cfg *config.Config) *testAPI {
	t.Helper()
	repo := repository.NewMemoryRepo()
	queue := repository.NewMemoryQueue(16)
	artifacts := repository.NewLocalArtifactStore(t.TempDir())
	uc := usecase.NewJobsUseCase(cfg, repo, queue, artifacts, logger.NewNop())

	dl := &stubDownloader{}
	orch := worker.NewOrchestrator(config.WorkerConfig{MaxAttempts: 3, LockTTL: time.Minute}, repo, repository.NewMemoryLocker(), artifacts,
		worker.Executors{Downloader: dl, Transcriber: stubTranscriber{}, Formatter: executor.NewFormatter()}, logger.NewNop())

	e := echo.New()
	mw := middleware.NewMiddlewareManager(cfg, nil, logger.NewNop())
	MapJobsRoutes(e.Group("/api/v1/jobs"), NewJobsHandler(uc, logger.NewNop()), mw)
	return &testAPI{e: e, repo: repo, orch: orch, dl: dl}
}

func (a *testAPI) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) submit(t *testing.T, body string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/jobs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["job_id"] == "" {
		t.Fatalf("submit body = %s", rec.Body)
	}
	return resp["job_id"]
}

func (a *testAPI) poll(t *testing.T, id string) jobStatus {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/api/v1/jobs/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("poll status = %d body = %s", rec.Code, rec.Body)
	}
	var st jobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestScenarioSubmitPollDownload(t *testing.T) {
	api := newTestAPI(t, &config.Config{})
	id := api.submit(t, `{"source_reference":"https://youtu.be/dQw4w9WgXcQ","language":"en","format":"srt"}`)

	st := api.poll(t, id)
	if st.Stage != models.StageQueued && st.Stage != models.StageDownloading {
		t.Fatalf("fresh job stage = %s", st.Stage)
	}
	if st.DownloadURL != "" {
		t.Fatal("download link offered before completion")
	}
	if st.Message == "" || !strings.HasPrefix(st.Message, st.Stage.StatusMessage()) {
		t.Fatalf("fresh job message = %q", st.Message)
	}

	if err := api.orch.Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	st = api.poll(t, id)
	if st.Stage != models.StageDone || st.ProgressPercent != 100 || st.Title != "Never Gonna Give You Up" || st.Message != "Completed" {
		t.Fatalf("finished job = %+v", st)
	}
	if st.DownloadURL != "/api/v1/jobs/"+id+"/download" {
		t.Fatalf("download url = %q", st.DownloadURL)
	}

	rec := api.do(t, http.MethodGet, st.DownloadURL, "")
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("download status = %d len = %d", rec.Code, rec.Body.Len())
	}
	if !strings.HasPrefix(rec.Body.String(), "1\n00:00:00,000 --> 00:00:03,000\nWe're no strangers to love") {
		t.Fatalf("srt = %q", rec.Body)
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); got != `attachment; filename="Never Gonna Give You_en.srt"` {
		t.Fatalf("content disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "application/x-subrip") {
		t.Fatalf("content type = %q", rec.Header().Get(echo.HeaderContentType))
	}

	// presigning is not available on local storage, so redirect falls back to bytes
	rec = api.do(t, http.MethodGet, st.DownloadURL+"?redirect=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("redirect fallback status = %d", rec.Code)
	}
}

func TestScenarioUnavailableSourceFails(t *testing.T) {
	api := newTestAPI(t, &config.Config{})
	id := api.submit(t, `{"source_reference":"`+privateVideo+`"}`)

	if err := api.orch.Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	st := api.poll(t, id)
	if st.Stage != models.StageFailed || !strings.Contains(st.ErrorDetail, "unavailable") {
		t.Fatalf("job = %+v", st)
	}
	if api.dl.calls.Load() != 1 {
		t.Fatalf("downloader called %d times", api.dl.calls.Load())
	}

	rec := api.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/download", "")
	if rec.Code != http.StatusGone || !strings.Contains(rec.Body.String(), "Private video") {
		t.Fatalf("download status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestScenarioDownloadWhileTranscribing(t *testing.T) {
	api := newTestAPI(t, &config.Config{})
	id := api.submit(t, `{"source_reference":"dQw4w9WgXcQ","format":"txt"}`)
	for _, mutate := range []func(j *models.Job){
		func(j *models.Job) { j.Stage = models.StageDownloading },
		func(j *models.Job) {
			j.Stage = models.StageTranscribing
			j.ProgressPercent = models.ProgressDownloaded
		},
	} {
		mutate := mutate
		if _, err := api.repo.Update(context.Background(), id, func(j *models.Job) error {
			mutate(j)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	rec := api.do(t, http.MethodGet, "/api/v1/jobs/"+id+"/download", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["stage"] != string(models.StageTranscribing) || body["error"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	api := newTestAPI(t, &config.Config{})
	for _, body := range []string{
		`{}`,
		`{"source_reference":"https://example.com/video.mp4"}`,
		`{"source_reference":"dQw4w9WgXcQ","format":"docx"}`,
		`{"source_reference":"dQw4w9WgXcQ","language":"xx-YY"}`,
		`not json`,
	} {
		rec := api.do(t, http.MethodPost, "/api/v1/jobs", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, rec.Code)
		}
	}
}

func TestUnknownJob(t *testing.T) {
	api := newTestAPI(t, &config.Config{})
	for _, target := range []string{"/api/v1/jobs/nope", "/api/v1/jobs/nope/download"} {
		if rec := api.do(t, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
	if rec := api.do(t, http.MethodPost, "/api/v1/jobs/nope/cancel", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cancel status = %d", rec.Code)
	}
}

func TestCancelAndList(t *testing.T) {
	api := newTestAPI(t, &config.Config{})
	first := api.submit(t, `{"source_reference":"dQw4w9WgXcQ"}`)
	api.submit(t, `{"source_reference":"https://www.youtube.com/shorts/dQw4w9WgXcQ"}`)

	rec := api.do(t, http.MethodPost, "/api/v1/jobs/"+first+"/cancel", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if st := api.poll(t, first); st.Stage != models.StageFailed || st.ErrorDetail != models.CancelledDetail {
		t.Fatalf("cancelled job = %+v", st)
	}
	if rec = api.do(t, http.MethodPost, "/api/v1/jobs/"+first+"/cancel", ""); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/api/v1/jobs?page=1&size=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list models.JobList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.TotalCount != 2 || len(list.Jobs) != 1 || !list.HasMore {
		t.Fatalf("list = %+v", list)
	}
	if rec = api.do(t, http.MethodGet, "/api/v1/jobs?size=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad pagination status = %d", rec.Code)
	}
}

func TestJWTAuth(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{JwtSecretKey: "s3cret"}}
	api := newTestAPI(t, cfg)

	if rec := api.do(t, http.MethodGet, "/api/v1/jobs", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/v1/jobs", "", echo.HeaderAuthorization, "Bearer nonsense"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}
	token, err := utils.GenerateJWTToken("client-1", "s3cret", 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec := api.do(t, http.MethodGet, "/api/v1/jobs", "", echo.HeaderAuthorization, "Bearer "+token); rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d", rec.Code)
	}
}
