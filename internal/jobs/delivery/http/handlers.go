package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/logger"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type jobsHandler struct {
	jobsUC jobs.UseCase
	logger logger.Logger
}

func NewJobsHandler(jobsUC jobs.UseCase, logger logger.Logger) jobs.Handler {
	return &jobsHandler{
		jobsUC: jobsUC,
		logger: logger,
	}
}

// jobStatus is the polling view of a job.
type jobStatus struct {
	JobID           string        `json:"job_id"`
	Stage           models.Stage  `json:"stage"`
	ProgressPercent int           `json:"progress_percent"`
	Message         string        `json:"message,omitempty"`
	ErrorDetail     string        `json:"error_detail,omitempty"`
	Title           string        `json:"title,omitempty"`
	Language        string        `json:"language"`
	Format          models.Format `json:"format"`
	CancelRequested bool          `json:"cancel_requested,omitempty"`
	DownloadURL     string        `json:"download_url,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func newJobStatus(c echo.Context, job *models.Job) *jobStatus {
	st := &jobStatus{
		JobID:           job.JobID,
		Stage:           job.Stage,
		ProgressPercent: job.ProgressPercent,
		Message:         job.Message,
		ErrorDetail:     job.ErrorDetail,
		Title:           job.Title,
		Language:        job.Language,
		Format:          job.Format,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if job.Stage == models.StageDone {
		st.DownloadURL = c.Echo().Reverse("jobs.download", job.JobID)
	}
	return st
}

func (h *jobsHandler) Submit() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.SubmitInput{}
		if err := c.Bind(input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		}
		job, err := h.jobsUC.Submit(c.Request().Context(), input)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusCreated, map[string]string{"job_id": job.JobID})
	}
}

func (h *jobsHandler) GetJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := h.jobsUC.GetJob(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, newJobStatus(c, job))
	}
}

func (h *jobsHandler) ListJobs() echo.HandlerFunc {
	return func(c echo.Context) error {
		pagination, err := utils.GetPaginationFromCtx(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		list, err := h.jobsUC.ListJobs(c.Request().Context(), pagination)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

// Download streams the artifact of a finished job. With ?redirect=true the
// client is sent to a presigned URL instead when the store can issue one.
func (h *jobsHandler) Download() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		jobID := c.Param("job_id")

		if redirect, _ := strconv.ParseBool(c.QueryParam("redirect")); redirect {
			url, err := h.jobsUC.DownloadURL(ctx, jobID)
			if err == nil {
				return c.Redirect(http.StatusFound, url)
			}
			if !errors.Is(err, jobs.ErrPresignUnsupported) {
				return h.errorResponse(c, err)
			}
		}

		dl, err := h.jobsUC.Download(ctx, jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotReady) && dl != nil && dl.Job != nil {
				return c.JSON(http.StatusConflict, map[string]interface{}{
					"error":            err.Error(),
					"stage":            dl.Job.Stage,
					"progress_percent": dl.Job.ProgressPercent,
				})
			}
			return h.errorResponse(c, err)
		}
		defer dl.Body.Close()

		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.Filename))
		if dl.Artifact.Size > 0 {
			c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(dl.Artifact.Size, 10))
		}
		return c.Stream(http.StatusOK, dl.Artifact.ContentType, dl.Body)
	}
}

func (h *jobsHandler) Cancel() echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := h.jobsUC.Cancel(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, newJobStatus(c, job))
	}
}

func (h *jobsHandler) errorResponse(c echo.Context, err error) error {
	var (
		verr *jobs.ValidationError
		ferr *jobs.FailedError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, jobs.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	case errors.Is(err, jobs.ErrNotReady):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, jobs.ErrJobTerminal):
		return c.JSON(http.StatusConflict, map[string]string{"error": "job already finished"})
	case errors.As(err, &ferr):
		return c.JSON(http.StatusGone, map[string]string{"error": "job failed", "error_detail": ferr.Detail})
	}
	h.logger.Errorf("RequestID: %s, error: %v", utils.GetRequestID(c), err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
