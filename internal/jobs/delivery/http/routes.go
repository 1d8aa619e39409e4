package http

import (
	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/middleware"
	"github.com/labstack/echo/v4"
)

func MapJobsRoutes(jobsGroup *echo.Group, h jobs.Handler, mw *middleware.MiddlewareManager) {
	jobsGroup.Use(mw.AuthJWTMiddleware())
	jobsGroup.POST("", h.Submit())
	jobsGroup.GET("", h.ListJobs())
	jobsGroup.GET("/:job_id", h.GetJob())
	jobsGroup.GET("/:job_id/download", h.Download()).Name = "jobs.download"
	jobsGroup.POST("/:job_id/cancel", h.Cancel())
}
