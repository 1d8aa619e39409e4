package server

import (
	"net/http"

	jobsHttp "github.com/amankumarsingh77/yt-transcriber/internal/jobs/delivery/http"
	"github.com/amankumarsingh77/yt-transcriber/internal/middleware"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

func (s *Server) MapHandlers(e *echo.Echo) error {
	jobsHandlers := jobsHttp.NewJobsHandler(s.jobsUC, s.logger)

	mw := middleware.NewMiddlewareManager(s.cfg, s.cfg.Server.CorsOrigins, s.logger)

	e.Use(echoMiddleware.RequestID())
	e.Use(mw.RequestLogger())
	e.Use(echoMiddleware.RecoverWithConfig(echoMiddleware.RecoverConfig{
		StackSize:         1 << 10,
		DisablePrintStack: true,
	}))
	e.Use(mw.CORS())
	e.Use(echoMiddleware.BodyLimit("64K"))
	e.Use(mw.RateLimiter())

	e.GET("/health", func(c echo.Context) error {
		s.logger.Debugf("Health check RequestID: %s", utils.GetRequestID(c))
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})

	v1 := e.Group("/api/v1")
	jobsGroup := v1.Group("/jobs")
	jobsHttp.MapJobsRoutes(jobsGroup, jobsHandlers, mw)
	return nil
}
