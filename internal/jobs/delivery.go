package jobs

import "github.com/labstack/echo/v4"

type Handler interface {
	Submit() echo.HandlerFunc
	GetJob() echo.HandlerFunc
	ListJobs() echo.HandlerFunc
	Download() echo.HandlerFunc
	Cancel() echo.HandlerFunc
}
