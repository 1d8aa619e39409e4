package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/labstack/echo/v4"
)

type ClientCtxKey struct{}

// AuthJWTMiddleware requires a valid bearer token (or jwt-token cookie)
// signed with server.jwtSecretKey. Without a configured secret the API is open.
func (mw *MiddlewareManager) AuthJWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if mw.cfg.Server.JwtSecretKey == "" {
			return next
		}
		return func(c echo.Context) error {
			tokenString := ""
			if bearerHeader := c.Request().Header.Get(echo.HeaderAuthorization); bearerHeader != "" {
				headerParts := strings.Split(bearerHeader, " ")
				if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "Bearer") {
					mw.logger.Warnf("RequestID: %s, malformed authorization header", utils.GetRequestID(c))
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				}
				tokenString = headerParts[1]
			} else if cookie, err := c.Cookie("jwt-token"); err == nil {
				tokenString = cookie.Value
			}
			if tokenString == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			claims, err := utils.ValidateToken(tokenString, mw.cfg.Server.JwtSecretKey)
			if err != nil {
				mw.logger.Warnf("RequestID: %s, validateJWTToken: %v", utils.GetRequestID(c), err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			c.Set("client_id", claims.ClientID)
			ctx := context.WithValue(c.Request().Context(), ClientCtxKey{}, claims.ClientID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
