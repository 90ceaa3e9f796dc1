package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/autopecas/sigesync/internal/infrastructure/sige"
	"github.com/autopecas/sigesync/internal/logging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const correlationHeader = "X-Correlation-Id"

// CORSMiddleware allows the admin UI origins. Entries ending in "*" match by prefix and a
// lone "*" allows every origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With", correlationHeader}
	config.ExposeHeaders = []string{"Content-Length", "Content-Disposition", correlationHeader, "X-Sync-Warning"}
	config.MaxAge = time.Hour

	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		config.AllowAllOrigins = true
		return cors.New(config)
	}

	config.AllowCredentials = true
	config.AllowOriginFunc = func(origin string) bool {
		return isAllowedOrigin(origin, allowedOrigins)
	}
	return cors.New(config)
}

// isAllowedOrigin checks if the origin is in the allowed list
func isAllowedOrigin(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range allowedOrigins {
		if strings.HasSuffix(allowed, "*") {
			if strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*")) {
				return true
			}
		} else if origin == allowed {
			return true
		}
	}
	return false
}

// RequestContextMiddleware attaches a correlation id and the caller's SIGE bearer token
// to the request context
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(correlationHeader))
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(correlationHeader, cid)
		ctx := logging.WithCorrelationID(c.Request.Context(), cid)

		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			ctx = sige.WithToken(ctx, auth[7:])
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// LoggerMiddleware logs one line per request through logrus
func LoggerMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logging.FromContext(c.Request.Context(), logger).WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("[HTTP] request")
		case status >= http.StatusBadRequest:
			entry.Warn("[HTTP] request")
		default:
			entry.Info("[HTTP] request")
		}
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}
