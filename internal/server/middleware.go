package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorHeader = "X-Actor"

// RequestLogger logs one structured line per request after it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// actorFrom reads the caller identity the edge proxy injected. The trust
// boundary is upstream: this service never authenticates, it only
// authorizes a resolved actor.
func actorFrom(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(actorHeader))
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if actor == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// IngestRateLimit throttles ingestion per data source. Ingestors identify
// their source via the X-Data-Source header; requests without one share a
// single default bucket. Limiter outages fail open.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ingestLimiter == nil || !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader("X-Data-Source"))
		if key == "" {
			key = "default"
		}
		result, err := s.ingestLimiter.AllowSource(c.Request.Context(), key)
		if err != nil {
			s.log.Warn("ingest rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", result.RetryAfter.Round(time.Second).String())
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
