package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/recyclesim/internal/observability/logger"
	"github.com/smallbiznis/recyclesim/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonTruckRate   = "truck-rate"
	rateLimitReasonTriggerRate = "trigger-rate"
)

type intakeRateLimitKey struct {
	TruckID string `json:"truck_id"`
}

// IntakeRateLimit throttles truck reports per truck id.
func (s *Server) IntakeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		truckID, err := readIntakeKey(c)
		if err != nil {
			logger.FromContext(ctx).Warn("intake rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		res, err := s.limiter.AllowTruck(ctx, truckID)
		if err != nil {
			logger.FromContext(ctx).Warn("intake rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.denyRateLimit(c, res, rateLimitReasonTruckRate)
			return
		}

		s.usage.RecordRateLimit(ctx, normalizeRateLimitEndpoint(c), true, "")
		c.Next()
	}
}

// TriggerRateLimit throttles the manual process-next trigger.
func (s *Server) TriggerRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.AllowTrigger(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("trigger rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			s.denyRateLimit(c, res, rateLimitReasonTriggerRate)
			return
		}

		s.usage.RecordRateLimit(ctx, normalizeRateLimitEndpoint(c), true, "")
		c.Next()
	}
}

func (s *Server) denyRateLimit(c *gin.Context, res ratelimit.Result, reason string) {
	ctx := c.Request.Context()
	endpoint := normalizeRateLimitEndpoint(c)
	logger.FromContext(ctx).Warn("rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.usage.RecordRateLimit(ctx, endpoint, false, reason)

	c.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func readIntakeKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload intakeRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.TruckID), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
