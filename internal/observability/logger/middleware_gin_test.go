package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareLogsDelivery(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/deliveries", func(c *gin.Context) {
		c.Set("delivery_id", "42")
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/deliveries", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "42", fields["delivery_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "/deliveries", fields["route"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		route     string
		status    int
		errorType string
		want      zapcore.Level
	}{
		{"/health", http.StatusServiceUnavailable, "", zap.DebugLevel},
		{"/deliveries/:id", http.StatusInternalServerError, "internal_error", zap.ErrorLevel},
		{"/deliveries", http.StatusTooManyRequests, "rate_limited", zap.WarnLevel},
		{"/deliveries", http.StatusBadRequest, "validation_error", zap.DebugLevel},
		{"/admin/recyclers/:id/reset", http.StatusBadRequest, "validation_error", zap.InfoLevel},
		{"/trucks", http.StatusOK, "", zap.InfoLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, requestLevel(tc.route, tc.status, tc.errorType), tc.route)
	}
}
