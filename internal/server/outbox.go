package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/recyclesim/internal/observability/logger"
	"go.uber.org/zap"
)

func (s *Server) OutboxStatus(c *gin.Context) {
	pending, err := s.outbox.CountPending(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"pending": pending}})
}

// FlushOutbox republishes pending outbox events now instead of waiting for
// the relay. Per-delivery publish failures stay pending and are reported as
// the remaining count.
func (s *Server) FlushOutbox(c *gin.Context) {
	ctx := c.Request.Context()
	published, err := s.dispatcher.DispatchPending(ctx, s.cfg.Events.RelayBatchSize)
	if err != nil {
		logger.FromContext(ctx).Warn("outbox flush incomplete", zap.Int("published", published), zap.Error(err))
	}

	pending, cerr := s.outbox.CountPending(ctx, s.db)
	if cerr != nil {
		AbortWithError(c, cerr)
		return
	}

	s.recordAudit(c, "outbox.flush", "outbox", "", map[string]any{
		"published": published,
		"pending":   pending,
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"published": published,
		"pending":   pending,
	}})
}
