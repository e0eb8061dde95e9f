package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/observability/logger"
	"github.com/smallbiznis/recyclesim/internal/routeworker"
	"go.uber.org/zap"
)

type processNextResponse struct {
	Status     string                 `json:"status"`
	DeliveryID string                 `json:"delivery_id,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	Replayed   bool                   `json:"replayed,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Result     *deliverydomain.Result `json:"result,omitempty"`
}

// ProcessNext runs one unit of route work. Settlement outcomes are
// reported in the body; only infrastructure errors fail the request.
func (s *Server) ProcessNext(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := s.worker.RunOnce(ctx, routeworker.TriggerManual)
	if err != nil {
		logger.FromContext(ctx).Error("process-next failed", zap.Error(err))
		AbortWithError(c, fmt.Errorf("%w: %w", ErrServiceUnavailable, err))
		return
	}

	resp := processNextResponse{Status: run.Status}
	if run.Status == routeworker.StatusProcessed {
		resp.DeliveryID = run.DeliveryID.String()
		c.Set("delivery_id", resp.DeliveryID)
	}
	if res := run.Settlement; res != nil {
		resp.Outcome = string(res.Status)
		resp.Replayed = res.Replayed
		resp.Reason = res.ReasonCode()
		resp.Result = res.Record
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
