package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
)

func (s *Server) SubmitDelivery(c *gin.Context) {
	var req deliverydomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, created, err := s.deliverySvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("delivery_id", resp.ID)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp, "replayed": !created})
}

func (s *Server) ListDeliveries(c *gin.Context) {
	var req deliverydomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.deliverySvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetDelivery(c *gin.Context) {
	id := c.Param("id")
	c.Set("delivery_id", id)

	resp, err := s.deliverySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeliveryStatement(c *gin.Context) {
	id := c.Param("id")
	c.Set("delivery_id", id)

	pdf, err := s.deliverySvc.Statement(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="delivery-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) RetryDelivery(c *gin.Context) {
	id := c.Param("id")
	c.Set("delivery_id", id)

	resp, err := s.deliverySvc.Retry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "delivery.retry", "delivery", resp.ID, map[string]any{
		"attempts":   resp.Attempts,
		"last_error": resp.LastError,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
