package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetPlayerCredits(c *gin.Context) {
	resp, err := s.creditsSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlayerCredits(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || (limit != nil && *limit < 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer"))
		return
	}

	n := 0
	if limit != nil {
		n = *limit
	}
	resp, err := s.creditsSvc.List(c.Request.Context(), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
