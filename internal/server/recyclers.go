package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListRecyclers(c *gin.Context) {
	resp, err := s.recyclerSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRecycler(c *gin.Context) {
	resp, err := s.recyclerSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ResetRecycler empties a recycler and opens a new fill cycle.
func (s *Server) ResetRecycler(c *gin.Context) {
	resp, err := s.recyclerSvc.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, "recycler.reset", "recycler", resp.ID, map[string]any{"fill_cycle": resp.FillCycle})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
