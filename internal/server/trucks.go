package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
)

func (s *Server) ListTrucks(c *gin.Context) {
	resp, err := s.truckSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTruck(c *gin.Context) {
	id := c.Param("id")
	c.Set("truck_id", id)

	resp, err := s.truckSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TransitionTruck(c *gin.Context) {
	var req truckdomain.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = c.Param("id")
	c.Set("truck_id", req.ID)

	resp, err := s.truckSvc.Transition(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
