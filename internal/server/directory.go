package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListBuildings(c *gin.Context) {
	buildings, err := s.directorySvc.ListBuildings(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": buildings})
}

func (s *Server) ListBuildingUnits(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	units, err := s.directorySvc.ListUnits(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": units})
}

func (s *Server) ListStaff(c *gin.Context) {
	staff, err := s.directorySvc.ListStaff(c.Request.Context(), c.Query("role"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": staff})
}
