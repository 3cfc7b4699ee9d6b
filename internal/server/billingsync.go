package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) SyncMissingBillingCycles(c *gin.Context) {
	created, err := s.billingSyncSvc.SyncMissing(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"created": created, "count": len(created)}})
}

func (s *Server) ListMissingBillingCycles(c *gin.Context) {
	missing, err := s.billingSyncSvc.ListMissing(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": missing})
}

func (s *Server) ListBillingCycles(c *gin.Context) {
	cycles, err := s.billingSyncSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cycles})
}
