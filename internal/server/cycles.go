package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	readingcycleservice "github.com/smallbiznis/metra/internal/readingcycle/service"
	"github.com/smallbiznis/metra/pkg/validation"
)

func (s *Server) ListCycles(c *gin.Context) {
	cycles, err := s.cycleSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cycles})
}

type createCycleRequest struct {
	ServiceID  string    `json:"service_id"`
	PeriodFrom time.Time `json:"period_from"`
	PeriodTo   time.Time `json:"period_to"`
}

func (s *Server) CreateCycle(c *gin.Context) {
	var req createCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	serviceID, err := parseID("service_id", req.ServiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycle, err := s.cycleSvc.Create(c.Request.Context(), readingcycleservice.CreateRequest{
		ServiceID:  serviceID,
		PeriodFrom: req.PeriodFrom,
		PeriodTo:   req.PeriodTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": cycle})
}

func (s *Server) GetCycleByID(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycle, err := s.cycleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) ChangeCycleStatus(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Status == "" {
		verrs := &validation.Errors{}
		verrs.Add("status", "is required")
		AbortWithError(c, verrs)
		return
	}

	cycle, err := s.cycleSvc.ChangeStatus(c.Request.Context(), id, cycledomain.Status(req.Status))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cycle})
}

func (s *Server) CompleteCycle(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.cycleSvc.Complete(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ExportCycleInvoices(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.cycleSvc.ExportInvoices(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetCycleUnassignedInfo(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	info, err := s.progressSvc.CycleUnassignedInfo(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) ListCycleInvoices(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	batches, err := s.invoiceSvc.ListBatches(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batches})
}
