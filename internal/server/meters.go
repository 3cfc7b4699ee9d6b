package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/metra/pkg/validation"
)

func (s *Server) ListMeters(c *gin.Context) {
	staffID, err := parseOptionalID("staff_id", c.Query("staff_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	cycleID, err := parseOptionalID("cycle_id", c.Query("cycle_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if staffID == 0 || cycleID == 0 {
		verrs := &validation.Errors{}
		verrs.Add("staff_id", "staff_id and cycle_id are required")
		AbortWithError(c, verrs)
		return
	}

	meters, err := s.meterSvc.ListByStaffCycle(c.Request.Context(), staffID, cycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": meters})
}

func (s *Server) ListBuildingMeters(c *gin.Context) {
	buildingID, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	serviceID, err := parseOptionalID("service_id", c.Query("service_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if serviceID == 0 {
		verrs := &validation.Errors{}
		verrs.Add("service_id", "is required")
		AbortWithError(c, verrs)
		return
	}

	meters, err := s.meterSvc.ListByBuilding(c.Request.Context(), buildingID, serviceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": meters})
}

func (s *Server) ListUnitMeters(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	meters, err := s.meterSvc.ListByUnit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": meters})
}

type replaceMeterRequest struct {
	Code string `json:"meter_code"`
}

func (s *Server) ReplaceMeter(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req replaceMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		verrs := &validation.Errors{}
		verrs.Add("meter_code", "is required")
		AbortWithError(c, verrs)
		return
	}

	meter, err := s.meterSvc.Replace(c.Request.Context(), id, code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": meter})
}
