package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	assignmentservice "github.com/smallbiznis/metra/internal/assignment/service"
	"github.com/smallbiznis/metra/pkg/validation"
)

type createAssignmentRequest struct {
	CycleID    string     `json:"cycle_id"`
	ServiceID  string     `json:"service_id"`
	BuildingID string     `json:"building_id,omitempty"`
	AssignedTo string     `json:"assigned_to"`
	UnitIDs    []string   `json:"unit_ids,omitempty"`
	Floors     []int      `json:"floors,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

func (s *Server) CreateAssignment(c *gin.Context) {
	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cycleID, err := parseID("cycle_id", req.CycleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	serviceID, err := parseID("service_id", req.ServiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assignedTo, err := parseID("assigned_to", req.AssignedTo)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buildingID *snowflake.ID
	if strings.TrimSpace(req.BuildingID) != "" {
		id, err := parseID("building_id", req.BuildingID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		buildingID = &id
	}

	unitIDs := make([]snowflake.ID, 0, len(req.UnitIDs))
	for _, raw := range req.UnitIDs {
		id, err := parseID("unit_ids", raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		unitIDs = append(unitIDs, id)
	}

	assignment, err := s.assignmentSvc.Create(c.Request.Context(), assignmentservice.CreateRequest{
		CycleID:    cycleID,
		ServiceID:  serviceID,
		BuildingID: buildingID,
		AssignedTo: assignedTo,
		UnitIDs:    unitIDs,
		Floors:     req.Floors,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": assignment})
}

func (s *Server) ListAssignments(c *gin.Context) {
	cycleID, err := parseOptionalID("cycle_id", c.Query("cycle_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	staffID, err := parseOptionalID("staff_id", c.Query("staff_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch {
	case cycleID != 0:
		assignments, err := s.assignmentSvc.ListByCycle(c.Request.Context(), cycleID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": assignments})
	case staffID != 0:
		activeOnly := strings.EqualFold(c.Query("active"), "true")
		assignments, err := s.assignmentSvc.ListByStaff(c.Request.Context(), staffID, activeOnly)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": assignments})
	default:
		verrs := &validation.Errors{}
		verrs.Add("cycle_id", "either cycle_id or staff_id is required")
		AbortWithError(c, verrs)
	}
}

func (s *Server) GetAssignmentByID(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assignment, err := s.assignmentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

func (s *Server) DeleteAssignment(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.assignmentSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) CompleteAssignment(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assignment, err := s.assignmentSvc.Complete(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

func (s *Server) GetAssignmentProgress(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	progress, err := s.progressSvc.AssignmentProgress(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": progress})
}
