package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	readingdomain "github.com/smallbiznis/metra/internal/reading/domain"
	readingservice "github.com/smallbiznis/metra/internal/reading/service"
)

type submitReadingRequest struct {
	AssignmentID string     `json:"assignment_id"`
	MeterID      string     `json:"meter_id"`
	ReadingDate  *time.Time `json:"reading_date,omitempty"`
	CurrentIndex float64    `json:"current_index"`
	Note         string     `json:"note,omitempty"`
}

func (s *Server) SubmitReading(c *gin.Context) {
	var req submitReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	assignmentID, err := parseID("assignment_id", req.AssignmentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	meterID, err := parseID("meter_id", req.MeterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reading, err := s.readingSvc.Submit(c.Request.Context(), readingservice.SubmitRequest{
		AssignmentID: assignmentID,
		MeterID:      meterID,
		ReadingDate:  req.ReadingDate,
		CurrentIndex: req.CurrentIndex,
		Note:         strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reading})
}

type submitUnitReadingRequest struct {
	AssignmentID string     `json:"assignment_id"`
	UnitID       string     `json:"unit_id"`
	ReadingDate  *time.Time `json:"reading_date,omitempty"`
	CurrentIndex float64    `json:"current_index"`
	Note         string     `json:"note,omitempty"`
}

func (s *Server) SubmitReadingForUnit(c *gin.Context) {
	var req submitUnitReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	assignmentID, err := parseID("assignment_id", req.AssignmentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	unitID, err := parseID("unit_id", req.UnitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reading, err := s.readingSvc.SubmitForUnit(c.Request.Context(), assignmentID, unitID,
		req.ReadingDate, req.CurrentIndex, strings.TrimSpace(req.Note))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reading})
}

type bulkSubmitItem struct {
	MeterID      string     `json:"meter_id,omitempty"`
	UnitID       string     `json:"unit_id,omitempty"`
	ReadingDate  *time.Time `json:"reading_date,omitempty"`
	CurrentIndex float64    `json:"current_index"`
	Note         string     `json:"note,omitempty"`
}

type bulkSubmitRequest struct {
	AssignmentID string           `json:"assignment_id"`
	Items        []bulkSubmitItem `json:"items"`
}

func (s *Server) BulkSubmitReadings(c *gin.Context) {
	var req bulkSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	assignmentID, err := parseID("assignment_id", req.AssignmentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]readingservice.BulkItem, 0, len(req.Items))
	for _, raw := range req.Items {
		item := readingservice.BulkItem{
			ReadingDate:  raw.ReadingDate,
			CurrentIndex: raw.CurrentIndex,
			Note:         strings.TrimSpace(raw.Note),
		}
		// malformed ids become per-item failures, not a batch abort
		if strings.TrimSpace(raw.MeterID) != "" {
			if id, err := parseID("meter_id", raw.MeterID); err == nil {
				item.MeterID = id
			}
		}
		if strings.TrimSpace(raw.UnitID) != "" {
			if id, err := parseID("unit_id", raw.UnitID); err == nil {
				item.UnitID = id
			}
		}
		items = append(items, item)
	}

	result, err := s.readingSvc.BulkSubmit(c.Request.Context(), assignmentID, items)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListReadings(c *gin.Context) {
	cycleID, err := parseOptionalID("cycle_id", c.Query("cycle_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	unitID, err := parseOptionalID("unit_id", c.Query("unit_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	assignmentID, err := parseOptionalID("assignment_id", c.Query("assignment_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	readings, err := s.readingSvc.List(c.Request.Context(), readingdomain.ListFilter{
		CycleID:      cycleID,
		UnitID:       unitID,
		AssignmentID: assignmentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": readings})
}
