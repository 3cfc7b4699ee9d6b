package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	invoicedomain "github.com/smallbiznis/metra/internal/invoice/domain"
	meterdomain "github.com/smallbiznis/metra/internal/meter/domain"
	pricingdomain "github.com/smallbiznis/metra/internal/pricing/domain"
	readingdomain "github.com/smallbiznis/metra/internal/reading/domain"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/pkg/validation"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string                  `json:"type"`
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
	Details map[string]interface{}  `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	verrs := &validation.Errors{}
	verrs.Add("request", "invalid request body")
	return verrs
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErrs *validation.Errors
	if errors.As(err, &vErrs) && vErrs != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErrs.Fields,
		}
	}

	var conflict *assignmentdomain.ConflictError
	if errors.As(err, &conflict) {
		ids := make([]string, 0, len(conflict.UnitIDs))
		for _, id := range conflict.UnitIDs {
			ids = append(ids, id.String())
		}
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflict.Error(),
			Details: map[string]interface{}{"unit_ids": ids},
		}
	}

	switch {
	case errors.Is(err, pricingdomain.ErrScheduleUncovered):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "schedule would lose its unbounded top tier; pass force to accept the gap",
		}
	case errors.Is(err, cycledomain.ErrCycleNotReady):
		return http.StatusConflict, errorPayload{
			Type:    "not_ready",
			Message: "cycle has incomplete assignments or unassigned units",
		}
	case errors.Is(err, cycledomain.ErrInvalidTransition),
		errors.Is(err, cycledomain.ErrCycleNotCompleted),
		errors.Is(err, assignmentdomain.ErrAssignmentCompleted),
		errors.Is(err, meterdomain.ErrMeterRetired):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: err.Error(),
		}
	case errors.Is(err, directorydomain.ErrDirectoryUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "dependency_error",
			Message: "directory lookup failed",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, directorydomain.ErrUnitNotFound),
		errors.Is(err, directorydomain.ErrBuildingNotFound),
		errors.Is(err, directorydomain.ErrStaffNotFound),
		errors.Is(err, directorydomain.ErrServiceNotFound),
		errors.Is(err, meterdomain.ErrMeterNotFound),
		errors.Is(err, assignmentdomain.ErrAssignmentNotFound),
		errors.Is(err, readingdomain.ErrReadingNotFound),
		errors.Is(err, cycledomain.ErrCycleNotFound),
		errors.Is(err, pricingdomain.ErrTierNotFound),
		errors.Is(err, invoicedomain.ErrBatchNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
