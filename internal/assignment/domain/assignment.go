package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Assignment is a staff member's exclusive claim over a set of units for
// one cycle and service. A nil BuildingID scopes the claim across all
// buildings. The unit set is authoritative; floors are only a convenience
// view at creation time.
type Assignment struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	CycleID     snowflake.ID  `json:"cycle_id" gorm:"column:cycle_id;not null;index"`
	ServiceID   snowflake.ID  `json:"service_id" gorm:"column:service_id;not null"`
	BuildingID  *snowflake.ID `json:"building_id,omitempty" gorm:"column:building_id"`
	AssignedTo  snowflake.ID  `json:"assigned_to" gorm:"column:assigned_to;not null;index"`
	StartDate   time.Time     `json:"start_date" gorm:"column:start_date;not null"`
	EndDate     time.Time     `json:"end_date" gorm:"column:end_date;not null"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	UnitIDs []snowflake.ID `json:"unit_ids" gorm:"-"`
}

func (Assignment) TableName() string { return "assignments" }

// AssignmentUnit is one row of an assignment's unit set. The unique key
// over (cycle_id, service_id, unit_id) closes the double-assignment race
// at commit time.
type AssignmentUnit struct {
	AssignmentID snowflake.ID `json:"assignment_id" gorm:"column:assignment_id;primaryKey"`
	UnitID       snowflake.ID `json:"unit_id" gorm:"column:unit_id;primaryKey;uniqueIndex:idx_assignment_units_claim,priority:3"`
	CycleID      snowflake.ID `json:"cycle_id" gorm:"column:cycle_id;not null;uniqueIndex:idx_assignment_units_claim,priority:1"`
	ServiceID    snowflake.ID `json:"service_id" gorm:"column:service_id;not null;uniqueIndex:idx_assignment_units_claim,priority:2"`
}

func (AssignmentUnit) TableName() string { return "assignment_units" }

// Repository persists assignments and their unit sets.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, assignment *Assignment) error
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Assignment, error)
	ListByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]Assignment, error)
	ListByStaff(ctx context.Context, db *gorm.DB, staffID snowflake.ID, activeOnly bool) ([]Assignment, error)
	ClaimedUnits(ctx context.Context, db *gorm.DB, cycleID, serviceID snowflake.ID, unitIDs []snowflake.ID) ([]snowflake.ID, error)
	UnitIDs(ctx context.Context, db *gorm.DB, assignmentID snowflake.ID) ([]snowflake.ID, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	CountIncompleteByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) (int64, error)
}

var (
	ErrAssignmentNotFound = errors.New("assignment_not_found")

	// ErrAssignmentCompleted protects completed assignments from deletion;
	// they are immutable historical records.
	ErrAssignmentCompleted = errors.New("assignment_completed")
)

// ConflictError reports units already claimed by another assignment for
// the same cycle and service.
type ConflictError struct {
	UnitIDs []snowflake.ID `json:"unit_ids"`
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.UnitIDs))
	for _, id := range e.UnitIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("units already assigned: %s", strings.Join(ids, ", "))
}
