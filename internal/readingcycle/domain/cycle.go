package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status is the reading cycle lifecycle state. Transitions are forward-only.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusClosed     Status = "CLOSED"
)

var statusRank = map[Status]int{
	StatusOpen:       0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusClosed:     3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether the move from s to target goes forward.
func (s Status) CanTransitionTo(target Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// ExportStatus tracks the invoice export outcome independently of the
// cycle status. Completion is final once the gate passes; a failed export
// stays retryable.
type ExportStatus string

const (
	ExportNone     ExportStatus = "NONE"
	ExportExported ExportStatus = "EXPORTED"
	ExportFailed   ExportStatus = "FAILED"
)

// ReadingCycle is one reading/billing period for a utility service.
// Cycles are never deleted, only transitioned to CLOSED.
type ReadingCycle struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ServiceID    snowflake.ID `json:"service_id" gorm:"column:service_id;not null;index"`
	PeriodFrom   time.Time    `json:"period_from" gorm:"column:period_from;not null"`
	PeriodTo     time.Time    `json:"period_to" gorm:"column:period_to;not null"`
	Status       Status       `json:"status" gorm:"type:text;not null;default:'OPEN'"`
	ExportStatus ExportStatus `json:"export_status" gorm:"column:export_status;type:text;not null;default:'NONE'"`
	ExportError  string       `json:"export_error,omitempty" gorm:"column:export_error;type:text"`
	ExportedAt   *time.Time   `json:"exported_at,omitempty" gorm:"column:exported_at"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReadingCycle) TableName() string { return "reading_cycles" }

// ContainsDate reports whether d lies inside the half-open period
// [PeriodFrom, PeriodTo).
func (c ReadingCycle) ContainsDate(d time.Time) bool {
	return !d.Before(c.PeriodFrom) && d.Before(c.PeriodTo)
}

// Repository persists reading cycles.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cycle *ReadingCycle) error
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReadingCycle, error)
	GetForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReadingCycle, error)
	List(ctx context.Context, db *gorm.DB) ([]ReadingCycle, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, at time.Time) error
	UpdateExport(ctx context.Context, db *gorm.DB, id snowflake.ID, status ExportStatus, exportErr string, at time.Time) error
}

var (
	ErrCycleNotFound = errors.New("cycle_not_found")

	// ErrCycleNotReady rejects completion while the gate conditions fail.
	ErrCycleNotReady = errors.New("cycle_not_ready")

	// ErrInvalidTransition rejects a backward or unknown status move.
	ErrInvalidTransition = errors.New("invalid_status_transition")

	// ErrCycleNotCompleted guards direct invoice export.
	ErrCycleNotCompleted = errors.New("cycle_not_completed")
)
