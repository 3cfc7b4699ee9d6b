package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// MeterReading is one field-collected index for a meter under an
// assignment. The (meter_id, assignment_id) key makes resubmission an
// edit, never a duplicate; corrections are new upserts, rows are never
// deleted.
type MeterReading struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	MeterID      snowflake.ID `json:"meter_id" gorm:"column:meter_id;not null;uniqueIndex:idx_readings_meter_assignment"`
	AssignmentID snowflake.ID `json:"assignment_id" gorm:"column:assignment_id;not null;uniqueIndex:idx_readings_meter_assignment"`
	CycleID      snowflake.ID `json:"cycle_id" gorm:"column:cycle_id;not null;index"`
	UnitID       snowflake.ID `json:"unit_id" gorm:"column:unit_id;not null"`
	ReadingDate  time.Time    `json:"reading_date" gorm:"column:reading_date;not null"`
	CurrentIndex float64      `json:"current_index" gorm:"column:current_index;not null"`
	PrevIndex    float64      `json:"prev_index" gorm:"column:prev_index;not null"`
	Note         string       `json:"note,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MeterReading) TableName() string { return "meter_readings" }

// Consumption is the billed quantity for this reading.
func (r MeterReading) Consumption() float64 {
	if r.CurrentIndex < r.PrevIndex {
		return 0
	}
	return r.CurrentIndex - r.PrevIndex
}

// ListFilter narrows reading lookups; zero ids are ignored.
type ListFilter struct {
	CycleID      snowflake.ID
	UnitID       snowflake.ID
	AssignmentID snowflake.ID
}

// Repository persists meter readings.
type Repository interface {
	FindByMeterAssignment(ctx context.Context, db *gorm.DB, meterID, assignmentID snowflake.ID) (*MeterReading, error)
	Insert(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	Update(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]MeterReading, error)
	ListByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]MeterReading, error)
}

var ErrReadingNotFound = errors.New("reading_not_found")
