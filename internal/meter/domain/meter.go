package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Meter is a physical metering device bound to a unit and a utility service.
// Meters are auto-provisioned the first time a reading arrives for a
// unit/service pair that has no active device yet.
type Meter struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	UnitID          snowflake.ID `json:"unit_id" gorm:"column:unit_id;not null;index:idx_meters_unit_service"`
	ServiceID       snowflake.ID `json:"service_id" gorm:"column:service_id;not null;index:idx_meters_unit_service"`
	Code            string       `json:"code" gorm:"column:meter_code;type:text;not null"`
	Active          bool         `json:"active" gorm:"not null;default:true"`
	LastReading     *float64     `json:"last_reading,omitempty" gorm:"column:last_reading"`
	LastReadingDate *time.Time   `json:"last_reading_date,omitempty" gorm:"column:last_reading_date"`
	InstalledAt     time.Time    `json:"installed_at" gorm:"not null"`
	RetiredAt       *time.Time   `json:"retired_at,omitempty" gorm:"column:retired_at"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Meter) TableName() string { return "meters" }

// Repository persists meters.
type Repository interface {
	FindActive(ctx context.Context, db *gorm.DB, unitID, serviceID snowflake.ID) (*Meter, error)
	FindOrCreate(ctx context.Context, db *gorm.DB, meter *Meter) (*Meter, error)
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Meter, error)
	ListByUnit(ctx context.Context, db *gorm.DB, unitID snowflake.ID) ([]Meter, error)
	ListByBuilding(ctx context.Context, db *gorm.DB, buildingID, serviceID snowflake.ID) ([]Meter, error)
	ListByStaffCycle(ctx context.Context, db *gorm.DB, staffID, cycleID snowflake.ID) ([]Meter, error)
	Replace(ctx context.Context, db *gorm.DB, oldID snowflake.ID, replacement *Meter) (*Meter, error)
	UpdateLastReading(ctx context.Context, db *gorm.DB, id snowflake.ID, value float64, at time.Time) error
}

var (
	ErrMeterNotFound = errors.New("meter_not_found")
	ErrMeterRetired  = errors.New("meter_retired")
)
