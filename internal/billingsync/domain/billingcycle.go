package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingCycle mirrors a ReadingCycle on the billing side. The unique
// external_cycle_id is the idempotency key for reconciliation.
type BillingCycle struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	ExternalCycleID snowflake.ID      `json:"external_cycle_id" gorm:"column:external_cycle_id;not null;uniqueIndex"`
	ServiceID       snowflake.ID      `json:"service_id" gorm:"column:service_id;not null"`
	PeriodFrom      time.Time         `json:"period_from" gorm:"column:period_from;not null"`
	PeriodTo        time.Time         `json:"period_to" gorm:"column:period_to;not null"`
	Status          string            `json:"status" gorm:"type:text;not null;default:'PENDING'"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BillingCycle) TableName() string { return "billing_cycles" }

// Repository persists billing cycles.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cycle *BillingCycle) error
	ListMissingReadingCycles(ctx context.Context, db *gorm.DB) ([]cycledomain.ReadingCycle, error)
	List(ctx context.Context, db *gorm.DB) ([]BillingCycle, error)
}
