package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PricingTier prices a quantity band in a progressive-rate schedule.
// MinQuantity and MaxQuantity are inclusive; a nil MaxQuantity leaves the
// band unbounded above. A tier participates in pricing only while active
// and inside its effective window.
type PricingTier struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ServiceID      snowflake.ID `json:"service_id" gorm:"column:service_id;not null;index"`
	TierOrder      int          `json:"tier_order" gorm:"column:tier_order;not null;default:0"`
	MinQuantity    float64      `json:"min_quantity" gorm:"column:min_quantity;not null"`
	MaxQuantity    *float64     `json:"max_quantity,omitempty" gorm:"column:max_quantity"`
	UnitPriceCents int64        `json:"unit_price_cents" gorm:"column:unit_price_cents;not null"`
	EffectiveFrom  time.Time    `json:"effective_from" gorm:"column:effective_from;not null"`
	EffectiveUntil *time.Time   `json:"effective_until,omitempty" gorm:"column:effective_until"`
	Active         bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingTier) TableName() string { return "pricing_tiers" }

// EffectiveAt reports whether the tier prices quantities at the given time.
func (t PricingTier) EffectiveAt(at time.Time) bool {
	if !t.Active {
		return false
	}
	if at.Before(t.EffectiveFrom) {
		return false
	}
	if t.EffectiveUntil != nil && !at.Before(*t.EffectiveUntil) {
		return false
	}
	return true
}

// Repository persists pricing tiers.
type Repository interface {
	ListByService(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]PricingTier, error)
	ListEffective(ctx context.Context, db *gorm.DB, serviceID snowflake.ID, at time.Time) ([]PricingTier, error)
	Insert(ctx context.Context, db *gorm.DB, tier *PricingTier) error
	Update(ctx context.Context, db *gorm.DB, tier *PricingTier) error
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PricingTier, error)
}

var (
	ErrTierNotFound = errors.New("tier_not_found")

	// ErrScheduleUncovered rejects a write that would leave the schedule
	// without an unbounded top band, unless the caller forces it.
	ErrScheduleUncovered = errors.New("schedule_uncovered")
)
