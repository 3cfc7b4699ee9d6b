package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/pricing/domain"
	"gorm.io/gorm"
)

type tierRepository struct{}

// NewTierRepository builds the gorm-backed pricing tier store.
func NewTierRepository() domain.Repository {
	return &tierRepository{}
}

const tierColumns = `id, service_id, tier_order, min_quantity, max_quantity, unit_price_cents,
	       effective_from, effective_until, active, created_at, updated_at`

func (r *tierRepository) ListByService(ctx context.Context, conn *gorm.DB, serviceID snowflake.ID) ([]domain.PricingTier, error) {
	var tiers []domain.PricingTier
	err := conn.WithContext(ctx).Raw(`
		SELECT `+tierColumns+`
		FROM pricing_tiers
		WHERE service_id = ?
		ORDER BY tier_order ASC, min_quantity ASC
	`, serviceID).Scan(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *tierRepository) ListEffective(ctx context.Context, conn *gorm.DB, serviceID snowflake.ID, at time.Time) ([]domain.PricingTier, error) {
	var tiers []domain.PricingTier
	err := conn.WithContext(ctx).Raw(`
		SELECT `+tierColumns+`
		FROM pricing_tiers
		WHERE service_id = ?
		  AND active = ?
		  AND effective_from <= ?
		  AND (effective_until IS NULL OR effective_until > ?)
		ORDER BY min_quantity ASC
	`, serviceID, true, at, at).Scan(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *tierRepository) Insert(ctx context.Context, conn *gorm.DB, tier *domain.PricingTier) error {
	return conn.WithContext(ctx).Exec(`
		INSERT INTO pricing_tiers (id, service_id, tier_order, min_quantity, max_quantity, unit_price_cents,
			effective_from, effective_until, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tier.ID, tier.ServiceID, tier.TierOrder, tier.MinQuantity, tier.MaxQuantity, tier.UnitPriceCents,
		tier.EffectiveFrom, tier.EffectiveUntil, tier.Active, tier.CreatedAt, tier.UpdatedAt).Error
}

func (r *tierRepository) Update(ctx context.Context, conn *gorm.DB, tier *domain.PricingTier) error {
	res := conn.WithContext(ctx).Exec(`
		UPDATE pricing_tiers
		SET tier_order = ?, min_quantity = ?, max_quantity = ?, unit_price_cents = ?,
		    effective_from = ?, effective_until = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, tier.TierOrder, tier.MinQuantity, tier.MaxQuantity, tier.UnitPriceCents,
		tier.EffectiveFrom, tier.EffectiveUntil, tier.Active, tier.UpdatedAt, tier.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTierNotFound
	}
	return nil
}

func (r *tierRepository) Deactivate(ctx context.Context, conn *gorm.DB, id snowflake.ID, at time.Time) error {
	res := conn.WithContext(ctx).Exec(`
		UPDATE pricing_tiers SET active = ?, updated_at = ? WHERE id = ? AND active = ?
	`, false, at, id, true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTierNotFound
	}
	return nil
}

func (r *tierRepository) Get(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PricingTier, error) {
	var tiers []domain.PricingTier
	err := conn.WithContext(ctx).Raw(`
		SELECT `+tierColumns+`
		FROM pricing_tiers
		WHERE id = ?
	`, id).Scan(&tiers).Error
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, domain.ErrTierNotFound
	}
	return &tiers[0], nil
}
