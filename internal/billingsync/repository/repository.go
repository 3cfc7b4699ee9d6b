package repository

import (
	"context"

	"github.com/smallbiznis/metra/internal/billingsync/domain"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	"gorm.io/gorm"
)

type billingCycleRepository struct{}

// NewBillingCycleRepository builds the gorm-backed billing cycle store.
func NewBillingCycleRepository() domain.Repository {
	return &billingCycleRepository{}
}

func (r *billingCycleRepository) Insert(ctx context.Context, conn *gorm.DB, cycle *domain.BillingCycle) error {
	return conn.WithContext(ctx).Exec(`
		INSERT INTO billing_cycles (id, external_cycle_id, service_id, period_from, period_to,
			status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cycle.ID, cycle.ExternalCycleID, cycle.ServiceID, cycle.PeriodFrom, cycle.PeriodTo,
		cycle.Status, cycle.Metadata, cycle.CreatedAt, cycle.UpdatedAt).Error
}

// ListMissingReadingCycles is the reconciliation query: reading cycles
// with no billing counterpart.
func (r *billingCycleRepository) ListMissingReadingCycles(ctx context.Context, conn *gorm.DB) ([]cycledomain.ReadingCycle, error) {
	var cycles []cycledomain.ReadingCycle
	err := conn.WithContext(ctx).Raw(`
		SELECT rc.id, rc.service_id, rc.period_from, rc.period_to, rc.status,
		       rc.export_status, rc.export_error, rc.exported_at, rc.created_at, rc.updated_at
		FROM reading_cycles rc
		LEFT JOIN billing_cycles bc ON bc.external_cycle_id = rc.id
		WHERE bc.id IS NULL
		ORDER BY rc.period_from ASC, rc.id ASC
	`).Scan(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *billingCycleRepository) List(ctx context.Context, conn *gorm.DB) ([]domain.BillingCycle, error) {
	var cycles []domain.BillingCycle
	err := conn.WithContext(ctx).Raw(`
		SELECT id, external_cycle_id, service_id, period_from, period_to,
		       status, metadata, created_at, updated_at
		FROM billing_cycles
		ORDER BY period_from ASC, id ASC
	`).Scan(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}
