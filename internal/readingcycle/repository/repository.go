package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/pkg/db"
	"gorm.io/gorm"
)

type cycleRepository struct{}

// NewCycleRepository builds the gorm-backed reading cycle store.
func NewCycleRepository() domain.Repository {
	return &cycleRepository{}
}

const cycleColumns = `id, service_id, period_from, period_to, status,
	       export_status, export_error, exported_at, created_at, updated_at`

func (r *cycleRepository) Insert(ctx context.Context, conn *gorm.DB, cycle *domain.ReadingCycle) error {
	return conn.WithContext(ctx).Exec(`
		INSERT INTO reading_cycles (id, service_id, period_from, period_to, status,
			export_status, export_error, exported_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cycle.ID, cycle.ServiceID, cycle.PeriodFrom, cycle.PeriodTo, cycle.Status,
		cycle.ExportStatus, cycle.ExportError, cycle.ExportedAt, cycle.CreatedAt, cycle.UpdatedAt).Error
}

func (r *cycleRepository) Get(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.ReadingCycle, error) {
	return r.get(ctx, conn, id, "")
}

// GetForUpdate row-locks the cycle so the completion gate and the status
// write happen atomically relative to concurrent assignment completion.
func (r *cycleRepository) GetForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.ReadingCycle, error) {
	return r.get(ctx, conn, id, db.LockingClause(conn))
}

func (r *cycleRepository) get(ctx context.Context, conn *gorm.DB, id snowflake.ID, locking string) (*domain.ReadingCycle, error) {
	var cycles []domain.ReadingCycle
	err := conn.WithContext(ctx).Raw(`
		SELECT `+cycleColumns+`
		FROM reading_cycles
		WHERE id = ?
	`+locking, id).Scan(&cycles).Error
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, domain.ErrCycleNotFound
	}
	return &cycles[0], nil
}

func (r *cycleRepository) List(ctx context.Context, conn *gorm.DB) ([]domain.ReadingCycle, error) {
	var cycles []domain.ReadingCycle
	err := conn.WithContext(ctx).Raw(`
		SELECT ` + cycleColumns + `
		FROM reading_cycles
		ORDER BY period_from DESC, id DESC
	`).Scan(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *cycleRepository) UpdateStatus(ctx context.Context, conn *gorm.DB, id snowflake.ID, status domain.Status, at time.Time) error {
	res := conn.WithContext(ctx).Exec(`
		UPDATE reading_cycles SET status = ?, updated_at = ? WHERE id = ?
	`, status, at, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCycleNotFound
	}
	return nil
}

func (r *cycleRepository) UpdateExport(ctx context.Context, conn *gorm.DB, id snowflake.ID, status domain.ExportStatus, exportErr string, at time.Time) error {
	var exportedAt *time.Time
	if status == domain.ExportExported {
		exportedAt = &at
	}
	res := conn.WithContext(ctx).Exec(`
		UPDATE reading_cycles SET export_status = ?, export_error = ?, exported_at = ?, updated_at = ?
		WHERE id = ?
	`, status, exportErr, exportedAt, at, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCycleNotFound
	}
	return nil
}
