package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/meter/domain"
	"github.com/smallbiznis/metra/pkg/db"
	"gorm.io/gorm"
)

type meterRepository struct{}

// NewMeterRepository builds the gorm-backed meter store.
func NewMeterRepository() domain.Repository {
	return &meterRepository{}
}

const meterColumns = `id, unit_id, service_id, meter_code, active, last_reading, last_reading_date,
	       installed_at, retired_at, created_at, updated_at`

func (r *meterRepository) FindActive(ctx context.Context, conn *gorm.DB, unitID, serviceID snowflake.ID) (*domain.Meter, error) {
	var meters []domain.Meter
	err := conn.WithContext(ctx).Raw(`
		SELECT `+meterColumns+`
		FROM meters
		WHERE unit_id = ? AND service_id = ? AND active = ?
	`, unitID, serviceID, true).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, domain.ErrMeterNotFound
	}
	return &meters[0], nil
}

// FindOrCreate inserts the meter unless an active one already exists for the
// unit/service pair. A duplicate-key error from a concurrent insert is
// resolved by re-reading the winner.
func (r *meterRepository) FindOrCreate(ctx context.Context, conn *gorm.DB, meter *domain.Meter) (*domain.Meter, error) {
	existing, err := r.FindActive(ctx, conn, meter.UnitID, meter.ServiceID)
	if err == nil {
		return existing, nil
	}
	if err != domain.ErrMeterNotFound {
		return nil, err
	}

	meter.Active = true
	insert := conn.WithContext(ctx).Exec(`
		INSERT INTO meters (id, unit_id, service_id, meter_code, active, installed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, meter.ID, meter.UnitID, meter.ServiceID, meter.Code, meter.Active,
		meter.InstalledAt, meter.CreatedAt, meter.UpdatedAt)
	if insert.Error != nil {
		if db.IsDuplicateKeyErr(insert.Error) {
			return r.FindActive(ctx, conn, meter.UnitID, meter.ServiceID)
		}
		return nil, insert.Error
	}
	return meter, nil
}

func (r *meterRepository) Get(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Meter, error) {
	var meters []domain.Meter
	err := conn.WithContext(ctx).Raw(`
		SELECT `+meterColumns+`
		FROM meters
		WHERE id = ?
	`, id).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, domain.ErrMeterNotFound
	}
	return &meters[0], nil
}

func (r *meterRepository) ListByUnit(ctx context.Context, conn *gorm.DB, unitID snowflake.ID) ([]domain.Meter, error) {
	var meters []domain.Meter
	err := conn.WithContext(ctx).Raw(`
		SELECT `+meterColumns+`
		FROM meters
		WHERE unit_id = ?
		ORDER BY installed_at ASC
	`, unitID).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	return meters, nil
}

func (r *meterRepository) ListByBuilding(ctx context.Context, conn *gorm.DB, buildingID, serviceID snowflake.ID) ([]domain.Meter, error) {
	var meters []domain.Meter
	err := conn.WithContext(ctx).Raw(`
		SELECT m.id, m.unit_id, m.service_id, m.meter_code, m.active, m.last_reading, m.last_reading_date,
		       m.installed_at, m.retired_at, m.created_at, m.updated_at
		FROM meters m
		JOIN units u ON u.id = m.unit_id
		WHERE u.building_id = ? AND m.service_id = ? AND m.active = ?
		ORDER BY u.floor ASC, u.code ASC
	`, buildingID, serviceID, true).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	return meters, nil
}

// ListByStaffCycle returns the active meters behind a staff member's
// claimed units for one cycle.
func (r *meterRepository) ListByStaffCycle(ctx context.Context, conn *gorm.DB, staffID, cycleID snowflake.ID) ([]domain.Meter, error) {
	var meters []domain.Meter
	err := conn.WithContext(ctx).Raw(`
		SELECT DISTINCT m.id, m.unit_id, m.service_id, m.meter_code, m.active, m.last_reading, m.last_reading_date,
		       m.installed_at, m.retired_at, m.created_at, m.updated_at
		FROM meters m
		JOIN assignment_units au ON au.unit_id = m.unit_id AND au.service_id = m.service_id
		JOIN assignments a ON a.id = au.assignment_id
		WHERE a.assigned_to = ? AND a.cycle_id = ? AND m.active = ?
		ORDER BY m.unit_id ASC
	`, staffID, cycleID, true).Scan(&meters).Error
	if err != nil {
		return nil, err
	}
	return meters, nil
}

// Replace retires the old device and installs the replacement in one
// transaction. The replacement starts with no last reading so the next
// submission opens a fresh index sequence.
func (r *meterRepository) Replace(ctx context.Context, conn *gorm.DB, oldID snowflake.ID, replacement *domain.Meter) (*domain.Meter, error) {
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := r.Get(ctx, tx, oldID)
		if err != nil {
			return err
		}
		if !old.Active {
			return domain.ErrMeterRetired
		}

		if err := tx.Exec(`
			UPDATE meters SET active = ?, retired_at = ?, updated_at = ? WHERE id = ?
		`, false, replacement.InstalledAt, replacement.UpdatedAt, oldID).Error; err != nil {
			return err
		}

		replacement.UnitID = old.UnitID
		replacement.ServiceID = old.ServiceID
		replacement.Active = true
		return tx.Exec(`
			INSERT INTO meters (id, unit_id, service_id, meter_code, active, installed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, replacement.ID, replacement.UnitID, replacement.ServiceID, replacement.Code, replacement.Active,
			replacement.InstalledAt, replacement.CreatedAt, replacement.UpdatedAt).Error
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

func (r *meterRepository) UpdateLastReading(ctx context.Context, conn *gorm.DB, id snowflake.ID, value float64, at time.Time) error {
	return conn.WithContext(ctx).Exec(`
		UPDATE meters SET last_reading = ?, last_reading_date = ?, updated_at = ? WHERE id = ?
	`, value, at, at, id).Error
}
