package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/reading/domain"
	"gorm.io/gorm"
)

type readingRepository struct{}

// NewReadingRepository builds the gorm-backed reading store.
func NewReadingRepository() domain.Repository {
	return &readingRepository{}
}

const readingColumns = `id, meter_id, assignment_id, cycle_id, unit_id, reading_date,
	       current_index, prev_index, note, created_at, updated_at`

func (r *readingRepository) FindByMeterAssignment(ctx context.Context, conn *gorm.DB, meterID, assignmentID snowflake.ID) (*domain.MeterReading, error) {
	var readings []domain.MeterReading
	err := conn.WithContext(ctx).Raw(`
		SELECT `+readingColumns+`
		FROM meter_readings
		WHERE meter_id = ? AND assignment_id = ?
	`, meterID, assignmentID).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, domain.ErrReadingNotFound
	}
	return &readings[0], nil
}

func (r *readingRepository) Insert(ctx context.Context, conn *gorm.DB, reading *domain.MeterReading) error {
	return conn.WithContext(ctx).Exec(`
		INSERT INTO meter_readings (id, meter_id, assignment_id, cycle_id, unit_id, reading_date,
			current_index, prev_index, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, reading.ID, reading.MeterID, reading.AssignmentID, reading.CycleID, reading.UnitID,
		reading.ReadingDate, reading.CurrentIndex, reading.PrevIndex, reading.Note,
		reading.CreatedAt, reading.UpdatedAt).Error
}

func (r *readingRepository) Update(ctx context.Context, conn *gorm.DB, reading *domain.MeterReading) error {
	res := conn.WithContext(ctx).Exec(`
		UPDATE meter_readings
		SET reading_date = ?, current_index = ?, note = ?, updated_at = ?
		WHERE id = ?
	`, reading.ReadingDate, reading.CurrentIndex, reading.Note, reading.UpdatedAt, reading.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrReadingNotFound
	}
	return nil
}

func (r *readingRepository) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]domain.MeterReading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM meter_readings
		WHERE 1 = 1`
	var args []interface{}
	if filter.CycleID != 0 {
		query += ` AND cycle_id = ?`
		args = append(args, filter.CycleID)
	}
	if filter.UnitID != 0 {
		query += ` AND unit_id = ?`
		args = append(args, filter.UnitID)
	}
	if filter.AssignmentID != 0 {
		query += ` AND assignment_id = ?`
		args = append(args, filter.AssignmentID)
	}
	query += ` ORDER BY reading_date ASC, id ASC`

	var readings []domain.MeterReading
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&readings).Error; err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *readingRepository) ListByCycle(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) ([]domain.MeterReading, error) {
	return r.List(ctx, conn, domain.ListFilter{CycleID: cycleID})
}
