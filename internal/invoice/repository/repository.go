package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/invoice/domain"
	"gorm.io/gorm"
)

type invoiceRepository struct{}

// NewInvoiceRepository builds the gorm-backed invoice store.
func NewInvoiceRepository() domain.Repository {
	return &invoiceRepository{}
}

func (r *invoiceRepository) ListCycleReadingRows(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) ([]domain.ReadingRow, error) {
	var rows []domain.ReadingRow
	err := conn.WithContext(ctx).Raw(`
		SELECT mr.id AS reading_id, mr.meter_id AS meter_id, mr.unit_id AS unit_id,
		       u.building_id AS building_id, mr.current_index AS current_index, mr.prev_index AS prev_index
		FROM meter_readings mr
		JOIN units u ON u.id = mr.unit_id
		WHERE mr.cycle_id = ?
		ORDER BY u.building_id ASC, mr.unit_id ASC
	`, cycleID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteByCycle clears a previous export so a retry rebuilds the batches
// from scratch.
func (r *invoiceRepository) DeleteByCycle(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) error {
	err := conn.WithContext(ctx).Exec(`
		DELETE FROM invoice_lines WHERE batch_id IN (
			SELECT id FROM invoice_batches WHERE cycle_id = ?
		)
	`, cycleID).Error
	if err != nil {
		return err
	}
	return conn.WithContext(ctx).Exec(`DELETE FROM invoice_batches WHERE cycle_id = ?`, cycleID).Error
}

func (r *invoiceRepository) InsertBatch(ctx context.Context, conn *gorm.DB, batch *domain.InvoiceBatch) error {
	return conn.WithContext(ctx).Exec(`
		INSERT INTO invoice_batches (id, cycle_id, building_id, service_id, status,
			total_amount_cents, reading_count, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, batch.ID, batch.CycleID, batch.BuildingID, batch.ServiceID, batch.Status,
		batch.TotalAmountCents, batch.ReadingCount, batch.Metadata, batch.CreatedAt, batch.UpdatedAt).Error
}

func (r *invoiceRepository) InsertLine(ctx context.Context, conn *gorm.DB, line *domain.InvoiceLine) error {
	return conn.WithContext(ctx).Exec(`
		INSERT INTO invoice_lines (id, batch_id, reading_id, meter_id, unit_id, consumption, amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, line.ID, line.BatchID, line.ReadingID, line.MeterID, line.UnitID,
		line.Consumption, line.AmountCents, line.CreatedAt).Error
}

func (r *invoiceRepository) ListBatchesByCycle(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) ([]domain.InvoiceBatch, error) {
	var batches []domain.InvoiceBatch
	err := conn.WithContext(ctx).Raw(`
		SELECT id, cycle_id, building_id, service_id, status,
		       total_amount_cents, reading_count, metadata, created_at, updated_at
		FROM invoice_batches
		WHERE cycle_id = ?
		ORDER BY building_id ASC
	`, cycleID).Scan(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *invoiceRepository) ListLinesByBatch(ctx context.Context, conn *gorm.DB, batchID snowflake.ID) ([]domain.InvoiceLine, error) {
	var lines []domain.InvoiceLine
	err := conn.WithContext(ctx).Raw(`
		SELECT id, batch_id, reading_id, meter_id, unit_id, consumption, amount_cents, created_at
		FROM invoice_lines
		WHERE batch_id = ?
		ORDER BY unit_id ASC
	`, batchID).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
