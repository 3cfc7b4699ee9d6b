package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InvoiceBatch is one building's invoice for a completed cycle.
type InvoiceBatch struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	CycleID          snowflake.ID      `json:"cycle_id" gorm:"column:cycle_id;not null;index"`
	BuildingID       snowflake.ID      `json:"building_id" gorm:"column:building_id;not null"`
	ServiceID        snowflake.ID      `json:"service_id" gorm:"column:service_id;not null"`
	Status           string            `json:"status" gorm:"type:text;not null;default:'CREATED'"`
	TotalAmountCents int64             `json:"total_amount_cents" gorm:"column:total_amount_cents;not null"`
	ReadingCount     int               `json:"reading_count" gorm:"column:reading_count;not null"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceBatch) TableName() string { return "invoice_batches" }

// InvoiceLine prices one reading inside a batch.
type InvoiceLine struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	BatchID     snowflake.ID `json:"batch_id" gorm:"column:batch_id;not null;index"`
	ReadingID   snowflake.ID `json:"reading_id" gorm:"column:reading_id;not null"`
	MeterID     snowflake.ID `json:"meter_id" gorm:"column:meter_id;not null"`
	UnitID      snowflake.ID `json:"unit_id" gorm:"column:unit_id;not null"`
	Consumption float64      `json:"consumption" gorm:"not null"`
	AmountCents int64        `json:"amount_cents" gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// ExportResult summarizes one export run.
type ExportResult struct {
	InvoicesCreated int    `json:"invoices_created"`
	TotalReadings   int    `json:"total_readings"`
	Message         string `json:"message"`
}

// ReadingRow joins a cycle's readings with the owning building for
// per-building batching.
type ReadingRow struct {
	ReadingID    snowflake.ID `json:"reading_id" gorm:"column:reading_id"`
	MeterID      snowflake.ID `json:"meter_id" gorm:"column:meter_id"`
	UnitID       snowflake.ID `json:"unit_id" gorm:"column:unit_id"`
	BuildingID   snowflake.ID `json:"building_id" gorm:"column:building_id"`
	CurrentIndex float64      `json:"current_index" gorm:"column:current_index"`
	PrevIndex    float64      `json:"prev_index" gorm:"column:prev_index"`
}

// Consumption is the billable quantity of the row.
func (r ReadingRow) Consumption() float64 {
	if r.CurrentIndex < r.PrevIndex {
		return 0
	}
	return r.CurrentIndex - r.PrevIndex
}

// Repository persists invoice batches and lines.
type Repository interface {
	ListCycleReadingRows(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]ReadingRow, error)
	DeleteByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) error
	InsertBatch(ctx context.Context, db *gorm.DB, batch *InvoiceBatch) error
	InsertLine(ctx context.Context, db *gorm.DB, line *InvoiceLine) error
	ListBatchesByCycle(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]InvoiceBatch, error)
	ListLinesByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]InvoiceLine, error)
}

var ErrBatchNotFound = errors.New("invoice_batch_not_found")
