package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/clock"
	"github.com/smallbiznis/metra/internal/invoice/domain"
	"github.com/smallbiznis/metra/internal/observability/metrics"
	pricingservice "github.com/smallbiznis/metra/internal/pricing/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service turns a completed cycle's readings into invoice batches.
type Service struct {
	db      *gorm.DB
	repo    domain.Repository
	pricing *pricingservice.Service
	node    *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Repo    domain.Repository
	Pricing *pricingservice.Service
	Node    *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Logger  *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		repo:    p.Repo,
		pricing: p.Pricing,
		node:    p.Node,
		clock:   p.Clock,
		metrics: p.Metrics,
		log:     p.Logger.Named("invoice.service"),
	}
}

// ExportForCycle consumes every reading under the cycle and writes one
// invoice batch per affected building, pricing consumption through the
// tier schedule effective at export time. Re-running replaces the previous
// export, so a failed run can be retried safely.
func (s *Service) ExportForCycle(ctx context.Context, cycleID, serviceID snowflake.ID) (*domain.ExportResult, error) {
	now := s.clock.Now()

	var result *domain.ExportResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.ListCycleReadingRows(ctx, tx, cycleID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteByCycle(ctx, tx, cycleID); err != nil {
			return err
		}

		byBuilding := make(map[snowflake.ID][]domain.ReadingRow)
		var buildings []snowflake.ID
		for _, row := range rows {
			if _, ok := byBuilding[row.BuildingID]; !ok {
				buildings = append(buildings, row.BuildingID)
			}
			byBuilding[row.BuildingID] = append(byBuilding[row.BuildingID], row)
		}

		for _, buildingID := range buildings {
			buildingRows := byBuilding[buildingID]
			batch := &domain.InvoiceBatch{
				ID:           s.node.Generate(),
				CycleID:      cycleID,
				BuildingID:   buildingID,
				ServiceID:    serviceID,
				Status:       "CREATED",
				ReadingCount: len(buildingRows),
				Metadata: datatypes.JSONMap{
					"exported_at": now.Format("2006-01-02T15:04:05Z07:00"),
				},
				CreatedAt: now,
				UpdatedAt: now,
			}

			lines := make([]*domain.InvoiceLine, 0, len(buildingRows))
			for _, row := range buildingRows {
				consumption := row.Consumption()
				amount, err := s.pricing.PriceConsumption(ctx, tx, serviceID, consumption)
				if err != nil {
					return err
				}
				lines = append(lines, &domain.InvoiceLine{
					ID:          s.node.Generate(),
					BatchID:     batch.ID,
					ReadingID:   row.ReadingID,
					MeterID:     row.MeterID,
					UnitID:      row.UnitID,
					Consumption: consumption,
					AmountCents: amount,
					CreatedAt:   now,
				})
				batch.TotalAmountCents += amount
			}

			if err := s.repo.InsertBatch(ctx, tx, batch); err != nil {
				return err
			}
			for _, line := range lines {
				if err := s.repo.InsertLine(ctx, tx, line); err != nil {
					return err
				}
			}
		}

		result = &domain.ExportResult{
			InvoicesCreated: len(buildings),
			TotalReadings:   len(rows),
			Message:         fmt.Sprintf("exported %d invoices from %d readings", len(buildings), len(rows)),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoicesExported(ctx, serviceID.String(), int64(result.InvoicesCreated))
	s.log.Info("invoices exported",
		zap.String("cycle_id", cycleID.String()),
		zap.Int("invoices_created", result.InvoicesCreated),
		zap.Int("total_readings", result.TotalReadings),
	)
	return result, nil
}

// ListBatches returns a cycle's invoice batches.
func (s *Service) ListBatches(ctx context.Context, cycleID snowflake.ID) ([]domain.InvoiceBatch, error) {
	return s.repo.ListBatchesByCycle(ctx, s.db, cycleID)
}

// ListLines returns the lines of one batch.
func (s *Service) ListLines(ctx context.Context, batchID snowflake.ID) ([]domain.InvoiceLine, error) {
	return s.repo.ListLinesByBatch(ctx, s.db, batchID)
}
