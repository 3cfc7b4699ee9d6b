package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/billingsync/domain"
	"github.com/smallbiznis/metra/internal/clock"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service reconciles reading cycles with billing cycles.
type Service struct {
	db    *gorm.DB
	repo  domain.Repository
	node  *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Repo   domain.Repository
	Node   *snowflake.Node
	Clock  clock.Clock
	Logger *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		repo:  p.Repo,
		node:  p.Node,
		clock: p.Clock,
		log:   p.Logger.Named("billingsync.service"),
	}
}

// SyncMissing creates a billing cycle for every reading cycle lacking one,
// copying period and service. Safe to call repeatedly: the unique
// external_cycle_id absorbs concurrent runs, a lost insert race is simply
// skipped.
func (s *Service) SyncMissing(ctx context.Context) ([]domain.BillingCycle, error) {
	missing, err := s.repo.ListMissingReadingCycles(ctx, s.db)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	created := make([]domain.BillingCycle, 0, len(missing))
	for _, rc := range missing {
		billing := domain.BillingCycle{
			ID:              s.node.Generate(),
			ExternalCycleID: rc.ID,
			ServiceID:       rc.ServiceID,
			PeriodFrom:      rc.PeriodFrom,
			PeriodTo:        rc.PeriodTo,
			Status:          "PENDING",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.Insert(ctx, s.db, &billing); err != nil {
			if db.IsDuplicateKeyErr(err) {
				continue
			}
			return nil, err
		}
		created = append(created, billing)
	}

	if len(created) > 0 {
		s.log.Info("billing cycles synced", zap.Int("created", len(created)))
	}
	return created, nil
}

// ListMissing surfaces reading cycles without a billing counterpart for
// the operator warning list.
func (s *Service) ListMissing(ctx context.Context) ([]cycledomain.ReadingCycle, error) {
	return s.repo.ListMissingReadingCycles(ctx, s.db)
}

// List returns all billing cycles.
func (s *Service) List(ctx context.Context) ([]domain.BillingCycle, error) {
	return s.repo.List(ctx, s.db)
}
