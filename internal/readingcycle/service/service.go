package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	invoicedomain "github.com/smallbiznis/metra/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/metra/internal/invoice/service"
	"github.com/smallbiznis/metra/internal/observability/metrics"
	progressservice "github.com/smallbiznis/metra/internal/progress/service"
	"github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service owns the reading cycle lifecycle.
type Service struct {
	db          *gorm.DB
	repo        domain.Repository
	assignments assignmentdomain.Repository
	progress    *progressservice.Service
	invoices    *invoiceservice.Service
	directory   directorydomain.Repository
	node        *snowflake.Node
	clock       clock.Clock
	metrics     *metrics.Metrics
	log         *zap.Logger
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Repo        domain.Repository
	Assignments assignmentdomain.Repository
	Progress    *progressservice.Service
	Invoices    *invoiceservice.Service
	Directory   directorydomain.Repository
	Node        *snowflake.Node
	Clock       clock.Clock
	Metrics     *metrics.Metrics `optional:"true"`
	Logger      *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		repo:        p.Repo,
		assignments: p.Assignments,
		progress:    p.Progress,
		invoices:    p.Invoices,
		directory:   p.Directory,
		node:        p.Node,
		clock:       p.Clock,
		metrics:     p.Metrics,
		log:         p.Logger.Named("readingcycle.service"),
	}
}

// CreateRequest opens a new cycle for a service and period.
type CreateRequest struct {
	ServiceID  snowflake.ID
	PeriodFrom time.Time
	PeriodTo   time.Time
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.ReadingCycle, error) {
	if !req.PeriodFrom.Before(req.PeriodTo) {
		verrs := &validation.Errors{}
		verrs.Add("period_to", "must be after period_from")
		return nil, verrs
	}
	if _, err := s.directory.GetService(ctx, s.db, req.ServiceID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cycle := &domain.ReadingCycle{
		ID:           s.node.Generate(),
		ServiceID:    req.ServiceID,
		PeriodFrom:   req.PeriodFrom,
		PeriodTo:     req.PeriodTo,
		Status:       domain.StatusOpen,
		ExportStatus: domain.ExportNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, cycle); err != nil {
		return nil, err
	}
	s.log.Info("cycle created",
		zap.String("cycle_id", cycle.ID.String()),
		zap.String("service_id", req.ServiceID.String()),
	)
	return cycle, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.ReadingCycle, error) {
	return s.repo.Get(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context) ([]domain.ReadingCycle, error) {
	return s.repo.List(ctx, s.db)
}

// ChangeStatus is the operator override. It enforces forward-only ordering
// but deliberately skips the completion gate; the guarded path is Complete.
func (s *Service) ChangeStatus(ctx context.Context, id snowflake.ID, target domain.Status) (*domain.ReadingCycle, error) {
	if !target.Valid() {
		verrs := &validation.Errors{}
		verrs.Add("status", "unknown status")
		return nil, verrs
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cycle.Status.CanTransitionTo(target) {
			return domain.ErrInvalidTransition
		}
		return s.repo.UpdateStatus(ctx, tx, id, target, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, s.db, id)
}

// CompleteResult reports the completion and the export outcome. Completion
// is final once the gate passes; a failed export is recorded for retry,
// never rolled back.
type CompleteResult struct {
	Cycle  *domain.ReadingCycle        `json:"cycle"`
	Export *invoicedomain.ExportResult `json:"export,omitempty"`
}

// Complete runs the completion gate and transitions the cycle. The gate
// and the status write share a transaction with the cycle row locked, so
// a concurrently-completed assignment cannot slip past the re-check.
func (s *Service) Complete(ctx context.Context, id snowflake.ID) (*CompleteResult, error) {
	var completed *domain.ReadingCycle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cycle.Status.CanTransitionTo(domain.StatusCompleted) {
			return domain.ErrInvalidTransition
		}

		incomplete, err := s.assignments.CountIncompleteByCycle(ctx, tx, id)
		if err != nil {
			return err
		}
		if incomplete > 0 {
			return domain.ErrCycleNotReady
		}

		info, err := s.progress.CycleUnassignedInfoTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if info.TotalUnassigned > 0 {
			return domain.ErrCycleNotReady
		}

		if err := s.repo.UpdateStatus(ctx, tx, id, domain.StatusCompleted, s.clock.Now()); err != nil {
			return err
		}
		cycle.Status = domain.StatusCompleted
		completed = cycle
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCycleCompleted(ctx, completed.ServiceID.String())
	s.log.Info("cycle completed", zap.String("cycle_id", id.String()))

	result := &CompleteResult{Cycle: completed}
	export, err := s.runExport(ctx, completed)
	if err != nil {
		s.log.Error("invoice export failed after completion",
			zap.String("cycle_id", id.String()),
			zap.Error(err),
		)
	} else {
		result.Export = export
	}

	result.Cycle, err = s.repo.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExportInvoices retries or re-runs the export for an already-completed
// cycle.
func (s *Service) ExportInvoices(ctx context.Context, id snowflake.ID) (*invoicedomain.ExportResult, error) {
	cycle, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if cycle.Status != domain.StatusCompleted && cycle.Status != domain.StatusClosed {
		return nil, domain.ErrCycleNotCompleted
	}
	return s.runExport(ctx, cycle)
}

func (s *Service) runExport(ctx context.Context, cycle *domain.ReadingCycle) (*invoicedomain.ExportResult, error) {
	result, err := s.invoices.ExportForCycle(ctx, cycle.ID, cycle.ServiceID)
	now := s.clock.Now()
	if err != nil {
		if uerr := s.repo.UpdateExport(ctx, s.db, cycle.ID, domain.ExportFailed, err.Error(), now); uerr != nil {
			s.log.Error("recording export failure failed",
				zap.String("cycle_id", cycle.ID.String()),
				zap.Error(uerr),
			)
		}
		return nil, err
	}
	if uerr := s.repo.UpdateExport(ctx, s.db, cycle.ID, domain.ExportExported, "", now); uerr != nil {
		return nil, uerr
	}
	return result, nil
}
