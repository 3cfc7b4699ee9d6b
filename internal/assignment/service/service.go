package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	"github.com/smallbiznis/metra/internal/observability/metrics"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service partitions a cycle's units among field staff.
type Service struct {
	db        *gorm.DB
	repo      domain.Repository
	cycles    cycledomain.Repository
	directory directorydomain.Repository
	node      *snowflake.Node
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *zap.Logger
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Repo      domain.Repository
	Cycles    cycledomain.Repository
	Directory directorydomain.Repository
	Node      *snowflake.Node
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
	Logger    *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		repo:      p.Repo,
		cycles:    p.Cycles,
		directory: p.Directory,
		node:      p.Node,
		clock:     p.Clock,
		metrics:   p.Metrics,
		log:       p.Logger.Named("assignment.service"),
	}
}

// CreateRequest claims units (directly or via floors) for one staff member.
type CreateRequest struct {
	CycleID    snowflake.ID
	ServiceID  snowflake.ID
	BuildingID *snowflake.ID
	AssignedTo snowflake.ID
	UnitIDs    []snowflake.ID
	Floors     []int
	StartDate  *time.Time
	EndDate    *time.Time
}

// Create validates the claim and writes it inside a transaction that
// re-checks unit availability, closing the race between two staff members
// claiming the same unit.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Assignment, error) {
	cycle, err := s.cycles.Get(ctx, s.db, req.CycleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.GetStaff(ctx, s.db, req.AssignedTo); err != nil {
		return nil, err
	}

	startDate := cycle.PeriodFrom
	if req.StartDate != nil {
		startDate = *req.StartDate
	}
	endDate := cycle.PeriodTo
	if req.EndDate != nil {
		endDate = *req.EndDate
	}
	if verr := validateDates(cycle, startDate, endDate, req); verr != nil {
		return nil, verr
	}

	unitIDs, err := s.resolveUnits(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(unitIDs) == 0 {
		verrs := &validation.Errors{}
		verrs.Add("unit_ids", "at least one unit is required")
		return nil, verrs
	}

	now := s.clock.Now()
	assignment := &domain.Assignment{
		ID:         s.node.Generate(),
		CycleID:    req.CycleID,
		ServiceID:  req.ServiceID,
		BuildingID: req.BuildingID,
		AssignedTo: req.AssignedTo,
		StartDate:  startDate,
		EndDate:    endDate,
		CreatedAt:  now,
		UpdatedAt:  now,
		UnitIDs:    unitIDs,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.repo.ClaimedUnits(ctx, tx, req.CycleID, req.ServiceID, unitIDs)
		if err != nil {
			return err
		}
		if len(claimed) > 0 {
			return &domain.ConflictError{UnitIDs: claimed}
		}
		return s.repo.Insert(ctx, tx, assignment)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAssignmentCreated(ctx, req.ServiceID.String())
	s.log.Info("assignment created",
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("cycle_id", req.CycleID.String()),
		zap.String("assigned_to", req.AssignedTo.String()),
		zap.Int("units", len(unitIDs)),
	)
	return assignment, nil
}

// Delete removes an assignment; completed assignments are immutable.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.Delete(ctx, s.db, id); err != nil {
		return err
	}
	s.log.Info("assignment deleted", zap.String("assignment_id", id.String()))
	return nil
}

// Complete marks the assignment done. Staff may complete with readings
// still missing; full coverage is enforced by the cycle gate, not here.
func (s *Service) Complete(ctx context.Context, id snowflake.ID) (*domain.Assignment, error) {
	if err := s.repo.Complete(ctx, s.db, id, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, s.db, id)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Assignment, error) {
	return s.repo.Get(ctx, s.db, id)
}

func (s *Service) ListByCycle(ctx context.Context, cycleID snowflake.ID) ([]domain.Assignment, error) {
	return s.repo.ListByCycle(ctx, s.db, cycleID)
}

func (s *Service) ListByStaff(ctx context.Context, staffID snowflake.ID, activeOnly bool) ([]domain.Assignment, error) {
	return s.repo.ListByStaff(ctx, s.db, staffID, activeOnly)
}

// resolveUnits turns the request's floors into unit ids through the
// directory and verifies explicitly-listed units. Directory resolution is
// essential here, so failures abort.
func (s *Service) resolveUnits(ctx context.Context, req CreateRequest) ([]snowflake.ID, error) {
	seen := make(map[snowflake.ID]struct{})
	var unitIDs []snowflake.ID

	add := func(id snowflake.ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unitIDs = append(unitIDs, id)
		}
	}

	if len(req.Floors) > 0 {
		if req.BuildingID == nil {
			verrs := &validation.Errors{}
			verrs.Add("building_id", "required when assigning by floors")
			return nil, verrs
		}
		units, err := s.directory.ListActiveUnitsByFloors(ctx, s.db, *req.BuildingID, req.Floors)
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			add(u.ID)
		}
	}

	for _, id := range req.UnitIDs {
		unit, err := s.directory.GetUnit(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if !unit.Active {
			continue
		}
		if req.BuildingID != nil && unit.BuildingID != *req.BuildingID {
			verrs := &validation.Errors{}
			verrs.Add("unit_ids", "unit "+id.String()+" is outside the assignment's building")
			return nil, verrs
		}
		add(unit.ID)
	}

	return unitIDs, nil
}

func validateDates(cycle *cycledomain.ReadingCycle, startDate, endDate time.Time, req CreateRequest) error {
	verrs := &validation.Errors{}
	if endDate.Before(startDate) {
		verrs.Add("end_date", "must not precede start_date")
	}
	if req.StartDate != nil && !cycle.ContainsDate(startDate) {
		verrs.Add("start_date", "outside the cycle period")
	}
	if req.EndDate != nil && (endDate.Before(cycle.PeriodFrom) || endDate.After(cycle.PeriodTo)) {
		verrs.Add("end_date", "outside the cycle period")
	}
	if verrs.HasErrors() {
		return verrs
	}
	return nil
}
