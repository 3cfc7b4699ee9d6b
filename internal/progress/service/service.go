package service

import (
	"context"
	"math"

	"github.com/bwmarrin/snowflake"
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/internal/progress/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service derives completion progress for assignments and cycles.
type Service struct {
	db          *gorm.DB
	repo        domain.Repository
	assignments assignmentdomain.Repository
	log         *zap.Logger
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Repo        domain.Repository
	Assignments assignmentdomain.Repository
	Logger      *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		repo:        p.Repo,
		assignments: p.Assignments,
		log:         p.Logger.Named("progress.service"),
	}
}

// AssignmentProgress computes the completion view of one assignment.
func (s *Service) AssignmentProgress(ctx context.Context, assignmentID snowflake.ID) (*domain.AssignmentProgress, error) {
	return s.AssignmentProgressTx(ctx, s.db, assignmentID)
}

// AssignmentProgressTx is the transaction-aware variant used by the cycle
// completion gate.
func (s *Service) AssignmentProgressTx(ctx context.Context, conn *gorm.DB, assignmentID snowflake.ID) (*domain.AssignmentProgress, error) {
	if _, err := s.assignments.Get(ctx, conn, assignmentID); err != nil {
		return nil, err
	}

	total, err := s.repo.CountAssignmentUnits(ctx, conn, assignmentID)
	if err != nil {
		return nil, err
	}
	done, err := s.repo.CountUnitsWithReading(ctx, conn, assignmentID)
	if err != nil {
		return nil, err
	}

	divisor := total
	if divisor < 1 {
		divisor = 1
	}
	return &domain.AssignmentProgress{
		AssignmentID:       assignmentID,
		TotalMeters:        total,
		ReadingsDone:       done,
		RemainingMeters:    total - done,
		ProgressPercentage: int(math.Round(float64(done) / float64(divisor) * 100)),
	}, nil
}

// CycleUnassignedInfo reports the cycle's unclaimed units grouped by
// building and floor.
func (s *Service) CycleUnassignedInfo(ctx context.Context, cycleID snowflake.ID) (*domain.CycleUnassignedInfo, error) {
	return s.CycleUnassignedInfoTx(ctx, s.db, cycleID)
}

// CycleUnassignedInfoTx is the transaction-aware variant used by the cycle
// completion gate.
func (s *Service) CycleUnassignedInfoTx(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) (*domain.CycleUnassignedInfo, error) {
	units, err := s.repo.ListUnassignedUnits(ctx, conn, cycleID)
	if err != nil {
		return nil, err
	}

	info := &domain.CycleUnassignedInfo{
		CycleID:         cycleID,
		TotalUnassigned: len(units),
		Floors:          []domain.UnassignedFloor{},
	}

	type key struct {
		building snowflake.ID
		floor    int
	}
	index := make(map[key]int)
	for _, u := range units {
		k := key{building: u.BuildingID, floor: u.Floor}
		i, ok := index[k]
		if !ok {
			info.Floors = append(info.Floors, domain.UnassignedFloor{
				BuildingID:   u.BuildingID,
				BuildingCode: u.BuildingCode,
				BuildingName: u.BuildingName,
				Floor:        u.Floor,
			})
			i = len(info.Floors) - 1
			index[k] = i
		}
		info.Floors[i].UnitCodes = append(info.Floors[i].UnitCodes, u.UnitCode)
	}
	return info, nil
}
