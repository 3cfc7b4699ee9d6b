package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	"github.com/smallbiznis/metra/internal/meter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages the meter registry.
type Service struct {
	db        *gorm.DB
	repo      domain.Repository
	directory directorydomain.Repository
	node      *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Repo      domain.Repository
	Directory directorydomain.Repository
	Node      *snowflake.Node
	Clock     clock.Clock
	Logger    *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		repo:      p.Repo,
		directory: p.Directory,
		node:      p.Node,
		clock:     p.Clock,
		log:       p.Logger.Named("meter.service"),
	}
}

// Ensure returns the active meter for the unit/service pair, provisioning
// one when none exists. The synthesized code combines the unit and service
// codes; a failed code lookup degrades to id-based placeholders rather
// than blocking provisioning.
func (s *Service) Ensure(ctx context.Context, tx *gorm.DB, unitID, serviceID snowflake.ID) (*domain.Meter, error) {
	conn := tx
	if conn == nil {
		conn = s.db
	}

	now := s.clock.Now()
	meter := &domain.Meter{
		ID:          s.node.Generate(),
		UnitID:      unitID,
		ServiceID:   serviceID,
		Code:        s.synthesizeCode(ctx, conn, unitID, serviceID),
		InstalledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	got, err := s.repo.FindOrCreate(ctx, conn, meter)
	if err != nil {
		return nil, err
	}
	if got.ID == meter.ID {
		s.log.Info("meter provisioned",
			zap.String("meter_id", got.ID.String()),
			zap.String("meter_code", got.Code),
			zap.String("unit_id", unitID.String()),
			zap.String("service_id", serviceID.String()),
		)
	}
	return got, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Meter, error) {
	return s.repo.Get(ctx, s.db, id)
}

// UpdateLastReading advances the meter's cached last reading inside the
// caller's transaction.
func (s *Service) UpdateLastReading(ctx context.Context, tx *gorm.DB, id snowflake.ID, value float64, at time.Time) error {
	conn := tx
	if conn == nil {
		conn = s.db
	}
	return s.repo.UpdateLastReading(ctx, conn, id, value, at)
}

func (s *Service) ListByUnit(ctx context.Context, unitID snowflake.ID) ([]domain.Meter, error) {
	if _, err := s.directory.GetUnit(ctx, s.db, unitID); err != nil {
		return nil, err
	}
	return s.repo.ListByUnit(ctx, s.db, unitID)
}

func (s *Service) ListByBuilding(ctx context.Context, buildingID, serviceID snowflake.ID) ([]domain.Meter, error) {
	if _, err := s.directory.GetBuilding(ctx, s.db, buildingID); err != nil {
		return nil, err
	}
	return s.repo.ListByBuilding(ctx, s.db, buildingID, serviceID)
}

// ListByStaffCycle returns the meters a staff member is expected to read
// in a cycle, derived from their claimed units.
func (s *Service) ListByStaffCycle(ctx context.Context, staffID, cycleID snowflake.ID) ([]domain.Meter, error) {
	if _, err := s.directory.GetStaff(ctx, s.db, staffID); err != nil {
		return nil, err
	}
	return s.repo.ListByStaffCycle(ctx, s.db, staffID, cycleID)
}

// Replace retires a meter and installs a fresh device in its place.
func (s *Service) Replace(ctx context.Context, oldID snowflake.ID, code string) (*domain.Meter, error) {
	now := s.clock.Now()
	replacement := &domain.Meter{
		ID:          s.node.Generate(),
		Code:        code,
		InstalledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	got, err := s.repo.Replace(ctx, s.db, oldID, replacement)
	if err != nil {
		return nil, err
	}
	s.log.Info("meter replaced",
		zap.String("old_meter_id", oldID.String()),
		zap.String("meter_id", got.ID.String()),
	)
	return got, nil
}

func (s *Service) synthesizeCode(ctx context.Context, conn *gorm.DB, unitID, serviceID snowflake.ID) string {
	unitCode := unitID.String()
	if unit, err := s.directory.GetUnit(ctx, conn, unitID); err == nil {
		unitCode = unit.Code
	}
	serviceCode := serviceID.String()
	if svc, err := s.directory.GetService(ctx, conn, serviceID); err == nil {
		serviceCode = svc.Code
	}
	return fmt.Sprintf("%s-%s", serviceCode, unitCode)
}
