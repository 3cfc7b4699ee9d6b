package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/directory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service exposes directory lookups to the HTTP layer.
type Service struct {
	db   *gorm.DB
	repo domain.Repository
	log  *zap.Logger
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Repo   domain.Repository
	Logger *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:   p.DB,
		repo: p.Repo,
		log:  p.Logger.Named("directory.service"),
	}
}

func (s *Service) ListBuildings(ctx context.Context) ([]domain.Building, error) {
	return s.repo.ListActiveBuildings(ctx, s.db)
}

func (s *Service) ListUnits(ctx context.Context, buildingID snowflake.ID) ([]domain.Unit, error) {
	if _, err := s.repo.GetBuilding(ctx, s.db, buildingID); err != nil {
		return nil, err
	}
	return s.repo.ListActiveUnits(ctx, s.db, buildingID)
}

func (s *Service) ListStaff(ctx context.Context, role string) ([]domain.Staff, error) {
	return s.repo.ListStaffByRole(ctx, s.db, role)
}

func (s *Service) GetService(ctx context.Context, id snowflake.ID) (*domain.UtilityService, error) {
	return s.repo.GetService(ctx, s.db, id)
}

func (s *Service) GetServiceByCode(ctx context.Context, code string) (*domain.UtilityService, error) {
	return s.repo.GetServiceByCode(ctx, s.db, code)
}
