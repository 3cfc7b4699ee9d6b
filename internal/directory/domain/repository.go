package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the read-only directory port. The building/unit/staff/service
// records are owned by the portfolio directory; the core only looks them up.
type Repository interface {
	ListActiveUnits(ctx context.Context, db *gorm.DB, buildingID snowflake.ID) ([]Unit, error)
	ListActiveUnitsByFloors(ctx context.Context, db *gorm.DB, buildingID snowflake.ID, floors []int) ([]Unit, error)
	ListActiveBuildings(ctx context.Context, db *gorm.DB) ([]Building, error)
	ListStaffByRole(ctx context.Context, db *gorm.DB, role string) ([]Staff, error)
	GetUnit(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Unit, error)
	GetBuilding(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Building, error)
	GetStaff(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Staff, error)
	GetService(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UtilityService, error)
	GetServiceByCode(ctx context.Context, db *gorm.DB, code string) (*UtilityService, error)
}

var (
	ErrUnitNotFound     = errors.New("unit_not_found")
	ErrBuildingNotFound = errors.New("building_not_found")
	ErrStaffNotFound    = errors.New("staff_not_found")
	ErrServiceNotFound  = errors.New("service_not_found")

	// ErrDirectoryUnavailable wraps lookup failures so callers can surface
	// them as a dependency problem rather than an internal one.
	ErrDirectoryUnavailable = errors.New("directory_unavailable")
)
