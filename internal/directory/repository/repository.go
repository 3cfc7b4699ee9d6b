package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/directory/domain"
	"gorm.io/gorm"
)

type directoryRepository struct{}

// NewDirectoryRepository builds the gorm-backed directory read model.
func NewDirectoryRepository() domain.Repository {
	return &directoryRepository{}
}

func (r *directoryRepository) ListActiveUnits(ctx context.Context, db *gorm.DB, buildingID snowflake.ID) ([]domain.Unit, error) {
	var units []domain.Unit
	err := db.WithContext(ctx).Raw(`
		SELECT id, building_id, code, floor, active, created_at, updated_at
		FROM units
		WHERE building_id = ? AND active = ?
		ORDER BY floor ASC, code ASC
	`, buildingID, true).Scan(&units).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return units, nil
}

func (r *directoryRepository) ListActiveUnitsByFloors(ctx context.Context, db *gorm.DB, buildingID snowflake.ID, floors []int) ([]domain.Unit, error) {
	if len(floors) == 0 {
		return r.ListActiveUnits(ctx, db, buildingID)
	}

	placeholders := make([]string, 0, len(floors))
	args := []interface{}{buildingID, true}
	for _, floor := range floors {
		placeholders = append(placeholders, "?")
		args = append(args, floor)
	}

	query := fmt.Sprintf(`
		SELECT id, building_id, code, floor, active, created_at, updated_at
		FROM units
		WHERE building_id = ? AND active = ? AND floor IN (%s)
		ORDER BY floor ASC, code ASC
	`, strings.Join(placeholders, ", "))

	var units []domain.Unit
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&units).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return units, nil
}

func (r *directoryRepository) ListActiveBuildings(ctx context.Context, db *gorm.DB) ([]domain.Building, error) {
	var buildings []domain.Building
	err := db.WithContext(ctx).Raw(`
		SELECT id, code, name, active, created_at, updated_at
		FROM buildings
		WHERE active = ?
		ORDER BY code ASC
	`, true).Scan(&buildings).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return buildings, nil
}

func (r *directoryRepository) ListStaffByRole(ctx context.Context, db *gorm.DB, role string) ([]domain.Staff, error) {
	var staff []domain.Staff
	err := db.WithContext(ctx).Raw(`
		SELECT id, name, role, active, created_at, updated_at
		FROM staff
		WHERE role = ? AND active = ?
		ORDER BY name ASC
	`, role, true).Scan(&staff).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return staff, nil
}

func (r *directoryRepository) GetUnit(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Unit, error) {
	var units []domain.Unit
	err := db.WithContext(ctx).Raw(`
		SELECT id, building_id, code, floor, active, created_at, updated_at
		FROM units
		WHERE id = ?
	`, id).Scan(&units).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if len(units) == 0 {
		return nil, domain.ErrUnitNotFound
	}
	return &units[0], nil
}

func (r *directoryRepository) GetBuilding(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Building, error) {
	var buildings []domain.Building
	err := db.WithContext(ctx).Raw(`
		SELECT id, code, name, active, created_at, updated_at
		FROM buildings
		WHERE id = ?
	`, id).Scan(&buildings).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if len(buildings) == 0 {
		return nil, domain.ErrBuildingNotFound
	}
	return &buildings[0], nil
}

func (r *directoryRepository) GetStaff(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Staff, error) {
	var staff []domain.Staff
	err := db.WithContext(ctx).Raw(`
		SELECT id, name, role, active, created_at, updated_at
		FROM staff
		WHERE id = ?
	`, id).Scan(&staff).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if len(staff) == 0 {
		return nil, domain.ErrStaffNotFound
	}
	return &staff[0], nil
}

func (r *directoryRepository) GetService(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.UtilityService, error) {
	var services []domain.UtilityService
	err := db.WithContext(ctx).Raw(`
		SELECT id, code, name, unit, created_at, updated_at
		FROM utility_services
		WHERE id = ?
	`, id).Scan(&services).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if len(services) == 0 {
		return nil, domain.ErrServiceNotFound
	}
	return &services[0], nil
}

func (r *directoryRepository) GetServiceByCode(ctx context.Context, db *gorm.DB, code string) (*domain.UtilityService, error) {
	var services []domain.UtilityService
	err := db.WithContext(ctx).Raw(`
		SELECT id, code, name, unit, created_at, updated_at
		FROM utility_services
		WHERE code = ?
	`, strings.TrimSpace(code)).Scan(&services).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if len(services) == 0 {
		return nil, domain.ErrServiceNotFound
	}
	return &services[0], nil
}
