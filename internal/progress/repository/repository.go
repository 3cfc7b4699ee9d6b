package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/progress/domain"
	"gorm.io/gorm"
)

type progressRepository struct{}

// NewProgressRepository builds the derived progress query layer.
func NewProgressRepository() domain.Repository {
	return &progressRepository{}
}

func (r *progressRepository) CountAssignmentUnits(ctx context.Context, conn *gorm.DB, assignmentID snowflake.ID) (int, error) {
	return r.count(ctx, conn, `
		SELECT COUNT(*) AS n FROM assignment_units WHERE assignment_id = ?
	`, assignmentID)
}

// CountUnitsWithReading counts assignment units that have a reading keyed
// to this assignment, whichever meter carried it.
func (r *progressRepository) CountUnitsWithReading(ctx context.Context, conn *gorm.DB, assignmentID snowflake.ID) (int, error) {
	return r.count(ctx, conn, `
		SELECT COUNT(DISTINCT au.unit_id) AS n
		FROM assignment_units au
		JOIN meter_readings mr
		  ON mr.assignment_id = au.assignment_id AND mr.unit_id = au.unit_id
		WHERE au.assignment_id = ?
	`, assignmentID)
}

// ListUnassignedUnits returns active units in active buildings with no
// claim under the cycle. The buildings join is display-only, hence LEFT.
func (r *progressRepository) ListUnassignedUnits(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) ([]domain.UnassignedUnit, error) {
	var units []domain.UnassignedUnit
	err := conn.WithContext(ctx).Raw(`
		SELECT u.id AS unit_id, u.code AS unit_code, u.floor AS floor,
		       u.building_id AS building_id,
		       COALESCE(b.code, '') AS building_code,
		       COALESCE(b.name, '') AS building_name
		FROM units u
		LEFT JOIN buildings b ON b.id = u.building_id
		WHERE u.active = ?
		  AND (b.id IS NULL OR b.active = ?)
		  AND u.id NOT IN (
			SELECT unit_id FROM assignment_units WHERE cycle_id = ?
		  )
		ORDER BY b.code ASC, u.floor ASC, u.code ASC
	`, true, true, cycleID).Scan(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *progressRepository) count(ctx context.Context, conn *gorm.DB, query string, args ...interface{}) (int, error) {
	var counts []struct {
		N int `gorm:"column:n"`
	}
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&counts).Error; err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0].N, nil
}
