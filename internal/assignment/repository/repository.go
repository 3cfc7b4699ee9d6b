package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/pkg/db"
	"gorm.io/gorm"
)

type assignmentRepository struct{}

// NewAssignmentRepository builds the gorm-backed assignment store.
func NewAssignmentRepository() domain.Repository {
	return &assignmentRepository{}
}

const assignmentColumns = `id, cycle_id, service_id, building_id, assigned_to,
	       start_date, end_date, completed_at, created_at, updated_at`

// Insert writes the assignment and its unit set. Callers run it inside a
// transaction after ClaimedUnits came back empty; the unique claim index
// turns a lost race into a duplicate-key error surfaced as ConflictError.
func (r *assignmentRepository) Insert(ctx context.Context, conn *gorm.DB, a *domain.Assignment) error {
	err := conn.WithContext(ctx).Exec(`
		INSERT INTO assignments (id, cycle_id, service_id, building_id, assigned_to,
			start_date, end_date, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CycleID, a.ServiceID, a.BuildingID, a.AssignedTo,
		a.StartDate, a.EndDate, a.CompletedAt, a.CreatedAt, a.UpdatedAt).Error
	if err != nil {
		return err
	}

	for _, unitID := range a.UnitIDs {
		err := conn.WithContext(ctx).Exec(`
			INSERT INTO assignment_units (assignment_id, unit_id, cycle_id, service_id)
			VALUES (?, ?, ?, ?)
		`, a.ID, unitID, a.CycleID, a.ServiceID).Error
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return &domain.ConflictError{UnitIDs: []snowflake.ID{unitID}}
			}
			return err
		}
	}
	return nil
}

func (r *assignmentRepository) Get(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Assignment, error) {
	var assignments []domain.Assignment
	err := conn.WithContext(ctx).Raw(`
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE id = ?
	`, id).Scan(&assignments).Error
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, domain.ErrAssignmentNotFound
	}

	a := assignments[0]
	a.UnitIDs, err = r.UnitIDs(ctx, conn, a.ID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) ListByCycle(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) ([]domain.Assignment, error) {
	var assignments []domain.Assignment
	err := conn.WithContext(ctx).Raw(`
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE cycle_id = ?
		ORDER BY created_at ASC, id ASC
	`, cycleID).Scan(&assignments).Error
	if err != nil {
		return nil, err
	}
	return r.attachUnitIDs(ctx, conn, assignments)
}

func (r *assignmentRepository) ListByStaff(ctx context.Context, conn *gorm.DB, staffID snowflake.ID, activeOnly bool) ([]domain.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE assigned_to = ?`
	if activeOnly {
		query += ` AND completed_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var assignments []domain.Assignment
	if err := conn.WithContext(ctx).Raw(query, staffID).Scan(&assignments).Error; err != nil {
		return nil, err
	}
	return r.attachUnitIDs(ctx, conn, assignments)
}

// ClaimedUnits returns the subset of unitIDs already held by any
// assignment of the cycle/service pair. Row-locked on postgres so the
// check stays valid until the caller's insert commits.
func (r *assignmentRepository) ClaimedUnits(ctx context.Context, conn *gorm.DB, cycleID, serviceID snowflake.ID, unitIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(unitIDs))
	args := []interface{}{cycleID, serviceID}
	for _, id := range unitIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT unit_id
		FROM assignment_units
		WHERE cycle_id = ? AND service_id = ? AND unit_id IN (%s)
	`, strings.Join(placeholders, ", ")) + db.LockingClause(conn)

	var rows []struct {
		UnitID snowflake.ID `gorm:"column:unit_id"`
	}
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	claimed := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		claimed = append(claimed, row.UnitID)
	}
	return claimed, nil
}

func (r *assignmentRepository) UnitIDs(ctx context.Context, conn *gorm.DB, assignmentID snowflake.ID) ([]snowflake.ID, error) {
	var rows []struct {
		UnitID snowflake.ID `gorm:"column:unit_id"`
	}
	err := conn.WithContext(ctx).Raw(`
		SELECT unit_id FROM assignment_units WHERE assignment_id = ? ORDER BY unit_id ASC
	`, assignmentID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UnitID)
	}
	return ids, nil
}

// Delete removes an incomplete assignment and releases its unit claims.
func (r *assignmentRepository) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := r.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.CompletedAt != nil {
			return domain.ErrAssignmentCompleted
		}
		if err := tx.Exec(`DELETE FROM assignment_units WHERE assignment_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM assignments WHERE id = ?`, id).Error
	})
}

func (r *assignmentRepository) Complete(ctx context.Context, conn *gorm.DB, id snowflake.ID, at time.Time) error {
	res := conn.WithContext(ctx).Exec(`
		UPDATE assignments SET completed_at = ?, updated_at = ?
		WHERE id = ? AND completed_at IS NULL
	`, at, at, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, conn, id); err != nil {
			return err
		}
		// already completed, keep the original timestamp
		return nil
	}
	return nil
}

func (r *assignmentRepository) CountIncompleteByCycle(ctx context.Context, conn *gorm.DB, cycleID snowflake.ID) (int64, error) {
	var counts []struct {
		N int64 `gorm:"column:n"`
	}
	err := conn.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS n FROM assignments WHERE cycle_id = ? AND completed_at IS NULL
	`, cycleID).Scan(&counts).Error
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0].N, nil
}

func (r *assignmentRepository) attachUnitIDs(ctx context.Context, conn *gorm.DB, assignments []domain.Assignment) ([]domain.Assignment, error) {
	for i := range assignments {
		ids, err := r.UnitIDs(ctx, conn, assignments[i].ID)
		if err != nil {
			return nil, err
		}
		assignments[i].UnitIDs = ids
	}
	return assignments, nil
}
