package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AssignmentProgress is the derived completion view of one assignment.
// TotalMeters counts the assignment's units, not Meter rows: a unit with
// no meter yet still counts as one pending reading.
type AssignmentProgress struct {
	AssignmentID       snowflake.ID `json:"assignment_id"`
	TotalMeters        int          `json:"total_meters"`
	ReadingsDone       int          `json:"readings_done"`
	RemainingMeters    int          `json:"remaining_meters"`
	ProgressPercentage int          `json:"progress_percentage"`
}

// UnassignedFloor groups a cycle's unclaimed units by building and floor
// for human consumption.
type UnassignedFloor struct {
	BuildingID   snowflake.ID `json:"building_id"`
	BuildingCode string       `json:"building_code"`
	BuildingName string       `json:"building_name"`
	Floor        int          `json:"floor"`
	UnitCodes    []string     `json:"unit_codes"`
}

// CycleUnassignedInfo is the authoritative input to the cycle-completion
// gate's no-unassigned-units clause.
type CycleUnassignedInfo struct {
	CycleID         snowflake.ID      `json:"cycle_id"`
	TotalUnassigned int               `json:"total_unassigned"`
	Floors          []UnassignedFloor `json:"floors"`
}

// Repository runs the derived progress queries.
type Repository interface {
	CountAssignmentUnits(ctx context.Context, db *gorm.DB, assignmentID snowflake.ID) (int, error)
	CountUnitsWithReading(ctx context.Context, db *gorm.DB, assignmentID snowflake.ID) (int, error)
	ListUnassignedUnits(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]UnassignedUnit, error)
}

// UnassignedUnit is one active unit not covered by any assignment of the
// cycle. Building code/name come from a display-only join and may be
// empty when the directory row is gone.
type UnassignedUnit struct {
	UnitID       snowflake.ID `json:"unit_id" gorm:"column:unit_id"`
	UnitCode     string       `json:"unit_code" gorm:"column:unit_code"`
	Floor        int          `json:"floor" gorm:"column:floor"`
	BuildingID   snowflake.ID `json:"building_id" gorm:"column:building_id"`
	BuildingCode string       `json:"building_code" gorm:"column:building_code"`
	BuildingName string       `json:"building_name" gorm:"column:building_name"`
}
