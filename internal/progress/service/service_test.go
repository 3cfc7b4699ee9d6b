package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	assignmentrepo "github.com/smallbiznis/metra/internal/assignment/repository"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	"github.com/smallbiznis/metra/internal/progress/repository"
	readingdomain "github.com/smallbiznis/metra/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	svc        *Service
	node       *snowflake.Node
	buildingID snowflake.ID
	serviceID  snowflake.ID
	cycleID    snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&directorydomain.Building{},
		&directorydomain.Unit{},
		&assignmentdomain.Assignment{},
		&assignmentdomain.AssignmentUnit{},
		&readingdomain.MeterReading{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:          conn,
		Repo:        repository.NewProgressRepository(),
		Assignments: assignmentrepo.NewAssignmentRepository(),
		Logger:      zap.NewNop(),
	})

	building := directorydomain.Building{ID: node.Generate(), Code: "A", Name: "Tower A", Active: true}
	require.NoError(t, conn.Create(&building).Error)

	return &testEnv{
		db:         conn,
		svc:        svc,
		node:       node,
		buildingID: building.ID,
		serviceID:  node.Generate(),
		cycleID:    node.Generate(),
	}
}

func (e *testEnv) seedUnit(t *testing.T, code string, floor int) snowflake.ID {
	t.Helper()
	unit := directorydomain.Unit{
		ID:         e.node.Generate(),
		BuildingID: e.buildingID,
		Code:       code,
		Floor:      floor,
		Active:     true,
	}
	require.NoError(t, e.db.Create(&unit).Error)
	return unit.ID
}

func (e *testEnv) seedAssignment(t *testing.T, unitIDs []snowflake.ID) snowflake.ID {
	t.Helper()
	assignment := assignmentdomain.Assignment{
		ID:         e.node.Generate(),
		CycleID:    e.cycleID,
		ServiceID:  e.serviceID,
		AssignedTo: e.node.Generate(),
		StartDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.db.Create(&assignment).Error)
	for _, unitID := range unitIDs {
		require.NoError(t, e.db.Create(&assignmentdomain.AssignmentUnit{
			AssignmentID: assignment.ID,
			UnitID:       unitID,
			CycleID:      e.cycleID,
			ServiceID:    e.serviceID,
		}).Error)
	}
	return assignment.ID
}

func (e *testEnv) seedReading(t *testing.T, assignmentID, unitID snowflake.ID) {
	t.Helper()
	require.NoError(t, e.db.Create(&readingdomain.MeterReading{
		ID:           e.node.Generate(),
		MeterID:      e.node.Generate(),
		AssignmentID: assignmentID,
		CycleID:      e.cycleID,
		UnitID:       unitID,
		ReadingDate:  time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		CurrentIndex: 100,
	}).Error)
}

func TestAssignmentProgress_Partial(t *testing.T) {
	env := newTestEnv(t)

	var unitIDs []snowflake.ID
	for i := 0; i < 10; i++ {
		unitIDs = append(unitIDs, env.seedUnit(t, fmt.Sprintf("A-1%02d", i), 1))
	}
	assignmentID := env.seedAssignment(t, unitIDs)
	for _, unitID := range unitIDs[:7] {
		env.seedReading(t, assignmentID, unitID)
	}

	progress, err := env.svc.AssignmentProgress(context.Background(), assignmentID)
	require.NoError(t, err)
	assert.Equal(t, 10, progress.TotalMeters)
	assert.Equal(t, 7, progress.ReadingsDone)
	assert.Equal(t, 3, progress.RemainingMeters)
	assert.Equal(t, 70, progress.ProgressPercentage)
}

func TestAssignmentProgress_Complete(t *testing.T) {
	env := newTestEnv(t)

	var unitIDs []snowflake.ID
	for i := 0; i < 3; i++ {
		unitIDs = append(unitIDs, env.seedUnit(t, fmt.Sprintf("A-1%02d", i), 1))
	}
	assignmentID := env.seedAssignment(t, unitIDs)
	for _, unitID := range unitIDs {
		env.seedReading(t, assignmentID, unitID)
	}

	progress, err := env.svc.AssignmentProgress(context.Background(), assignmentID)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.ProgressPercentage)
	assert.Equal(t, 0, progress.RemainingMeters)
}

func TestAssignmentProgress_EmptyAssignment(t *testing.T) {
	env := newTestEnv(t)
	assignmentID := env.seedAssignment(t, nil)

	progress, err := env.svc.AssignmentProgress(context.Background(), assignmentID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.TotalMeters)
	assert.Equal(t, 0, progress.ProgressPercentage)
}

func TestAssignmentProgress_UnknownAssignment(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AssignmentProgress(context.Background(), env.node.Generate())
	assert.ErrorIs(t, err, assignmentdomain.ErrAssignmentNotFound)
}

func TestCycleUnassignedInfo_GroupsByFloor(t *testing.T) {
	env := newTestEnv(t)

	claimed := env.seedUnit(t, "A-101", 1)
	env.seedUnit(t, "A-102", 1)
	env.seedUnit(t, "A-201", 2)
	env.seedAssignment(t, []snowflake.ID{claimed})

	info, err := env.svc.CycleUnassignedInfo(context.Background(), env.cycleID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalUnassigned)
	require.Len(t, info.Floors, 2)

	byFloor := map[int][]string{}
	for _, floor := range info.Floors {
		byFloor[floor.Floor] = floor.UnitCodes
		assert.Equal(t, env.buildingID, floor.BuildingID)
		assert.Equal(t, "A", floor.BuildingCode)
	}
	assert.Equal(t, []string{"A-102"}, byFloor[1])
	assert.Equal(t, []string{"A-201"}, byFloor[2])
}

func TestCycleUnassignedInfo_FullyAssigned(t *testing.T) {
	env := newTestEnv(t)

	unitA := env.seedUnit(t, "A-101", 1)
	unitB := env.seedUnit(t, "A-102", 1)
	env.seedAssignment(t, []snowflake.ID{unitA, unitB})

	info, err := env.svc.CycleUnassignedInfo(context.Background(), env.cycleID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.TotalUnassigned)
	assert.Empty(t, info.Floors)
}
