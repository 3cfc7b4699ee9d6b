package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	assignmentdomain "github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/metra/internal/directory/repository"
	"github.com/smallbiznis/metra/internal/meter/domain"
	"github.com/smallbiznis/metra/internal/meter/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	svc       *Service
	node      *snowflake.Node
	unitID    snowflake.ID
	serviceID snowflake.ID
	staffID   snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&directorydomain.Building{},
		&directorydomain.Unit{},
		&directorydomain.Staff{},
		&directorydomain.UtilityService{},
		&assignmentdomain.Assignment{},
		&assignmentdomain.AssignmentUnit{},
		&domain.Meter{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:        conn,
		Repo:      repository.NewMeterRepository(),
		Directory: directoryrepo.NewDirectoryRepository(),
		Node:      node,
		Clock:     clk,
		Logger:    zap.NewNop(),
	})

	building := directorydomain.Building{ID: node.Generate(), Code: "A", Name: "Tower A", Active: true}
	require.NoError(t, conn.Create(&building).Error)
	unit := directorydomain.Unit{ID: node.Generate(), BuildingID: building.ID, Code: "A-101", Floor: 1, Active: true}
	require.NoError(t, conn.Create(&unit).Error)
	water := directorydomain.UtilityService{ID: node.Generate(), Code: "WATER", Name: "Water", Unit: "m3"}
	require.NoError(t, conn.Create(&water).Error)
	staff := directorydomain.Staff{ID: node.Generate(), Name: "Dewi", Role: "FIELD", Active: true}
	require.NoError(t, conn.Create(&staff).Error)

	return &testEnv{db: conn, svc: svc, node: node, unitID: unit.ID, serviceID: water.ID, staffID: staff.ID}
}

func TestEnsure_ProvisionsMeter(t *testing.T) {
	env := newTestEnv(t)

	meter, err := env.svc.Ensure(context.Background(), nil, env.unitID, env.serviceID)
	require.NoError(t, err)
	assert.Equal(t, "WATER-A-101", meter.Code)
	assert.Equal(t, env.unitID, meter.UnitID)
	assert.Equal(t, env.serviceID, meter.ServiceID)
	assert.True(t, meter.Active)
	assert.Nil(t, meter.LastReading)
}

func TestEnsure_ReturnsExistingMeter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Ensure(ctx, nil, env.unitID, env.serviceID)
	require.NoError(t, err)
	second, err := env.svc.Ensure(ctx, nil, env.unitID, env.serviceID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, env.db.Model(&domain.Meter{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateLastReading(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	meter, err := env.svc.Ensure(ctx, nil, env.unitID, env.serviceID)
	require.NoError(t, err)

	at := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, env.svc.UpdateLastReading(ctx, nil, meter.ID, 123.5, at))

	got, err := env.svc.Get(ctx, meter.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastReading)
	assert.Equal(t, 123.5, *got.LastReading)
	require.NotNil(t, got.LastReadingDate)
}

func TestReplace_RetiresOldInstallsNew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old, err := env.svc.Ensure(ctx, nil, env.unitID, env.serviceID)
	require.NoError(t, err)
	require.NoError(t, env.svc.UpdateLastReading(ctx, nil, old.ID, 500, time.Now()))

	replacement, err := env.svc.Replace(ctx, old.ID, "WATER-A-101-R2")
	require.NoError(t, err)
	assert.Equal(t, env.unitID, replacement.UnitID)
	assert.Equal(t, env.serviceID, replacement.ServiceID)
	assert.True(t, replacement.Active)
	assert.Nil(t, replacement.LastReading)

	retired, err := env.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, retired.Active)
	assert.NotNil(t, retired.RetiredAt)

	meters, err := env.svc.ListByUnit(ctx, env.unitID)
	require.NoError(t, err)
	assert.Len(t, meters, 2)
}

func TestReplace_AlreadyRetired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old, err := env.svc.Ensure(ctx, nil, env.unitID, env.serviceID)
	require.NoError(t, err)
	_, err = env.svc.Replace(ctx, old.ID, "R2")
	require.NoError(t, err)

	_, err = env.svc.Replace(ctx, old.ID, "R3")
	assert.ErrorIs(t, err, domain.ErrMeterRetired)
}

func TestListByStaffCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	meter, err := env.svc.Ensure(ctx, nil, env.unitID, env.serviceID)
	require.NoError(t, err)

	cycleID := env.node.Generate()
	assignment := assignmentdomain.Assignment{
		ID:         env.node.Generate(),
		CycleID:    cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		StartDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.db.Create(&assignment).Error)
	require.NoError(t, env.db.Create(&assignmentdomain.AssignmentUnit{
		AssignmentID: assignment.ID,
		UnitID:       env.unitID,
		CycleID:      cycleID,
		ServiceID:    env.serviceID,
	}).Error)

	meters, err := env.svc.ListByStaffCycle(ctx, env.staffID, cycleID)
	require.NoError(t, err)
	require.Len(t, meters, 1)
	assert.Equal(t, meter.ID, meters[0].ID)

	meters, err = env.svc.ListByStaffCycle(ctx, env.staffID, env.node.Generate())
	require.NoError(t, err)
	assert.Empty(t, meters)
}

func TestGet_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Get(context.Background(), env.node.Generate())
	assert.ErrorIs(t, err, domain.ErrMeterNotFound)
}
