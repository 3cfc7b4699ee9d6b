package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/metra/internal/assignment/domain"
	"github.com/smallbiznis/metra/internal/assignment/repository"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/metra/internal/directory/repository"
	cycledomain "github.com/smallbiznis/metra/internal/readingcycle/domain"
	cyclerepo "github.com/smallbiznis/metra/internal/readingcycle/repository"
	"github.com/smallbiznis/metra/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	svc        *Service
	node       *snowflake.Node
	clk        *clock.FakeClock
	buildingID snowflake.ID
	unitIDs    []snowflake.ID
	staffID    snowflake.ID
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
		&directorydomain.Staff{},
		&directorydomain.UtilityService{},
		&cycledomain.ReadingCycle{},
		&domain.Assignment{},
		&domain.AssignmentUnit{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:        conn,
		Repo:      repository.NewAssignmentRepository(),
		Cycles:    cyclerepo.NewCycleRepository(),
		Directory: directoryrepo.NewDirectoryRepository(),
		Node:      node,
		Clock:     clk,
		Logger:    zap.NewNop(),
	})

	building := directorydomain.Building{ID: node.Generate(), Code: "A", Name: "Tower A", Active: true}
	require.NoError(t, conn.Create(&building).Error)

	var unitIDs []snowflake.ID
	for i, floor := range []int{1, 1, 2} {
		unit := directorydomain.Unit{
			ID:         node.Generate(),
			BuildingID: building.ID,
			Code:       fmt.Sprintf("A-%d0%d", floor, i+1),
			Floor:      floor,
			Active:     true,
		}
		require.NoError(t, conn.Create(&unit).Error)
		unitIDs = append(unitIDs, unit.ID)
	}

	staff := directorydomain.Staff{ID: node.Generate(), Name: "Dewi", Role: "FIELD", Active: true}
	require.NoError(t, conn.Create(&staff).Error)
	water := directorydomain.UtilityService{ID: node.Generate(), Code: "WATER", Name: "Water", Unit: "m3"}
	require.NoError(t, conn.Create(&water).Error)

	cycle := cycledomain.ReadingCycle{
		ID:           node.Generate(),
		ServiceID:    water.ID,
		PeriodFrom:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodTo:     time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Status:       cycledomain.StatusOpen,
		ExportStatus: cycledomain.ExportNone,
		CreatedAt:    clk.Now(),
		UpdatedAt:    clk.Now(),
	}
	require.NoError(t, conn.Create(&cycle).Error)

	return &testEnv{
		db:         conn,
		svc:        svc,
		node:       node,
		clk:        clk,
		buildingID: building.ID,
		unitIDs:    unitIDs,
		staffID:    staff.ID,
		serviceID:  water.ID,
		cycleID:    cycle.ID,
	}
}

func TestCreate_ClaimsUnits(t *testing.T) {
	env := newTestEnv(t)

	assignment, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:2],
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, env.unitIDs[:2], assignment.UnitIDs)
	// dates default to the cycle period
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), assignment.StartDate.UTC())
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), assignment.EndDate.UTC())
}

func TestCreate_ClaimRowPerUnit(t *testing.T) {
	env := newTestEnv(t)

	// every unit of the set gets its own claim row; only a claim on the
	// same unit may collide
	_, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:2],
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&domain.AssignmentUnit{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreate_ConflictOnClaimedUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:2],
	})
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[1:],
	})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []snowflake.ID{env.unitIDs[1]}, conflict.UnitIDs)

	// the rejected claim must not leave partial rows behind
	assignments, lerr := env.svc.ListByCycle(ctx, env.cycleID)
	require.NoError(t, lerr)
	assert.Len(t, assignments, 1)
}

func TestCreate_SameUnitDifferentCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	otherCycle := cycledomain.ReadingCycle{
		ID:           env.node.Generate(),
		ServiceID:    env.serviceID,
		PeriodFrom:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		PeriodTo:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:       cycledomain.StatusOpen,
		ExportStatus: cycledomain.ExportNone,
	}
	require.NoError(t, env.db.Create(&otherCycle).Error)

	_, err := env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, CreateRequest{
		CycleID:    otherCycle.ID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	assert.NoError(t, err)
}

func TestCreate_ByFloors(t *testing.T) {
	env := newTestEnv(t)

	assignment, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		BuildingID: &env.buildingID,
		AssignedTo: env.staffID,
		Floors:     []int{1},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, env.unitIDs[:2], assignment.UnitIDs)
}

func TestCreate_FloorsRequireBuilding(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		Floors:     []int{1},
	})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
}

func TestCreate_DatesOutsidePeriod(t *testing.T) {
	env := newTestEnv(t)

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
		StartDate:  &start,
	})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
}

func TestCreate_NoUnits(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
	})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
}

func TestCreate_UnknownStaff(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.node.Generate(),
		UnitIDs:    env.unitIDs[:1],
	})
	assert.ErrorIs(t, err, directorydomain.ErrStaffNotFound)
}

func TestDelete_FreesClaimedUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assignment, err := env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.Delete(ctx, assignment.ID))

	_, err = env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	assert.NoError(t, err)
}

func TestDelete_CompletedAssignmentImmutable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assignment, err := env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	require.NoError(t, err)
	_, err = env.svc.Complete(ctx, assignment.ID)
	require.NoError(t, err)

	err = env.svc.Delete(ctx, assignment.ID)
	assert.ErrorIs(t, err, domain.ErrAssignmentCompleted)
}

func TestComplete_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assignment, err := env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	require.NoError(t, err)

	first, err := env.svc.Complete(ctx, assignment.ID)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	env.clk.Advance(time.Hour)
	second, err := env.svc.Complete(ctx, assignment.ID)
	require.NoError(t, err)
	require.NotNil(t, second.CompletedAt)
	assert.Equal(t, first.CompletedAt.UTC(), second.CompletedAt.UTC())
}

func TestListByStaff_ActiveOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	done, err := env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[:1],
	})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, CreateRequest{
		CycleID:    env.cycleID,
		ServiceID:  env.serviceID,
		AssignedTo: env.staffID,
		UnitIDs:    env.unitIDs[1:2],
	})
	require.NoError(t, err)
	_, err = env.svc.Complete(ctx, done.ID)
	require.NoError(t, err)

	all, err := env.svc.ListByStaff(ctx, env.staffID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := env.svc.ListByStaff(ctx, env.staffID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Nil(t, active[0].CompletedAt)
}
