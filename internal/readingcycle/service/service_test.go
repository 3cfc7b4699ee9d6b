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
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/metra/internal/directory/repository"
	invoicedomain "github.com/smallbiznis/metra/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/metra/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/metra/internal/invoice/service"
	pricingdomain "github.com/smallbiznis/metra/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/metra/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/metra/internal/pricing/service"
	progressrepo "github.com/smallbiznis/metra/internal/progress/repository"
	progressservice "github.com/smallbiznis/metra/internal/progress/service"
	readingdomain "github.com/smallbiznis/metra/internal/reading/domain"
	"github.com/smallbiznis/metra/internal/readingcycle/domain"
	"github.com/smallbiznis/metra/internal/readingcycle/repository"
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
	serviceID  snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&directorydomain.Building{},
		&directorydomain.Unit{},
		&directorydomain.UtilityService{},
		&domain.ReadingCycle{},
		&assignmentdomain.Assignment{},
		&assignmentdomain.AssignmentUnit{},
		&readingdomain.MeterReading{},
		&pricingdomain.PricingTier{},
		&invoicedomain.InvoiceBatch{},
		&invoicedomain.InvoiceLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	logger := zap.NewNop()
	directoryRepo := directoryrepo.NewDirectoryRepository()

	pricing := pricingservice.New(pricingservice.Params{
		DB:        conn,
		Repo:      pricingrepo.NewTierRepository(),
		Directory: directoryRepo,
		Node:      node,
		Clock:     clk,
		Logger:    logger,
	})
	invoices := invoiceservice.New(invoiceservice.Params{
		DB:      conn,
		Repo:    invoicerepo.NewInvoiceRepository(),
		Pricing: pricing,
		Node:    node,
		Clock:   clk,
		Logger:  logger,
	})
	progress := progressservice.New(progressservice.Params{
		DB:          conn,
		Repo:        progressrepo.NewProgressRepository(),
		Assignments: assignmentrepo.NewAssignmentRepository(),
		Logger:      logger,
	})
	svc := New(Params{
		DB:          conn,
		Repo:        repository.NewCycleRepository(),
		Assignments: assignmentrepo.NewAssignmentRepository(),
		Progress:    progress,
		Invoices:    invoices,
		Directory:   directoryRepo,
		Node:        node,
		Clock:       clk,
		Logger:      logger,
	})

	building := directorydomain.Building{ID: node.Generate(), Code: "A", Name: "Tower A", Active: true}
	require.NoError(t, conn.Create(&building).Error)
	water := directorydomain.UtilityService{ID: node.Generate(), Code: "WATER", Name: "Water", Unit: "m3"}
	require.NoError(t, conn.Create(&water).Error)
	require.NoError(t, conn.Create(&pricingdomain.PricingTier{
		ID:             node.Generate(),
		ServiceID:      water.ID,
		TierOrder:      1,
		MinQuantity:    0,
		UnitPriceCents: 100,
		EffectiveFrom:  clk.Now().Add(-24 * time.Hour),
		Active:         true,
	}).Error)

	return &testEnv{db: conn, svc: svc, node: node, clk: clk, buildingID: building.ID, serviceID: water.ID}
}

func (e *testEnv) createCycle(t *testing.T) *domain.ReadingCycle {
	t.Helper()
	cycle, err := e.svc.Create(context.Background(), CreateRequest{
		ServiceID:  e.serviceID,
		PeriodFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodTo:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return cycle
}

func (e *testEnv) seedUnit(t *testing.T, code string) snowflake.ID {
	t.Helper()
	unit := directorydomain.Unit{
		ID:         e.node.Generate(),
		BuildingID: e.buildingID,
		Code:       code,
		Floor:      1,
		Active:     true,
	}
	require.NoError(t, e.db.Create(&unit).Error)
	return unit.ID
}

func (e *testEnv) seedAssignment(t *testing.T, cycleID snowflake.ID, unitIDs []snowflake.ID, completed bool) snowflake.ID {
	t.Helper()
	assignment := assignmentdomain.Assignment{
		ID:         e.node.Generate(),
		CycleID:    cycleID,
		ServiceID:  e.serviceID,
		AssignedTo: e.node.Generate(),
		StartDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	if completed {
		at := e.clk.Now()
		assignment.CompletedAt = &at
	}
	require.NoError(t, e.db.Create(&assignment).Error)
	for _, unitID := range unitIDs {
		require.NoError(t, e.db.Create(&assignmentdomain.AssignmentUnit{
			AssignmentID: assignment.ID,
			UnitID:       unitID,
			CycleID:      cycleID,
			ServiceID:    e.serviceID,
		}).Error)
	}
	return assignment.ID
}

func (e *testEnv) seedReading(t *testing.T, cycleID, assignmentID, unitID snowflake.ID, prev, current float64) {
	t.Helper()
	require.NoError(t, e.db.Create(&readingdomain.MeterReading{
		ID:           e.node.Generate(),
		MeterID:      e.node.Generate(),
		AssignmentID: assignmentID,
		CycleID:      cycleID,
		UnitID:       unitID,
		ReadingDate:  e.clk.Now(),
		CurrentIndex: current,
		PrevIndex:    prev,
	}).Error)
}

func TestCreate_InvalidPeriod(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), CreateRequest{
		ServiceID:  env.serviceID,
		PeriodFrom: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		PeriodTo:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
}

func TestCreate_OpensWithNoExport(t *testing.T) {
	env := newTestEnv(t)

	cycle := env.createCycle(t)
	assert.Equal(t, domain.StatusOpen, cycle.Status)
	assert.Equal(t, domain.ExportNone, cycle.ExportStatus)
}

func TestComplete_BlockedByIncompleteAssignment(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)
	unitID := env.seedUnit(t, "A-101")
	env.seedAssignment(t, cycle.ID, []snowflake.ID{unitID}, false)

	_, err := env.svc.Complete(context.Background(), cycle.ID)
	assert.ErrorIs(t, err, domain.ErrCycleNotReady)

	got, gerr := env.svc.Get(context.Background(), cycle.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.StatusOpen, got.Status)
}

func TestComplete_BlockedByUnassignedUnits(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)
	claimed := env.seedUnit(t, "A-101")
	env.seedUnit(t, "A-102")
	env.seedAssignment(t, cycle.ID, []snowflake.ID{claimed}, true)

	_, err := env.svc.Complete(context.Background(), cycle.ID)
	assert.ErrorIs(t, err, domain.ErrCycleNotReady)
}

func TestComplete_ExportsInvoices(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)
	unitID := env.seedUnit(t, "A-101")
	assignmentID := env.seedAssignment(t, cycle.ID, []snowflake.ID{unitID}, true)
	env.seedReading(t, cycle.ID, assignmentID, unitID, 100, 130)

	result, err := env.svc.Complete(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, result.Cycle.Status)
	assert.Equal(t, domain.ExportExported, result.Cycle.ExportStatus)
	require.NotNil(t, result.Export)
	assert.Equal(t, 1, result.Export.InvoicesCreated)
	assert.Equal(t, 1, result.Export.TotalReadings)

	var batches []invoicedomain.InvoiceBatch
	require.NoError(t, env.db.Find(&batches).Error)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(3000), batches[0].TotalAmountCents)
}

func TestComplete_AlreadyCompleted(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)
	unitID := env.seedUnit(t, "A-101")
	assignmentID := env.seedAssignment(t, cycle.ID, []snowflake.ID{unitID}, true)
	env.seedReading(t, cycle.ID, assignmentID, unitID, 0, 10)

	_, err := env.svc.Complete(context.Background(), cycle.ID)
	require.NoError(t, err)
	_, err = env.svc.Complete(context.Background(), cycle.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestComplete_ExportFailureKeepsCompletion(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)
	unitID := env.seedUnit(t, "A-101")
	assignmentID := env.seedAssignment(t, cycle.ID, []snowflake.ID{unitID}, true)
	env.seedReading(t, cycle.ID, assignmentID, unitID, 0, 20)

	// break the export target so the gate passes but the export cannot
	require.NoError(t, env.db.Migrator().DropTable(&invoicedomain.InvoiceBatch{}))

	result, err := env.svc.Complete(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, result.Cycle.Status)
	assert.Equal(t, domain.ExportFailed, result.Cycle.ExportStatus)
	assert.NotEmpty(t, result.Cycle.ExportError)
	assert.Nil(t, result.Export)

	// retry once the export target is back
	require.NoError(t, env.db.AutoMigrate(&invoicedomain.InvoiceBatch{}))
	export, err := env.svc.ExportInvoices(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, export.InvoicesCreated)

	got, err := env.svc.Get(context.Background(), cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExportExported, got.ExportStatus)
	assert.Empty(t, got.ExportError)
}

func TestExportInvoices_RequiresCompletedCycle(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)

	_, err := env.svc.ExportInvoices(context.Background(), cycle.ID)
	assert.ErrorIs(t, err, domain.ErrCycleNotCompleted)
}

func TestChangeStatus_ForwardOnly(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)
	ctx := context.Background()

	got, err := env.svc.ChangeStatus(ctx, cycle.ID, domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)

	_, err = env.svc.ChangeStatus(ctx, cycle.ID, domain.StatusOpen)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.svc.ChangeStatus(ctx, cycle.ID, domain.StatusInProgress)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestChangeStatus_UnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	cycle := env.createCycle(t)

	_, err := env.svc.ChangeStatus(context.Background(), cycle.ID, domain.Status("ARCHIVED"))
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
}

func TestChangeStatus_UnknownCycle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ChangeStatus(context.Background(), env.node.Generate(), domain.StatusClosed)
	assert.ErrorIs(t, err, domain.ErrCycleNotFound)
}
