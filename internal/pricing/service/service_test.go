package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/metra/internal/clock"
	directorydomain "github.com/smallbiznis/metra/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/metra/internal/directory/repository"
	"github.com/smallbiznis/metra/internal/pricing/domain"
	"github.com/smallbiznis/metra/internal/pricing/repository"
	"github.com/smallbiznis/metra/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	svc       *Service
	node      *snowflake.Node
	clk       *clock.FakeClock
	serviceID snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&directorydomain.UtilityService{},
		&domain.PricingTier{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:        conn,
		Repo:      repository.NewTierRepository(),
		Directory: directoryrepo.NewDirectoryRepository(),
		Node:      node,
		Clock:     clk,
		Logger:    zap.NewNop(),
	})

	water := directorydomain.UtilityService{ID: node.Generate(), Code: "WATER", Name: "Water", Unit: "m3"}
	require.NoError(t, conn.Create(&water).Error)

	return &testEnv{db: conn, svc: svc, node: node, clk: clk, serviceID: water.ID}
}

func floatPtr(v float64) *float64 { return &v }

func TestSaveTier_FirstBandReportsUnboundedGap(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.SaveTier(context.Background(), SaveTierRequest{
		ServiceID:      env.serviceID,
		TierOrder:      1,
		MinQuantity:    0,
		MaxQuantity:    floatPtr(50),
		UnitPriceCents: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Tier)
	require.Len(t, result.Gaps, 1)
	assert.True(t, result.Gaps[0].Unbounded)
	assert.Equal(t, 50.0, result.Gaps[0].From)
}

func TestSaveTier_OverlapRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, MaxQuantity: floatPtr(50), UnitPriceCents: 100,
	})
	require.NoError(t, err)

	_, err = env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 2, MinQuantity: 40, MaxQuantity: floatPtr(100), UnitPriceCents: 150,
	})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)

	tiers, err := env.svc.ListTiers(ctx, env.serviceID)
	require.NoError(t, err)
	assert.Len(t, tiers, 1)
}

func TestSaveTier_BoundedGapStoredAndReported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, MaxQuantity: floatPtr(50), UnitPriceCents: 100,
	})
	require.NoError(t, err)

	result, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 2, MinQuantity: 60, UnitPriceCents: 200,
	})
	require.NoError(t, err)
	require.Len(t, result.Gaps, 1)
	assert.Equal(t, domain.Gap{From: 50, To: 60}, result.Gaps[0])
}

func TestSaveTier_InvalidBounds(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SaveTier(context.Background(), SaveTierRequest{
		ServiceID: env.serviceID, MinQuantity: 100, MaxQuantity: floatPtr(50), UnitPriceCents: 100,
	})
	var verrs *validation.Errors
	require.ErrorAs(t, err, &verrs)
}

func TestSaveTier_UnknownService(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SaveTier(context.Background(), SaveTierRequest{
		ServiceID: env.node.Generate(), MinQuantity: 0, UnitPriceCents: 100,
	})
	assert.ErrorIs(t, err, directorydomain.ErrServiceNotFound)
}

func TestUpdateTier_RemovingTopBandRequiresForce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, MaxQuantity: floatPtr(50), UnitPriceCents: 100,
	})
	require.NoError(t, err)
	top, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 2, MinQuantity: 51, UnitPriceCents: 200,
	})
	require.NoError(t, err)

	_, err = env.svc.UpdateTier(ctx, UpdateTierRequest{
		ID:          top.Tier.ID,
		MaxQuantity: floatPtr(100),
	})
	assert.ErrorIs(t, err, domain.ErrScheduleUncovered)

	result, err := env.svc.UpdateTier(ctx, UpdateTierRequest{
		ID:          top.Tier.ID,
		MaxQuantity: floatPtr(100),
		Force:       true,
	})
	require.NoError(t, err)
	require.Len(t, result.Gaps, 1)
	assert.True(t, result.Gaps[0].Unbounded)
}

func TestUpdateTier_PriceChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	saved, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, UnitPriceCents: 100,
	})
	require.NoError(t, err)

	newPrice := int64(250)
	result, err := env.svc.UpdateTier(ctx, UpdateTierRequest{
		ID:             saved.Tier.ID,
		UnitPriceCents: &newPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), result.Tier.UnitPriceCents)
	assert.Empty(t, result.Gaps)
}

func TestDeleteTier_ReportsRemainingGaps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, MaxQuantity: floatPtr(50), UnitPriceCents: 100,
	})
	require.NoError(t, err)
	top, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 2, MinQuantity: 51, UnitPriceCents: 200,
	})
	require.NoError(t, err)

	gaps, err := env.svc.DeleteTier(ctx, top.Tier.ID)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].Unbounded)
	assert.Equal(t, 50.0, gaps[0].From)
}

func TestPriceConsumption_UsesEffectiveSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, MaxQuantity: floatPtr(50), UnitPriceCents: 100,
	})
	require.NoError(t, err)
	_, err = env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 2, MinQuantity: 51, UnitPriceCents: 200,
	})
	require.NoError(t, err)

	amount, err := env.svc.PriceConsumption(ctx, nil, env.serviceID, 80)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), amount)
}

func TestPriceConsumption_ExpiredTierIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	until := env.clk.Now().Add(-time.Hour)
	from := until.Add(-24 * time.Hour)
	_, err := env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, UnitPriceCents: 500,
		EffectiveFrom: &from, EffectiveUntil: &until,
	})
	require.NoError(t, err)
	_, err = env.svc.SaveTier(ctx, SaveTierRequest{
		ServiceID: env.serviceID, TierOrder: 1, MinQuantity: 0, UnitPriceCents: 100,
	})
	require.NoError(t, err)

	amount, err := env.svc.PriceConsumption(ctx, nil, env.serviceID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)
}
