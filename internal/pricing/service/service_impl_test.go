package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/internal/clock"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/computeledger/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/computeledger/internal/pricing/service"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) pricingdomain.Service {
	t.Helper()

	db, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pricingdomain.Preset{}, &pricingdomain.AddonRate{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return pricingservice.NewService(pricingservice.Params{
		Repo:  pricingrepo.NewRepository(db),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func TestCreatePresetDerivesHourlyPrice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	preset, err := svc.CreatePreset(ctx, pricingdomain.CreatePresetRequest{
		Name:          "standard",
		CPUMillicores: 500,
		MemoryMB:      512,
		Currency:      "uzs",
		MonthlyPrice:  decimal.NewFromInt(12000),
	})
	require.NoError(t, err)
	assert.Equal(t, "UZS", preset.Currency)
	assert.Equal(t, "16.666667", preset.HourlyPrice.StringFixed(6))

	price, err := svc.Preset(ctx, preset.ID)
	require.NoError(t, err)
	assert.True(t, price.HourlyPrice.Equal(decimal.RequireFromString("16.666667")))
	assert.Equal(t, int64(500), price.CPUMillicores)
}

func TestPresetNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Preset(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, pricingdomain.ErrPresetNotFound)

	_, err = svc.AddonRate(context.Background())
	assert.ErrorIs(t, err, pricingdomain.ErrAddonRateNotFound)
}

func TestUpdatePresetPriceInvalidatesCache(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	preset, err := svc.CreatePreset(ctx, pricingdomain.CreatePresetRequest{
		Name:          "standard",
		CPUMillicores: 500,
		MemoryMB:      512,
		Currency:      "UZS",
		MonthlyPrice:  decimal.NewFromInt(7200),
	})
	require.NoError(t, err)

	before, err := svc.Preset(ctx, preset.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.000000", before.HourlyPrice.StringFixed(6))

	_, err = svc.UpdatePresetPrice(ctx, preset.ID, decimal.NewFromInt(14400))
	require.NoError(t, err)

	after, err := svc.Preset(ctx, preset.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.000000", after.HourlyPrice.StringFixed(6))
}

func TestInactivePresetStillPrices(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	preset, err := svc.CreatePreset(ctx, pricingdomain.CreatePresetRequest{
		Name:          "legacy",
		CPUMillicores: 250,
		MemoryMB:      256,
		Currency:      "UZS",
		MonthlyPrice:  decimal.NewFromInt(3600),
	})
	require.NoError(t, err)

	_, err = svc.SetPresetActive(ctx, preset.ID, false)
	require.NoError(t, err)

	price, err := svc.Preset(ctx, preset.ID)
	require.NoError(t, err)
	assert.False(t, price.IsActive)

	presets, err := svc.ListPresets(ctx)
	require.NoError(t, err)
	assert.Empty(t, presets)
}

func TestAddonRateUsesNewestRow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateAddonRate(ctx, pricingdomain.CreateAddonRateRequest{
		Currency:               "UZS",
		CPUMonthlyUnitPrice:    decimal.NewFromInt(72),
		MemoryMonthlyUnitPrice: decimal.NewFromInt(36),
	})
	require.NoError(t, err)

	rate, err := svc.AddonRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.100000", rate.CPUHourlyUnitPrice.StringFixed(6))
	assert.Equal(t, "0.050000", rate.MemoryHourlyUnitPrice.StringFixed(6))
}

func TestCreatePresetValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePreset(ctx, pricingdomain.CreatePresetRequest{Name: "x", CPUMillicores: 1, MemoryMB: 1, Currency: "UZS", MonthlyPrice: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	_, err = svc.CreatePreset(ctx, pricingdomain.CreatePresetRequest{Name: " ", CPUMillicores: 1, MemoryMB: 1, Currency: "UZS"})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidName)

	_, err = svc.CreatePreset(ctx, pricingdomain.CreatePresetRequest{Name: "x", CPUMillicores: 0, MemoryMB: 1, Currency: "UZS"})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidResources)
}
