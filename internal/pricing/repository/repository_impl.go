package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) pricingdomain.Repository {
	return &repository{db: db}
}

func (r *repository) FindPreset(ctx context.Context, id snowflake.ID) (*pricingdomain.Preset, error) {
	var preset pricingdomain.Preset
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, description, cpu_millicores, memory_mb, currency, monthly_price, hourly_price,
			max_addon_cpu_millicores, max_addon_memory_mb, is_active, created_at, updated_at
		 FROM presets
		 WHERE id = ?`,
		id,
	).Scan(&preset).Error
	if err != nil {
		return nil, err
	}
	if preset.ID == 0 {
		return nil, nil
	}
	return &preset, nil
}

func (r *repository) ListActivePresets(ctx context.Context) ([]pricingdomain.Preset, error) {
	var presets []pricingdomain.Preset
	err := r.db.WithContext(ctx).
		Model(&pricingdomain.Preset{}).
		Where("is_active = ?", true).
		Order("monthly_price ASC").
		Order("id ASC").
		Find(&presets).Error
	if err != nil {
		return nil, err
	}
	return presets, nil
}

func (r *repository) InsertPreset(ctx context.Context, preset *pricingdomain.Preset) error {
	return r.db.WithContext(ctx).Create(preset).Error
}

func (r *repository) UpdatePreset(ctx context.Context, preset *pricingdomain.Preset) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE presets
		 SET monthly_price = ?, hourly_price = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		preset.MonthlyPrice,
		preset.HourlyPrice,
		preset.IsActive,
		preset.UpdatedAt,
		preset.ID,
	).Error
}

func (r *repository) CurrentAddonRate(ctx context.Context) (*pricingdomain.AddonRate, error) {
	var rate pricingdomain.AddonRate
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, currency, cpu_monthly_unit_price, cpu_hourly_unit_price,
			memory_monthly_unit_price, memory_hourly_unit_price, created_at, updated_at
		 FROM addon_rates
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) InsertAddonRate(ctx context.Context, rate *pricingdomain.AddonRate) error {
	return r.db.WithContext(ctx).Create(rate).Error
}
