package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Catalog is the read side consumed by the usage snapshotter.
type Catalog interface {
	Preset(ctx context.Context, id snowflake.ID) (PresetPrice, error)
	AddonRate(ctx context.Context) (AddonPrice, error)
}

type Service interface {
	Catalog

	GetPreset(ctx context.Context, id snowflake.ID) (*Preset, error)
	ListPresets(ctx context.Context) ([]Preset, error)
	CreatePreset(ctx context.Context, req CreatePresetRequest) (*Preset, error)
	UpdatePresetPrice(ctx context.Context, id snowflake.ID, monthly decimal.Decimal) (*Preset, error)
	SetPresetActive(ctx context.Context, id snowflake.ID, active bool) (*Preset, error)
	CreateAddonRate(ctx context.Context, req CreateAddonRateRequest) (*AddonRate, error)
}

type CreatePresetRequest struct {
	Name                  string
	Description           string
	CPUMillicores         int64
	MemoryMB              int64
	Currency              string
	MonthlyPrice          decimal.Decimal
	MaxAddonCPUMillicores int64
	MaxAddonMemoryMB      int64
}

type CreateAddonRateRequest struct {
	Currency               string
	CPUMonthlyUnitPrice    decimal.Decimal
	MemoryMonthlyUnitPrice decimal.Decimal
}

type Repository interface {
	FindPreset(ctx context.Context, id snowflake.ID) (*Preset, error)
	ListActivePresets(ctx context.Context) ([]Preset, error)
	InsertPreset(ctx context.Context, preset *Preset) error
	UpdatePreset(ctx context.Context, preset *Preset) error
	CurrentAddonRate(ctx context.Context) (*AddonRate, error)
	InsertAddonRate(ctx context.Context, rate *AddonRate) error
}
