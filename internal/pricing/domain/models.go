package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// HoursPerBillingMonth is the fixed divisor between monthly and hourly
// prices. It does not follow calendar month length.
const HoursPerBillingMonth = 720

// HourlyPriceScale is the number of decimal places kept on hourly prices.
const HourlyPriceScale = 6

// Preset is a named resource bundle with a monthly price.
type Preset struct {
	ID                    snowflake.ID    `gorm:"primaryKey"`
	Name                  string          `gorm:"type:text;not null"`
	Description           string          `gorm:"type:text"`
	CPUMillicores         int64           `gorm:"not null"`
	MemoryMB              int64           `gorm:"not null"`
	Currency              string          `gorm:"type:text;not null"`
	MonthlyPrice          decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	HourlyPrice           decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	MaxAddonCPUMillicores int64           `gorm:"not null;default:0"`
	MaxAddonMemoryMB      int64           `gorm:"not null;default:0"`
	IsActive              bool            `gorm:"not null;default:true"`
	CreatedAt             time.Time       `gorm:"not null"`
	UpdatedAt             time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (Preset) TableName() string { return "presets" }

// AddonRate prices resources beyond the preset. One cpu unit is a millicore,
// one memory unit is a megabyte. The newest row is the current rate.
type AddonRate struct {
	ID                     snowflake.ID    `gorm:"primaryKey"`
	Currency               string          `gorm:"type:text;not null"`
	CPUMonthlyUnitPrice    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CPUHourlyUnitPrice     decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	MemoryMonthlyUnitPrice decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	MemoryHourlyUnitPrice  decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CreatedAt              time.Time       `gorm:"not null;index"`
	UpdatedAt              time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (AddonRate) TableName() string { return "addon_rates" }

// PresetPrice is the pricing view of a preset used by the snapshotter.
type PresetPrice struct {
	PresetID              snowflake.ID
	CPUMillicores         int64
	MemoryMB              int64
	HourlyPrice           decimal.Decimal
	Currency              string
	MaxAddonCPUMillicores int64
	MaxAddonMemoryMB      int64
	IsActive              bool
}

// AddonPrice is the current per-unit hourly rate.
type AddonPrice struct {
	CPUHourlyUnitPrice    decimal.Decimal
	MemoryHourlyUnitPrice decimal.Decimal
	Currency              string
}

// HourlyPrice derives the hourly price from a monthly price.
func HourlyPrice(monthly decimal.Decimal) decimal.Decimal {
	return monthly.DivRound(decimal.NewFromInt(HoursPerBillingMonth), HourlyPriceScale)
}

func (p Preset) Price() PresetPrice {
	return PresetPrice{
		PresetID:              p.ID,
		CPUMillicores:         p.CPUMillicores,
		MemoryMB:              p.MemoryMB,
		HourlyPrice:           p.HourlyPrice,
		Currency:              p.Currency,
		MaxAddonCPUMillicores: p.MaxAddonCPUMillicores,
		MaxAddonMemoryMB:      p.MaxAddonMemoryMB,
		IsActive:              p.IsActive,
	}
}

// CheckAddons validates add-on amounts against the preset guardrails. A zero
// guardrail means the preset does not cap that resource.
func (p PresetPrice) CheckAddons(cpuMillicores, memoryMB int64) error {
	if cpuMillicores < 0 || memoryMB < 0 {
		return ErrInvalidAddonAmount
	}
	if p.MaxAddonCPUMillicores > 0 && cpuMillicores > p.MaxAddonCPUMillicores {
		return ErrAddonLimitExceeded
	}
	if p.MaxAddonMemoryMB > 0 && memoryMB > p.MaxAddonMemoryMB {
		return ErrAddonLimitExceeded
	}
	return nil
}

func (r AddonRate) Price() AddonPrice {
	return AddonPrice{
		CPUHourlyUnitPrice:    r.CPUHourlyUnitPrice,
		MemoryHourlyUnitPrice: r.MemoryHourlyUnitPrice,
		Currency:              r.Currency,
	}
}
