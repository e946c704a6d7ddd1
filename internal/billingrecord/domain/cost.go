package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeScale is the number of decimal places of a charged amount.
const ChargeScale = 2

// HoursScale is the number of decimal places kept on hours_used.
const HoursScale = 6

// CostInput carries the prices and allocation that determine a charge.
type CostInput struct {
	PresetHourlyPrice      decimal.Decimal
	AddonCPUMillicores     int64
	AddonCPUHourlyPrice    decimal.Decimal
	AddonMemoryMB          int64
	AddonMemoryHourlyPrice decimal.Decimal
	Replicas               int
	HoursUsed              decimal.Decimal
}

// Cost is the result of ComputeCost.
type Cost struct {
	PerHour decimal.Decimal
	Total   decimal.Decimal
}

// ComputeCost returns the per-replica hourly price and the total charge,
// rounded half away from zero to ChargeScale places.
func ComputeCost(in CostInput) Cost {
	perHour := in.PresetHourlyPrice.
		Add(decimal.NewFromInt(in.AddonCPUMillicores).Mul(in.AddonCPUHourlyPrice)).
		Add(decimal.NewFromInt(in.AddonMemoryMB).Mul(in.AddonMemoryHourlyPrice))

	replicas := in.Replicas
	if replicas < 0 {
		replicas = 0
	}
	total := perHour.
		Mul(decimal.NewFromInt(int64(replicas))).
		Mul(in.HoursUsed).
		Round(ChargeScale)

	return Cost{PerHour: perHour, Total: total}
}

// HoursBetween converts a window to fractional hours.
func HoursBetween(start, end time.Time) decimal.Decimal {
	if !end.After(start) {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(end.Sub(start))).
		DivRound(decimal.NewFromInt(int64(time.Hour)), HoursScale)
}
