package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BillingRecord is the immutable usage snapshot of one deployment for one
// billing period. Every price input is copied in so that later catalog
// changes cannot alter what was charged.
type BillingRecord struct {
	ID                     snowflake.ID      `gorm:"primaryKey"`
	TenantID               string            `gorm:"type:text;not null;index"`
	DeploymentID           string            `gorm:"type:text;not null;uniqueIndex:ux_billing_records_deployment_period,priority:1"`
	PeriodStart            time.Time         `gorm:"not null;uniqueIndex:ux_billing_records_deployment_period,priority:2"`
	PeriodEnd              time.Time         `gorm:"not null"`
	DesiredReplicas        int               `gorm:"not null"`
	PresetID               snowflake.ID      `gorm:"not null"`
	PresetCPUMillicores    int64             `gorm:"not null"`
	PresetMemoryMB         int64             `gorm:"not null"`
	PresetHourlyPrice      decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	AddonCPUMillicores     int64             `gorm:"not null;default:0"`
	AddonMemoryMB          int64             `gorm:"not null;default:0"`
	AddonCPUHourlyPrice    decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	AddonMemoryHourlyPrice decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	CostPerHour            decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	HoursUsed              decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	TotalCost              decimal.Decimal   `gorm:"type:numeric(20,6);not null"`
	Currency               string            `gorm:"type:text;not null"`
	ResourcesSnapshot      datatypes.JSONMap `gorm:"type:json"`
	CreatedAt              time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (BillingRecord) TableName() string { return "billing_records" }

type Repository interface {
	Exists(ctx context.Context, deploymentID string, periodStart time.Time) (bool, error)
	// Insert writes the record inside the caller's transaction. A second
	// record for the same deployment and period fails with
	// ErrSnapshotAlreadyApplied.
	Insert(ctx context.Context, tx *gorm.DB, record *BillingRecord) error
	FindByDeploymentPeriod(ctx context.Context, deploymentID string, periodStart time.Time) (*BillingRecord, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]BillingRecord, int64, error)
}
