package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUpdating  Status = "updating"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
	StatusDeleted   Status = "deleted"
)

// BillableStatuses are the states in which a deployment consumes its
// allocation for the whole period.
var BillableStatuses = []Status{
	StatusRunning,
	StatusUnhealthy,
	StatusDegraded,
	StatusUpdating,
}

// Deployment is the usage fact owned by the orchestration layer. This
// service only reads it.
type Deployment struct {
	ID                 string       `gorm:"primaryKey;type:text"`
	TenantID           string       `gorm:"type:text;not null;index"`
	PresetID           snowflake.ID `gorm:"not null"`
	AddonCPUMillicores int64        `gorm:"not null;default:0"`
	AddonMemoryMB      int64        `gorm:"not null;default:0"`
	DesiredReplicas    int          `gorm:"not null;default:1"`
	Status             Status       `gorm:"type:text;not null;index"`
	CreatedAt          time.Time    `gorm:"not null"`
	StoppedAt          *time.Time
}

// TableName sets the database table name.
func (Deployment) TableName() string { return "deployments" }

// UsageWindow clips the deployment lifetime to [periodStart, periodEnd).
// ok is false when the deployment did not exist during the period.
func (d Deployment) UsageWindow(periodStart, periodEnd time.Time) (start, end time.Time, ok bool) {
	start = periodStart
	if d.CreatedAt.After(start) {
		start = d.CreatedAt
	}
	end = periodEnd
	if d.StoppedAt != nil && d.StoppedAt.Before(end) {
		end = *d.StoppedAt
	}
	if !end.After(start) {
		return start, end, false
	}
	return start, end, true
}

type Repository interface {
	// ListBillable returns deployments that consumed resources during the
	// period: created before its end and either in a billable status or
	// stopped after its start.
	ListBillable(ctx context.Context, periodStart, periodEnd time.Time) ([]Deployment, error)
}
