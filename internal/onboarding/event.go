package onboarding

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const TenantCreatedEventType = "tenant.created"

// TenantEvent is a row of the tenant collaborator's outbox.
type TenantEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	TenantID    string         `gorm:"type:text;not null;index"`
	EventType   string         `gorm:"type:text;not null;index:idx_tenant_events_pending,priority:1"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Processed   bool           `gorm:"not null;default:false;index:idx_tenant_events_pending,priority:2"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
}

func (TenantEvent) TableName() string { return "tenant_events" }

type tenantCreatedPayload struct {
	TenantID  string `json:"tenant_id"`
	Currency  string `json:"currency"`
	CreatedAt string `json:"created_at"`
}
