package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Action string

const (
	ActionSuspend Action = "suspend"
	ActionResume  Action = "resume"
)

const ReasonInsufficientBalance = "insufficient_balance"

// TenantSuspension records the last signal sent for a tenant.
type TenantSuspension struct {
	TenantID            string          `gorm:"primaryKey;type:text"`
	Status              Status          `gorm:"type:text;not null;index"`
	Reason              string          `gorm:"type:text"`
	BalanceAtSuspension decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	SuspendedAt         *time.Time
	ResumedAt           *time.Time
	LastNotifiedAt      *time.Time
	UpdatedAt           time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (TenantSuspension) TableName() string { return "tenant_suspensions" }

// NotifiedWithin reports whether a signal went out less than cooldown ago.
func (s *TenantSuspension) NotifiedWithin(now time.Time, cooldown time.Duration) bool {
	if s == nil || s.LastNotifiedAt == nil || cooldown <= 0 {
		return false
	}
	return now.Sub(*s.LastNotifiedAt) < cooldown
}

// Signal is the message handed to orchestration.
type Signal struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	TenantID   string    `json:"tenant_id"`
	Reason     string    `json:"reason"`
	Balance    string    `json:"balance"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, signal Signal) error
}

type Repository interface {
	Find(ctx context.Context, tenantID string) (*TenantSuspension, error)
	Upsert(ctx context.Context, row *TenantSuspension) error
	ListSuspended(ctx context.Context) ([]TenantSuspension, error)
}
