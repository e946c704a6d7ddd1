package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypeRefunded         = "refunded"
)

// EventRecord is the inbox row of a received payment event.
type EventRecord struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	TenantID    string          `json:"tenant_id" gorm:"type:text;not null;index"`
	Provider    string          `json:"provider" gorm:"type:text;not null"`
	ExternalID  string          `json:"external_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_external_id"`
	EventType   string          `json:"event_type" gorm:"type:text;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(20,6);not null"`
	Currency    string          `json:"currency" gorm:"type:text;not null"`
	Detail      string          `json:"detail" gorm:"type:text"`
	Payload     datatypes.JSON  `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt  time.Time       `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time      `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// PaymentEvent is the gateway-neutral form of a settled payment or refund.
// A positive amount credits the tenant, a negative amount is a refund.
type PaymentEvent struct {
	Provider   string
	ExternalID string
	TenantID   string
	Amount     decimal.Decimal
	Currency   string
	Detail     string
	OccurredAt time.Time
	RawPayload []byte
}

// EventType reports the inbox event type for the amount's sign.
func (e PaymentEvent) EventType() string {
	if e.Amount.IsNegative() {
		return EventTypeRefunded
	}
	return EventTypePaymentSucceeded
}

// TransactionType maps the event onto the ledger.
func (e PaymentEvent) TransactionType() ledgerdomain.TransactionType {
	if e.Amount.IsNegative() {
		return ledgerdomain.TransactionTypeRefund
	}
	return ledgerdomain.TransactionTypeTopUp
}

type Result struct {
	EventID snowflake.ID
	// Duplicate is set when the event had already been processed.
	Duplicate bool
	Applied   *ledgerdomain.ApplyResult
}

type Service interface {
	ProcessEvent(ctx context.Context, event PaymentEvent) (*Result, error)
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, externalID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
