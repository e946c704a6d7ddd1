package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeFreeCredit  TransactionType = "free_credit"
	TransactionTypeTopUp       TransactionType = "top_up"
	TransactionTypeUsageCharge TransactionType = "usage_charge"
	TransactionTypeRefund      TransactionType = "refund"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeFreeCredit, TransactionTypeTopUp, TransactionTypeUsageCharge, TransactionTypeRefund:
		return true
	default:
		return false
	}
}

// AmountScale is the number of decimal places amounts are stored with.
const AmountScale = 6

// FitsScale reports whether amount survives storage at AmountScale
// unchanged.
func FitsScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(AmountScale))
}

// CheckAmount enforces the sign each type carries: credits are positive,
// charges and refunds negative. Amounts finer than AmountScale are
// rejected, since the stored value would no longer match a retry.
func (t TransactionType) CheckAmount(amount decimal.Decimal) error {
	if amount.IsZero() || !FitsScale(amount) {
		return ErrInvalidAmount
	}
	switch t {
	case TransactionTypeFreeCredit, TransactionTypeTopUp:
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
	case TransactionTypeUsageCharge, TransactionTypeRefund:
		if !amount.IsNegative() {
			return ErrInvalidAmount
		}
	default:
		return ErrInvalidType
	}
	return nil
}

// MayOverdraw reports whether a debit of this type may leave the balance
// below zero. Metered usage is charged regardless of funds; suspension
// handles the deficit.
func (t TransactionType) MayOverdraw() bool {
	return t == TransactionTypeUsageCharge
}

// Balance is the single authoritative amount a tenant holds.
type Balance struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	TenantID  string          `gorm:"type:text;not null;uniqueIndex:ux_balances_tenant"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0"`
	Currency  string          `gorm:"type:text;not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (Balance) TableName() string { return "balances" }

// Transaction is an append-only ledger entry. Nil BillingRecordID and
// ExternalID are stored as NULL so the unique indexes ignore them.
type Transaction struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	BalanceID       snowflake.ID    `gorm:"not null;index"`
	TenantID        string          `gorm:"type:text;not null;index"`
	BillingRecordID *snowflake.ID   `gorm:"uniqueIndex:ux_transactions_billing_record"`
	ExternalID      *string         `gorm:"type:text;uniqueIndex:ux_transactions_external_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	BalanceAfter    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Type            TransactionType `gorm:"type:text;not null"`
	Detail          string          `gorm:"type:text"`
	CreatedAt       time.Time       `gorm:"not null;index"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

// ExternalIDValue returns the external id or an empty string.
func (t Transaction) ExternalIDValue() string {
	if t.ExternalID == nil {
		return ""
	}
	return *t.ExternalID
}
