package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type ApplyRequest struct {
	BalanceID       snowflake.ID
	Amount          decimal.Decimal
	Type            TransactionType
	Detail          string
	ExternalID      string
	BillingRecordID *snowflake.ID
}

type ApplyResult struct {
	Balance     Balance
	Transaction Transaction
	// Replayed is set when ExternalID matched an earlier transaction and
	// nothing was written.
	Replayed bool
}

// TxHook runs inside the apply transaction after the balance row is locked
// and before the ledger entry is written. Returning an error rolls back the
// whole unit.
type TxHook func(ctx context.Context, tx *gorm.DB, balance Balance) error

type ApplyOptions struct {
	TxHook TxHook
}

type ApplyOption func(*ApplyOptions)

// WithTxHook attaches work that must commit atomically with the ledger entry.
func WithTxHook(hook TxHook) ApplyOption {
	return func(o *ApplyOptions) {
		o.TxHook = hook
	}
}

type ListTransactionsRequest struct {
	TenantID string
	Limit    int
	Offset   int
}

type ListTransactionsResponse struct {
	Data     []Transaction       `json:"data"`
	Total    int64               `json:"total"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// BalanceCheck compares the stored amount with the sum of its entries.
type BalanceCheck struct {
	BalanceID  snowflake.ID
	Amount     decimal.Decimal
	Sum        decimal.Decimal
	Entries    int
	Consistent bool
}

type Service interface {
	Apply(ctx context.Context, req ApplyRequest, opts ...ApplyOption) (*ApplyResult, error)
	CreateBalance(ctx context.Context, tenantID, currency string) (*Balance, error)
	GetBalance(ctx context.Context, balanceID snowflake.ID) (*Balance, error)
	GetBalanceByTenant(ctx context.Context, tenantID string) (*Balance, error)
	ListBalancesBelow(ctx context.Context, threshold decimal.Decimal) ([]Balance, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (*ListTransactionsResponse, error)
	VerifyBalance(ctx context.Context, balanceID snowflake.ID) (*BalanceCheck, error)
}

// Repository methods taking a *gorm.DB run on that handle, which is the
// caller's transaction during apply.
type Repository interface {
	InsertBalance(ctx context.Context, balance *Balance) error
	FindBalance(ctx context.Context, db *gorm.DB, balanceID snowflake.ID) (*Balance, error)
	LockBalance(ctx context.Context, tx *gorm.DB, balanceID snowflake.ID) (*Balance, error)
	FindBalanceByTenant(ctx context.Context, tenantID string) (*Balance, error)
	UpdateBalanceAmount(ctx context.Context, tx *gorm.DB, balance *Balance) error
	ListBalancesBelow(ctx context.Context, threshold decimal.Decimal) ([]Balance, error)

	FindTransactionByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*Transaction, error)
	InsertTransaction(ctx context.Context, tx *gorm.DB, txn *Transaction) error
	ListTransactions(ctx context.Context, tenantID string, limit, offset int) ([]Transaction, int64, error)
	ListTransactionAmounts(ctx context.Context, balanceID snowflake.ID) ([]decimal.Decimal, error)
}
