package domain

import "errors"

var (
	ErrInvalidBalanceID    = errors.New("invalid_balance_id")
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidType         = errors.New("invalid_transaction_type")
	ErrBalanceNotFound     = errors.New("balance_not_found")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrExternalIDConflict  = errors.New("external_id_conflict")
	ErrDuplicateCharge     = errors.New("billing_record_already_charged")
	ErrLockContention      = errors.New("balance_lock_contention")
	ErrServiceUnavailable  = errors.New("ledger_unavailable")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrTransactionNotFound = errors.New("transaction_not_found")
)
