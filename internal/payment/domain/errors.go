package domain

import "errors"

var (
	ErrInvalidEvent    = errors.New("invalid_event")
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidPayload  = errors.New("invalid_payload")
)
