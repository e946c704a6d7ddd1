package domain

import "errors"

var (
	ErrPresetNotFound     = errors.New("preset_not_found")
	ErrAddonRateNotFound  = errors.New("addon_rate_not_found")
	ErrAddonLimitExceeded = errors.New("addon_limit_exceeded")
	ErrInvalidAddonAmount = errors.New("invalid_addon_amount")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidResources   = errors.New("invalid_resources")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidCurrency    = errors.New("invalid_currency")
)
