package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/computeledger/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	"github.com/smallbiznis/computeledger/internal/scheduler"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog returns the error type and code logged per request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

// errorClass maps a family of domain sentinels onto one HTTP status and
// envelope type. Classes are checked in order; the first match wins.
type errorClass struct {
	status  int
	typ     string
	message string
	matches []error
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{ErrUnauthorized}},
	{http.StatusUnprocessableEntity, "insufficient_funds", "insufficient funds", []error{ledgerdomain.ErrInsufficientFunds}},
	{http.StatusConflict, "conflict", "currency mismatch", []error{ledgerdomain.ErrCurrencyMismatch}},
	{http.StatusConflict, "conflict", "conflict", []error{
		ErrConflict,
		ledgerdomain.ErrExternalIDConflict,
		ledgerdomain.ErrDuplicateCharge,
	}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound,
		ledgerdomain.ErrBalanceNotFound,
		ledgerdomain.ErrTransactionNotFound,
		pricingdomain.ErrPresetNotFound,
		pricingdomain.ErrAddonRateNotFound,
		scheduler.ErrUnknownJob,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{
		ErrServiceUnavailable,
		ledgerdomain.ErrServiceUnavailable,
		ledgerdomain.ErrLockContention,
	}},
}

// validationErrors are answered with 400 and a single field error whose
// code is the sentinel text.
var validationErrors = []error{
	ErrInvalidRequest,
	ledgerdomain.ErrInvalidBalanceID,
	ledgerdomain.ErrInvalidTenant,
	ledgerdomain.ErrInvalidCurrency,
	ledgerdomain.ErrInvalidAmount,
	ledgerdomain.ErrInvalidType,
	pricingdomain.ErrAddonLimitExceeded,
	pricingdomain.ErrInvalidAddonAmount,
	pricingdomain.ErrInvalidPrice,
	pricingdomain.ErrInvalidResources,
	pricingdomain.ErrInvalidName,
	pricingdomain.ErrInvalidCurrency,
	paymentdomain.ErrInvalidEvent,
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidTenant,
	paymentdomain.ErrInvalidAmount,
	paymentdomain.ErrInvalidCurrency,
	paymentdomain.ErrInvalidPayload,
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}
	if matchesAny(err, validationErrors) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validationErrorField(code),
				Code:    code,
				Message: validationErrorMessage(code),
			}},
		}
	}

	for _, class := range errorClasses {
		if matchesAny(err, class.matches) {
			return class.status, errorPayload{Type: class.typ, Message: class.message}
		}
	}
	return http.StatusInternalServerError, internalError
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// validationErrorCode returns the first matching sentinel, so wrapped
// errors still report their stable code.
func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case code == "addon_limit_exceeded":
		return "addon"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "addon_limit_exceeded":
		return "addon exceeds preset limit"
	default:
		return "invalid value"
	}
}
