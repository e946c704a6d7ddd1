package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	paymentdomain "github.com/smallbiznis/computeledger/internal/payment/domain"
)

type paymentEventRequest struct {
	Provider   string          `json:"provider"`
	ExternalID string          `json:"external_id"`
	TenantID   string          `json:"tenant_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Detail     string          `json:"detail"`
	OccurredAt *time.Time      `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type paymentEventResponse struct {
	EventID       string           `json:"event_id"`
	Duplicate     bool             `json:"duplicate"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Balance       *balanceResponse `json:"balance,omitempty"`
}

// IngestPaymentEvent accepts a normalized provider confirmation. Replays of
// a processed event answer 200 with duplicate set.
func (s *Server) IngestPaymentEvent(c *gin.Context) {
	var req paymentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event := paymentdomain.PaymentEvent{
		Provider:   req.Provider,
		ExternalID: req.ExternalID,
		TenantID:   req.TenantID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Detail:     req.Detail,
		RawPayload: req.Payload,
	}
	if req.OccurredAt != nil {
		event.OccurredAt = req.OccurredAt.UTC()
	}

	ctx := obscontext.WithTenantID(c.Request.Context(), strings.TrimSpace(req.TenantID))
	result, err := s.paymentSvc.ProcessEvent(ctx, event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := paymentEventResponse{
		EventID:   result.EventID.String(),
		Duplicate: result.Duplicate,
	}
	status := http.StatusOK
	if result.Applied != nil {
		resp.TransactionID = result.Applied.Transaction.ID.String()
		balance := newBalanceResponse(result.Applied.Balance)
		resp.Balance = &balance
		if !result.Applied.Replayed {
			status = http.StatusCreated
		}
	}
	c.JSON(status, gin.H{"data": resp})
}
