package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	"github.com/smallbiznis/computeledger/pkg/db/pagination"
)

type balanceResponse struct {
	ID        snowflake.ID    `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newBalanceResponse(b ledgerdomain.Balance) balanceResponse {
	return balanceResponse{
		ID:        b.ID,
		TenantID:  b.TenantID,
		Amount:    b.Amount,
		Currency:  b.Currency,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

type transactionResponse struct {
	ID              snowflake.ID    `json:"id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	BillingRecordID *snowflake.ID   `json:"billing_record_id,omitempty"`
	ExternalID      *string         `json:"external_id,omitempty"`
	Detail          string          `json:"detail,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type listTransactionsResponse struct {
	Data     []transactionResponse `json:"data"`
	PageInfo pagination.PageInfo   `json:"page_info"`
}

type balanceCheckResponse struct {
	BalanceID  snowflake.ID    `json:"balance_id"`
	Amount     decimal.Decimal `json:"amount"`
	Sum        decimal.Decimal `json:"sum"`
	Entries    int             `json:"entries"`
	Consistent bool            `json:"consistent"`
}

func (s *Server) GetBalance(c *gin.Context) {
	tenantID, err := tenantParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithTenantID(c.Request.Context(), tenantID)
	balance, err := s.ledgerSvc.GetBalanceByTenant(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newBalanceResponse(*balance)})
}

func (s *Server) ListTransactions(c *gin.Context) {
	tenantID, err := tenantParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	page, err := parsePage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithTenantID(c.Request.Context(), tenantID)
	if _, err := s.ledgerSvc.GetBalanceByTenant(ctx, tenantID); err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.ledgerSvc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{
		TenantID: tenantID,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]transactionResponse, 0, len(resp.Data))
	for _, txn := range resp.Data {
		items = append(items, transactionResponse{
			ID:              txn.ID,
			Type:            string(txn.Type),
			Amount:          txn.Amount,
			BalanceAfter:    txn.BalanceAfter,
			BillingRecordID: txn.BillingRecordID,
			ExternalID:      txn.ExternalID,
			Detail:          txn.Detail,
			CreatedAt:       txn.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, listTransactionsResponse{Data: items, PageInfo: resp.PageInfo})
}

func (s *Server) VerifyBalance(c *gin.Context) {
	tenantID, err := tenantParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithTenantID(c.Request.Context(), tenantID)
	balance, err := s.ledgerSvc.GetBalanceByTenant(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	check, err := s.ledgerSvc.VerifyBalance(ctx, balance.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balanceCheckResponse{
		BalanceID:  check.BalanceID,
		Amount:     check.Amount,
		Sum:        check.Sum,
		Entries:    check.Entries,
		Consistent: check.Consistent,
	}})
}
