package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	"github.com/smallbiznis/computeledger/internal/onboarding"
)

type createTenantRequest struct {
	TenantID string `json:"tenant_id"`
	Currency string `json:"currency"`
}

// CreateTenant runs the onboarding hook synchronously. Repeating the call
// for the same tenant returns the existing balance.
func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID := strings.TrimSpace(req.TenantID)
	ctx := obscontext.WithTenantID(c.Request.Context(), tenantID)
	balance, err := s.onboarding.OnTenantCreated(ctx, onboarding.TenantCreated{
		TenantID: tenantID,
		Currency: req.Currency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newBalanceResponse(*balance)})
}
