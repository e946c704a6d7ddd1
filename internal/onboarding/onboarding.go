package onboarding

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/computeledger/internal/config"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TenantCreated is raised by the tenant collaborator once a tenant exists.
type TenantCreated struct {
	TenantID string
	Currency string
}

// FreeCreditExternalID keys the welcome grant so redelivery cannot grant twice.
func FreeCreditExternalID(tenantID string) string {
	return "free_credit:" + tenantID
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Ledger  ledgerdomain.Service
	Billing *config.BillingConfigHolder
}

type Service struct {
	log             *zap.Logger
	ledger          ledgerdomain.Service
	billing         *config.BillingConfigHolder
	defaultCurrency string
}

func NewService(p Params) *Service {
	return &Service{
		log:             p.Log.Named("onboarding.service"),
		ledger:          p.Ledger,
		billing:         p.Billing,
		defaultCurrency: p.Config.DefaultCurrency,
	}
}

// OnTenantCreated provisions the tenant's balance and grants the configured
// free credit. Safe to call more than once for the same tenant.
func (s *Service) OnTenantCreated(ctx context.Context, evt TenantCreated) (*ledgerdomain.Balance, error) {
	tenantID := strings.TrimSpace(evt.TenantID)
	if tenantID == "" {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	currency := strings.TrimSpace(evt.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	ctx = obscontext.WithTenantID(ctx, tenantID)
	log := obslogger.WithContext(ctx, s.log)

	balance, err := s.ledger.CreateBalance(ctx, tenantID, currency)
	if err != nil {
		return nil, fmt.Errorf("create balance: %w", err)
	}

	grant := s.billing.Get().FreeCredit
	amount := grant.CreditAmount()
	if !grant.Enabled || !amount.IsPositive() {
		return balance, nil
	}

	res, err := s.ledger.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID:  balance.ID,
		Amount:     amount,
		Type:       ledgerdomain.TransactionTypeFreeCredit,
		Detail:     grant.Detail,
		ExternalID: FreeCreditExternalID(tenantID),
	})
	if err != nil {
		return nil, fmt.Errorf("grant free credit: %w", err)
	}
	if !res.Replayed {
		log.Info("free credit granted",
			zap.String("amount", amount.String()),
			zap.String("currency", res.Balance.Currency),
		)
	}
	return &res.Balance, nil
}
