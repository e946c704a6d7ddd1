package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/computeledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/computeledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerSvc  ledgerdomain.Service
	Repo       paymentdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	repo       paymentdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      c,
		ledgerSvc:  p.LedgerSvc,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent records the event in the inbox and applies it to the tenant's
// balance at most once. An event whose ledger apply failed stays unprocessed
// and is applied when the gateway redelivers it.
func (s *Service) ProcessEvent(ctx context.Context, event paymentdomain.PaymentEvent) (*paymentdomain.Result, error) {
	if err := normalizeEvent(&event); err != nil {
		return nil, err
	}
	payload, err := eventPayload(event)
	if err != nil {
		return nil, err
	}

	ctx = obscontext.WithTenantID(ctx, event.TenantID)
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("provider", event.Provider),
		zap.String("external_id", event.ExternalID),
	)

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:         s.genID.Generate(),
		TenantID:   event.TenantID,
		Provider:   event.Provider,
		ExternalID: event.ExternalID,
		EventType:  event.EventType(),
		Amount:     event.Amount,
		Currency:   event.Currency,
		Detail:     event.Detail,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return nil, fmt.Errorf("record payment event: %w", err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.ExternalID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			log.Info("payment event already processed")
			return &paymentdomain.Result{EventID: stored.ID, Duplicate: true}, nil
		}
	}

	applied, err := s.applyEvent(ctx, event)
	if err != nil {
		log.Warn("payment event not applied", zap.Error(err))
		return nil, err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return nil, err
	}
	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, stored.EventType)
	}
	log.Info("payment event applied",
		zap.String("amount", event.Amount.String()),
		zap.Bool("replayed", applied.Replayed),
		zap.String("balance", applied.Balance.Amount.String()),
	)
	return &paymentdomain.Result{EventID: stored.ID, Applied: applied}, nil
}

func (s *Service) applyEvent(ctx context.Context, event paymentdomain.PaymentEvent) (*ledgerdomain.ApplyResult, error) {
	balance, err := s.ledgerSvc.GetBalanceByTenant(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}
	if balance.Currency != event.Currency {
		return nil, fmt.Errorf("%w: balance %s, event %s", ledgerdomain.ErrCurrencyMismatch, balance.Currency, event.Currency)
	}

	detail := event.Detail
	if detail == "" {
		detail = defaultDetail(event)
	}
	return s.ledgerSvc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID:  balance.ID,
		Amount:     event.Amount,
		Type:       event.TransactionType(),
		Detail:     detail,
		ExternalID: event.ExternalID,
	})
}

func normalizeEvent(event *paymentdomain.PaymentEvent) error {
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ExternalID = strings.TrimSpace(event.ExternalID)
	if event.ExternalID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.TenantID = strings.TrimSpace(event.TenantID)
	if event.TenantID == "" {
		return paymentdomain.ErrInvalidTenant
	}
	if event.Amount.IsZero() || !ledgerdomain.FitsScale(event.Amount) {
		return paymentdomain.ErrInvalidAmount
	}
	event.Currency = strings.ToUpper(strings.TrimSpace(event.Currency))
	if event.Currency == "" {
		return paymentdomain.ErrInvalidCurrency
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	event.OccurredAt = event.OccurredAt.UTC()
	event.Detail = strings.TrimSpace(event.Detail)
	return nil
}

// eventPayload keeps the gateway's raw body when present, otherwise the
// normalized event itself.
func eventPayload(event paymentdomain.PaymentEvent) ([]byte, error) {
	if len(event.RawPayload) > 0 {
		if !json.Valid(event.RawPayload) {
			return nil, paymentdomain.ErrInvalidPayload
		}
		return event.RawPayload, nil
	}
	payload, err := json.Marshal(map[string]any{
		"provider":    event.Provider,
		"external_id": event.ExternalID,
		"tenant_id":   event.TenantID,
		"amount":      event.Amount.String(),
		"currency":    event.Currency,
		"occurred_at": event.OccurredAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.Join(paymentdomain.ErrInvalidPayload, err)
	}
	return payload, nil
}

func defaultDetail(event paymentdomain.PaymentEvent) string {
	if event.Amount.IsNegative() {
		return fmt.Sprintf("Refund via %s (%s)", event.Provider, event.ExternalID)
	}
	return fmt.Sprintf("Top-up via %s (%s)", event.Provider, event.ExternalID)
}
