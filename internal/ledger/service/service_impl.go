package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	"github.com/smallbiznis/computeledger/internal/observability/tracing"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"github.com/smallbiznis/computeledger/pkg/db/pagination"
	"github.com/smallbiznis/computeledger/pkg/keylock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultLockTimeout    = 5 * time.Second
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 25 * time.Millisecond
	defaultMaxBackoff     = time.Second
)

// errExternalIDRace marks a unique violation on external_id that slipped
// past the in-lock check; the next attempt sees the committed row.
var errExternalIDRace = errors.New("external_id_race")

type Config struct {
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.LockTimeout <= 0 {
		c.LockTimeout = defaultLockTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Repo       ledgerdomain.Repository
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock         `optional:"true"`
	Locks      *keylock.Locker     `optional:"true"`
	Config     Config              `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	repo         ledgerdomain.Repository
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	locks        *keylock.Locker
	cfg          Config
	obsMetrics   *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func NewService(p Params) ledgerdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	locks := p.Locks
	if locks == nil {
		locks = keylock.New()
	}
	return &Service{
		db:           p.DB,
		repo:         p.Repo,
		log:          p.Log.Named("ledger.service"),
		genID:        p.GenID,
		clock:        c,
		locks:        locks,
		cfg:          p.Config.withDefaults(),
		obsMetrics:   p.ObsMetrics,
		schedMetrics: obsmetrics.Scheduler(),
	}
}

// Apply records one signed transaction against a balance. Work for the same
// balance is serialized by an in-process keyed lock and the balance row lock;
// the ledger entry, the balance update and any hook commit together.
func (s *Service) Apply(ctx context.Context, req ledgerdomain.ApplyRequest, opts ...ledgerdomain.ApplyOption) (*ledgerdomain.ApplyResult, error) {
	req.Detail = strings.TrimSpace(req.Detail)
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.BalanceID == 0 {
		return nil, ledgerdomain.ErrInvalidBalanceID
	}
	if !req.Type.Valid() {
		return nil, ledgerdomain.ErrInvalidType
	}
	if err := req.Type.CheckAmount(req.Amount); err != nil {
		return nil, err
	}

	var options ledgerdomain.ApplyOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	ctx, span := tracing.Tracer().Start(ctx, "ledger.apply", trace.WithAttributes(
		attribute.String("ledger.balance_id", req.BalanceID.String()),
		attribute.String("ledger.transaction_type", string(req.Type)),
	))
	defer span.End()

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("balance_id", req.BalanceID.String()),
		zap.String("transaction_type", string(req.Type)),
	)

	result, err := backoff.Retry(ctx, func() (*ledgerdomain.ApplyResult, error) {
		res, err := s.applyOnce(ctx, req, options)
		if err == nil {
			return res, nil
		}
		if !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.schedMetrics.IncLedgerRetry(err)
			log.Warn("ledger apply retry", zap.Duration("backoff", next), zap.Error(err))
		}),
	)
	if err != nil {
		if isRetryable(err) {
			err = fmt.Errorf("%w: %w", ledgerdomain.ErrServiceUnavailable, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if result.Replayed {
		s.obsMetrics.RecordLedgerReplay(ctx, string(req.Type))
		log.Info("ledger transaction replayed",
			zap.String("external_id", req.ExternalID),
			zap.String("transaction_id", result.Transaction.ID.String()),
		)
		return result, nil
	}

	s.obsMetrics.RecordLedgerTransaction(ctx, string(req.Type))
	log.Debug("ledger transaction applied",
		zap.String("transaction_id", result.Transaction.ID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("balance_after", result.Transaction.BalanceAfter.String()),
	)
	return result, nil
}

func (s *Service) applyOnce(ctx context.Context, req ledgerdomain.ApplyRequest, options ledgerdomain.ApplyOptions) (*ledgerdomain.ApplyResult, error) {
	started := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	unlock, err := s.locks.Lock(lockCtx, req.BalanceID.String())
	cancel()
	s.schedMetrics.ObserveLedgerLockWait(time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ledgerdomain.ErrLockContention
	}
	defer unlock()

	var result *ledgerdomain.ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.repo.LockBalance(ctx, tx, req.BalanceID)
		if err != nil {
			return err
		}
		if balance == nil {
			return ledgerdomain.ErrBalanceNotFound
		}

		if req.ExternalID != "" {
			existing, err := s.repo.FindTransactionByExternalID(ctx, tx, req.ExternalID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.TenantID != balance.TenantID ||
					existing.Type != req.Type ||
					!existing.Amount.Equal(req.Amount) {
					return ledgerdomain.ErrExternalIDConflict
				}
				result = &ledgerdomain.ApplyResult{
					Balance:     *balance,
					Transaction: *existing,
					Replayed:    true,
				}
				return nil
			}
		}

		next := balance.Amount.Add(req.Amount)
		if req.Amount.IsNegative() && next.IsNegative() && !req.Type.MayOverdraw() {
			return ledgerdomain.ErrInsufficientFunds
		}

		if options.TxHook != nil {
			if err := options.TxHook(ctx, tx, *balance); err != nil {
				return err
			}
		}

		now := s.clock.Now().UTC()
		txn := ledgerdomain.Transaction{
			ID:              s.genID.Generate(),
			BalanceID:       balance.ID,
			TenantID:        balance.TenantID,
			BillingRecordID: req.BillingRecordID,
			Amount:          req.Amount,
			BalanceAfter:    next,
			Type:            req.Type,
			Detail:          req.Detail,
			CreatedAt:       now,
		}
		if req.ExternalID != "" {
			externalID := req.ExternalID
			txn.ExternalID = &externalID
		}
		if err := s.repo.InsertTransaction(ctx, tx, &txn); err != nil {
			if dbpkg.IsDuplicateKeyErr(err) {
				if txn.ExternalID != nil {
					return errExternalIDRace
				}
				return ledgerdomain.ErrDuplicateCharge
			}
			return err
		}

		balance.Amount = next
		balance.UpdatedAt = now
		if err := s.repo.UpdateBalanceAmount(ctx, tx, balance); err != nil {
			return err
		}

		result = &ledgerdomain.ApplyResult{Balance: *balance, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	return b
}

func isRetryable(err error) bool {
	return errors.Is(err, ledgerdomain.ErrLockContention) ||
		errors.Is(err, errExternalIDRace) ||
		dbpkg.IsTransientErr(err)
}

// CreateBalance provisions the tenant's balance at zero. Calling it again
// for the same tenant returns the existing balance.
func (s *Service) CreateBalance(ctx context.Context, tenantID, currency string) (*ledgerdomain.Balance, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, ledgerdomain.ErrInvalidCurrency
	}

	existing, err := s.repo.FindBalanceByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return checkCurrency(existing, currency)
	}

	now := s.clock.Now().UTC()
	balance := &ledgerdomain.Balance{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Amount:    decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertBalance(ctx, balance); err != nil {
		if !dbpkg.IsDuplicateKeyErr(err) {
			return nil, err
		}
		existing, err := s.repo.FindBalanceByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ledgerdomain.ErrBalanceNotFound
		}
		return checkCurrency(existing, currency)
	}

	s.log.Info("balance created",
		zap.String("tenant_id", tenantID),
		zap.String("balance_id", balance.ID.String()),
		zap.String("currency", currency),
	)
	return balance, nil
}

func checkCurrency(balance *ledgerdomain.Balance, currency string) (*ledgerdomain.Balance, error) {
	if balance.Currency != currency {
		return balance, ledgerdomain.ErrCurrencyMismatch
	}
	return balance, nil
}

func (s *Service) GetBalance(ctx context.Context, balanceID snowflake.ID) (*ledgerdomain.Balance, error) {
	if balanceID == 0 {
		return nil, ledgerdomain.ErrInvalidBalanceID
	}
	balance, err := s.repo.FindBalance(ctx, nil, balanceID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, ledgerdomain.ErrBalanceNotFound
	}
	return balance, nil
}

func (s *Service) GetBalanceByTenant(ctx context.Context, tenantID string) (*ledgerdomain.Balance, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	balance, err := s.repo.FindBalanceByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, ledgerdomain.ErrBalanceNotFound
	}
	return balance, nil
}

func (s *Service) ListBalancesBelow(ctx context.Context, threshold decimal.Decimal) ([]ledgerdomain.Balance, error) {
	return s.repo.ListBalancesBelow(ctx, threshold)
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (*ledgerdomain.ListTransactionsResponse, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return nil, ledgerdomain.ErrInvalidTenant
	}
	page := pagination.Page{Limit: req.Limit, Offset: req.Offset}.Normalize()

	items, total, err := s.repo.ListTransactions(ctx, tenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []ledgerdomain.Transaction{}
	}
	return &ledgerdomain.ListTransactionsResponse{
		Data:     items,
		Total:    total,
		PageInfo: pagination.BuildPageInfo(page, len(items), total),
	}, nil
}

// VerifyBalance recomputes the sum of a balance's entries and compares it
// with the stored amount. It is an audit helper, not a read path.
func (s *Service) VerifyBalance(ctx context.Context, balanceID snowflake.ID) (*ledgerdomain.BalanceCheck, error) {
	balance, err := s.GetBalance(ctx, balanceID)
	if err != nil {
		return nil, err
	}
	amounts, err := s.repo.ListTransactionAmounts(ctx, balanceID)
	if err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, amount := range amounts {
		sum = sum.Add(amount)
	}
	check := &ledgerdomain.BalanceCheck{
		BalanceID:  balance.ID,
		Amount:     balance.Amount,
		Sum:        sum,
		Entries:    len(amounts),
		Consistent: balance.Amount.Equal(sum),
	}
	if !check.Consistent {
		s.log.Error("balance drift detected",
			zap.String("balance_id", balanceID.String()),
			zap.String("amount", balance.Amount.String()),
			zap.String("sum", sum.String()),
		)
	}
	return check, nil
}
