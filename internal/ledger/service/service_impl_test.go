package service_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/computeledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/computeledger/internal/ledger/service"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"github.com/smallbiznis/computeledger/pkg/keylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   ledgerdomain.Service
	clock *clock.FakeClock
	locks *keylock.Locker
}

func newFixture(t *testing.T, cfg ledgerservice.Config) *fixture {
	t.Helper()

	db, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.Balance{}, &ledgerdomain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	locks := keylock.New()
	svc := ledgerservice.NewService(ledgerservice.Params{
		DB:     db,
		Repo:   ledgerrepo.NewRepository(db),
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fc,
		Locks:  locks,
		Config: cfg,
	})
	return &fixture{db: db, svc: svc, clock: fc, locks: locks}
}

func (f *fixture) balance(t *testing.T, tenantID string) *ledgerdomain.Balance {
	t.Helper()
	balance, err := f.svc.CreateBalance(context.Background(), tenantID, "UZS")
	require.NoError(t, err)
	return balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyConcurrentTopUps(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	balance := f.balance(t, "tenant-c")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, amount := range []string{"100", "50"} {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
				BalanceID: balance.ID,
				Amount:    dec(amount),
				Type:      ledgerdomain.TransactionTypeTopUp,
				Detail:    "top up",
			})
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	got, err := f.svc.GetBalance(ctx, balance.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("150")), "got %s", got.Amount)

	list, err := f.svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{TenantID: "tenant-c"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Data, 2)
}

func TestApplyReplaysExternalID(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	balance := f.balance(t, "tenant-d")
	ctx := context.Background()

	req := ledgerdomain.ApplyRequest{
		BalanceID:  balance.ID,
		Amount:     dec("500"),
		Type:       ledgerdomain.TransactionTypeTopUp,
		ExternalID: "pay_123",
	}
	first, err := f.svc.Apply(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.Apply(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.True(t, second.Balance.Amount.Equal(dec("500")))

	list, err := f.svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{TenantID: "tenant-d"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, "pay_123", list.Data[0].ExternalIDValue())

	got, err := f.svc.GetBalance(ctx, balance.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("500")))
}

func TestApplyRejectsReusedExternalID(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	a := f.balance(t, "tenant-a")
	b := f.balance(t, "tenant-b")
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: a.ID, Amount: dec("10"), Type: ledgerdomain.TransactionTypeTopUp, ExternalID: "pay_1",
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: a.ID, Amount: dec("11"), Type: ledgerdomain.TransactionTypeTopUp, ExternalID: "pay_1",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrExternalIDConflict)

	_, err = f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: b.ID, Amount: dec("10"), Type: ledgerdomain.TransactionTypeTopUp, ExternalID: "pay_1",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrExternalIDConflict)

	got, err := f.svc.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())
}

func TestApplyValidatesSign(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	balance := f.balance(t, "tenant-s")

	cases := []struct {
		name    string
		txType  ledgerdomain.TransactionType
		amount  string
		wantErr error
	}{
		{"zero", ledgerdomain.TransactionTypeTopUp, "0", ledgerdomain.ErrInvalidAmount},
		{"negative_top_up", ledgerdomain.TransactionTypeTopUp, "-1", ledgerdomain.ErrInvalidAmount},
		{"negative_free_credit", ledgerdomain.TransactionTypeFreeCredit, "-1", ledgerdomain.ErrInvalidAmount},
		{"positive_charge", ledgerdomain.TransactionTypeUsageCharge, "1", ledgerdomain.ErrInvalidAmount},
		{"positive_refund", ledgerdomain.TransactionTypeRefund, "1", ledgerdomain.ErrInvalidAmount},
		{"unknown_type", ledgerdomain.TransactionType("bonus"), "1", ledgerdomain.ErrInvalidType},
		{"below_stored_scale", ledgerdomain.TransactionTypeTopUp, "1.0000001", ledgerdomain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Apply(context.Background(), ledgerdomain.ApplyRequest{
				BalanceID: balance.ID,
				Amount:    dec(tc.amount),
				Type:      tc.txType,
			})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := f.svc.Apply(context.Background(), ledgerdomain.ApplyRequest{
		Amount: dec("1"), Type: ledgerdomain.TransactionTypeTopUp,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidBalanceID)

	_, err = f.svc.Apply(context.Background(), ledgerdomain.ApplyRequest{
		BalanceID: snowflake.ID(999), Amount: dec("1"), Type: ledgerdomain.TransactionTypeTopUp,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrBalanceNotFound)
}

func TestApplyNegativeBalancePolicy(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	balance := f.balance(t, "tenant-n")
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("5"), Type: ledgerdomain.TransactionTypeTopUp,
	})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("-10"), Type: ledgerdomain.TransactionTypeRefund,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientFunds)

	res, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("-10"), Type: ledgerdomain.TransactionTypeUsageCharge,
	})
	require.NoError(t, err)
	assert.True(t, res.Balance.Amount.Equal(dec("-5")))
	assert.True(t, res.Transaction.BalanceAfter.Equal(dec("-5")))

	res, err = f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("2"), Type: ledgerdomain.TransactionTypeTopUp,
	})
	require.NoError(t, err)
	assert.True(t, res.Balance.Amount.Equal(dec("-3")))

	check, err := f.svc.VerifyBalance(ctx, balance.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 3, check.Entries)
}

func TestApplyTxHookRollsBackWithLedgerEntry(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	balance := f.balance(t, "tenant-h")
	ctx := context.Background()
	hookErr := errors.New("hook failed")

	_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("-1"), Type: ledgerdomain.TransactionTypeUsageCharge,
	}, ledgerdomain.WithTxHook(func(ctx context.Context, tx *gorm.DB, b ledgerdomain.Balance) error {
		return hookErr
	}))
	assert.ErrorIs(t, err, hookErr)

	got, err := f.svc.GetBalance(ctx, balance.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())

	var seen ledgerdomain.Balance
	res, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("-1.25"), Type: ledgerdomain.TransactionTypeUsageCharge,
	}, ledgerdomain.WithTxHook(func(ctx context.Context, tx *gorm.DB, b ledgerdomain.Balance) error {
		seen = b
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "tenant-h", seen.TenantID)
	assert.True(t, res.Balance.Amount.Equal(dec("-1.25")))
}

func TestApplyReportsUnavailableAfterLockContention(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{
		LockTimeout:    5 * time.Millisecond,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
	balance := f.balance(t, "tenant-l")

	unlock, err := f.locks.Lock(context.Background(), balance.ID.String())
	require.NoError(t, err)
	defer unlock()

	_, err = f.svc.Apply(context.Background(), ledgerdomain.ApplyRequest{
		BalanceID: balance.ID, Amount: dec("1"), Type: ledgerdomain.TransactionTypeTopUp,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrServiceUnavailable)
	assert.ErrorIs(t, err, ledgerdomain.ErrLockContention)
}

func TestBalanceEqualsSumUnderConcurrency(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	balances := []*ledgerdomain.Balance{f.balance(t, "tenant-1"), f.balance(t, "tenant-2"), f.balance(t, "tenant-3")}
	expected := make(map[snowflake.ID]decimal.Decimal)
	var mu sync.Mutex

	type op struct {
		balance *ledgerdomain.Balance
		amount  decimal.Decimal
		txType  ledgerdomain.TransactionType
	}
	workers := 4 + rng.Intn(8)
	ops := make([][]op, workers)
	for w := range ops {
		for i := 0; i < 5+rng.Intn(10); i++ {
			b := balances[rng.Intn(len(balances))]
			cents := int64(1 + rng.Intn(100000))
			amount := decimal.New(cents, -2)
			txType := ledgerdomain.TransactionTypeTopUp
			if rng.Intn(2) == 0 {
				amount = amount.Neg()
				txType = ledgerdomain.TransactionTypeUsageCharge
			}
			ops[w] = append(ops[w], op{balance: b, amount: amount, txType: txType})
		}
	}

	var wg sync.WaitGroup
	for _, batch := range ops {
		wg.Add(1)
		go func(batch []op) {
			defer wg.Done()
			for _, o := range batch {
				_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
					BalanceID: o.balance.ID,
					Amount:    o.amount,
					Type:      o.txType,
				})
				if !assert.NoError(t, err) {
					continue
				}
				mu.Lock()
				expected[o.balance.ID] = expected[o.balance.ID].Add(o.amount)
				mu.Unlock()
			}
		}(batch)
	}
	wg.Wait()

	for _, b := range balances {
		check, err := f.svc.VerifyBalance(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, check.Consistent, "balance %s: amount %s sum %s", b.TenantID, check.Amount, check.Sum)
		assert.True(t, check.Amount.Equal(expected[b.ID]), "balance %s: got %s want %s", b.TenantID, check.Amount, expected[b.ID])
	}
}

func TestCreateBalanceIsIdempotent(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	ctx := context.Background()

	first, err := f.svc.CreateBalance(ctx, " tenant-x ", "uzs")
	require.NoError(t, err)
	assert.Equal(t, "UZS", first.Currency)

	second, err := f.svc.CreateBalance(ctx, "tenant-x", "UZS")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = f.svc.CreateBalance(ctx, "tenant-x", "USD")
	assert.ErrorIs(t, err, ledgerdomain.ErrCurrencyMismatch)

	_, err = f.svc.CreateBalance(ctx, "", "UZS")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTenant)

	byTenant, err := f.svc.GetBalanceByTenant(ctx, "tenant-x")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byTenant.ID)

	_, err = f.svc.GetBalanceByTenant(ctx, "missing")
	assert.ErrorIs(t, err, ledgerdomain.ErrBalanceNotFound)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	balance := f.balance(t, "tenant-p")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
			BalanceID: balance.ID, Amount: decimal.NewFromInt(int64(i)), Type: ledgerdomain.TransactionTypeTopUp,
		})
		require.NoError(t, err)
	}

	page, err := f.svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{TenantID: "tenant-p", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Data, 2)
	assert.True(t, page.Data[0].Amount.Equal(dec("3")))
	assert.True(t, page.Data[1].Amount.Equal(dec("2")))
	assert.True(t, page.PageInfo.HasMore)

	page, err = f.svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{TenantID: "tenant-p", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.False(t, page.PageInfo.HasMore)

	_, err = f.svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTenant)
}

func TestListBalancesBelow(t *testing.T) {
	f := newFixture(t, ledgerservice.Config{})
	ctx := context.Background()
	low := f.balance(t, "tenant-low")
	f.balance(t, "tenant-zero")

	_, err := f.svc.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID: low.ID, Amount: dec("-33.33"), Type: ledgerdomain.TransactionTypeUsageCharge,
	})
	require.NoError(t, err)

	below, err := f.svc.ListBalancesBelow(ctx, decimal.Zero)
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.Equal(t, "tenant-low", below[0].TenantID)
	assert.True(t, below[0].Amount.Equal(dec("-33.33")))
}
