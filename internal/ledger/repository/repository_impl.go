package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ledgerdomain.Repository {
	return &repository{db: db}
}

func (r *repository) handle(db *gorm.DB) *gorm.DB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *repository) InsertBalance(ctx context.Context, balance *ledgerdomain.Balance) error {
	return r.db.WithContext(ctx).Create(balance).Error
}

func (r *repository) FindBalance(ctx context.Context, db *gorm.DB, balanceID snowflake.ID) (*ledgerdomain.Balance, error) {
	var balance ledgerdomain.Balance
	err := r.handle(db).WithContext(ctx).
		Where("id = ?", balanceID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) LockBalance(ctx context.Context, tx *gorm.DB, balanceID snowflake.ID) (*ledgerdomain.Balance, error) {
	var balance ledgerdomain.Balance
	err := dbpkg.ForUpdate(r.handle(tx).WithContext(ctx)).
		Where("id = ?", balanceID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindBalanceByTenant(ctx context.Context, tenantID string) (*ledgerdomain.Balance, error) {
	var balance ledgerdomain.Balance
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repository) UpdateBalanceAmount(ctx context.Context, tx *gorm.DB, balance *ledgerdomain.Balance) error {
	result := r.handle(tx).WithContext(ctx).Exec(
		`UPDATE balances SET amount = ?, updated_at = ? WHERE id = ?`,
		balance.Amount,
		balance.UpdatedAt,
		balance.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrBalanceNotFound
	}
	return nil
}

func (r *repository) ListBalancesBelow(ctx context.Context, threshold decimal.Decimal) ([]ledgerdomain.Balance, error) {
	var balances []ledgerdomain.Balance
	err := r.db.WithContext(ctx).
		Where("amount < ?", threshold).
		Order("id ASC").
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *repository) FindTransactionByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*ledgerdomain.Transaction, error) {
	var txn ledgerdomain.Transaction
	err := r.handle(tx).WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *ledgerdomain.Transaction) error {
	return r.handle(tx).WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, tenantID string, limit, offset int) ([]ledgerdomain.Transaction, int64, error) {
	stmt := r.db.WithContext(ctx).
		Model(&ledgerdomain.Transaction{}).
		Where("tenant_id = ?", tenantID).
		Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []ledgerdomain.Transaction
	err := stmt.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListTransactionAmounts loads every amount of a balance. Summing happens in
// the caller so the result does not depend on how the dialect stores numerics.
func (r *repository) ListTransactionAmounts(ctx context.Context, balanceID snowflake.ID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&ledgerdomain.Transaction{}).
		Where("balance_id = ?", balanceID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return nil, err
	}
	return amounts, nil
}
