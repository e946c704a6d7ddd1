package repository

import (
	"context"
	"errors"
	"time"

	billingrecorddomain "github.com/smallbiznis/computeledger/internal/billingrecord/domain"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) billingrecorddomain.Repository {
	return &repository{db: db}
}

func (r *repository) Exists(ctx context.Context, deploymentID string, periodStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&billingrecorddomain.BillingRecord{}).
		Where("deployment_id = ? AND period_start = ?", deploymentID, periodStart.UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, record *billingrecorddomain.BillingRecord) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return billingrecorddomain.ErrSnapshotAlreadyApplied
		}
		return err
	}
	return nil
}

func (r *repository) FindByDeploymentPeriod(ctx context.Context, deploymentID string, periodStart time.Time) (*billingrecorddomain.BillingRecord, error) {
	var record billingrecorddomain.BillingRecord
	err := r.db.WithContext(ctx).
		Where("deployment_id = ? AND period_start = ?", deploymentID, periodStart.UTC()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]billingrecorddomain.BillingRecord, int64, error) {
	stmt := r.db.WithContext(ctx).
		Model(&billingrecorddomain.BillingRecord{}).
		Where("tenant_id = ?", tenantID).
		Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []billingrecorddomain.BillingRecord
	err := stmt.
		Order("period_start DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
