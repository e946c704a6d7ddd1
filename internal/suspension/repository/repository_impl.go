package repository

import (
	"context"
	"errors"

	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) suspensiondomain.Repository {
	return &repository{db: db}
}

func (r *repository) Find(ctx context.Context, tenantID string) (*suspensiondomain.TenantSuspension, error) {
	var row suspensiondomain.TenantSuspension
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) Upsert(ctx context.Context, row *suspensiondomain.TenantSuspension) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(row).Error
}

func (r *repository) ListSuspended(ctx context.Context) ([]suspensiondomain.TenantSuspension, error) {
	var rows []suspensiondomain.TenantSuspension
	err := r.db.WithContext(ctx).
		Where("status = ?", suspensiondomain.StatusSuspended).
		Order("tenant_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
