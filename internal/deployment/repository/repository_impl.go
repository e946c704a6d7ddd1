package repository

import (
	"context"
	"time"

	deploymentdomain "github.com/smallbiznis/computeledger/internal/deployment/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) deploymentdomain.Repository {
	return &repository{db: db}
}

func (r *repository) ListBillable(ctx context.Context, periodStart, periodEnd time.Time) ([]deploymentdomain.Deployment, error) {
	var items []deploymentdomain.Deployment
	err := r.db.WithContext(ctx).
		Model(&deploymentdomain.Deployment{}).
		Where("created_at < ?", periodEnd.UTC()).
		Where(
			r.db.Where("status IN ?", deploymentdomain.BillableStatuses).
				Or("stopped_at IS NOT NULL AND stopped_at > ?", periodStart.UTC()),
		).
		Order("tenant_id ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
