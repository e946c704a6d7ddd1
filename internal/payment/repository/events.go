package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/computeledger/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventStore persists the payment inbox. The handle is passed per call so
// the service can run it inside its own transaction.
type EventStore struct{}

func NewEventStore() domain.Repository {
	return EventStore{}
}

// InsertEvent reports whether the row was new. A row with the same
// external id is left as it is.
func (EventStore) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (EventStore) FindEvent(ctx context.Context, db *gorm.DB, externalID string) (*domain.EventRecord, error) {
	var event domain.EventRecord
	err := db.WithContext(ctx).Where("external_id = ?", externalID).Take(&event).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &event, nil
}

func (EventStore) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processed_at", processedAt).Error
}
