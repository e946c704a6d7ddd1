package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/computeledger/internal/clock"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	batchSize = 50
	jobName   = "onboarding_poll"
)

// Consumer drains tenant.created rows from tenant_events. Each event is
// marked processed only after the hook succeeded; failures stay pending and
// are picked up again by the next poll.
type Consumer struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	service *Service
	metrics *obsmetrics.SchedulerMetrics
}

func NewConsumer(db *gorm.DB, log *zap.Logger, c clock.Clock, service *Service) *Consumer {
	return &Consumer{
		db:      db,
		log:     log.Named("onboarding.consumer"),
		clock:   c,
		service: service,
		metrics: obsmetrics.Scheduler(),
	}
}

// ProcessPending handles one batch and returns how many events completed.
func (c *Consumer) ProcessPending(ctx context.Context) (int, error) {
	var events []TenantEvent
	err := c.db.WithContext(ctx).
		Where("event_type = ? AND processed = ?", TenantCreatedEventType, false).
		Order("created_at ASC").
		Order("id ASC").
		Limit(batchSize).
		Find(&events).Error
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := c.processEvent(ctx, event); err != nil {
			c.log.Error("failed to onboard tenant",
				zap.Error(err),
				zap.String("event_id", event.ID.String()),
				zap.String("tenant_id", event.TenantID),
			)
			continue
		}
		processed++
	}
	c.metrics.AddBatchProcessed(jobName, "tenant_events", processed)
	return processed, nil
}

func (c *Consumer) processEvent(ctx context.Context, event TenantEvent) error {
	var payload tenantCreatedPayload
	if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	tenantID := strings.TrimSpace(payload.TenantID)
	if tenantID == "" {
		tenantID = strings.TrimSpace(event.TenantID)
	}
	if tenantID == "" {
		return errors.New("missing tenant_id")
	}

	if _, err := c.service.OnTenantCreated(ctx, TenantCreated{
		TenantID: tenantID,
		Currency: payload.Currency,
	}); err != nil {
		return err
	}
	return c.markProcessed(ctx, event)
}

func (c *Consumer) markProcessed(ctx context.Context, event TenantEvent) error {
	now := c.clock.Now().UTC()
	return c.db.WithContext(ctx).Exec(
		`UPDATE tenant_events SET processed = ?, processed_at = ? WHERE id = ?`,
		true,
		now,
		event.ID,
	).Error
}
