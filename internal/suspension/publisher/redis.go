package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
)

// TenantChannel is the per-tenant channel orchestration subscribes to.
func TenantChannel(tenantID string) string {
	return fmt.Sprintf("tenant:%s:billing", tenantID)
}

// RedisPublisher fans a signal out to the tenant channel and a shared
// channel in one pipeline.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, signal suspensiondomain.Signal) error {
	payload, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	pipe := p.client.Pipeline()
	pipe.Publish(ctx, TenantChannel(signal.TenantID), payload)
	if p.channel != "" {
		pipe.Publish(ctx, p.channel, payload)
	}
	_, err = pipe.Exec(ctx)
	return err
}
