package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/computeledger/internal/config"
	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindLog   = "log"
	KindRedis = "redis"
	KindKafka = "kafka"
)

var ErrUnknownPublisher = errors.New("unknown_suspension_publisher")

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Redis     *redis.Client `optional:"true"`
}

// New selects the publisher named by SUSPENSION_PUBLISHER.
func New(p Params) (suspensiondomain.Publisher, error) {
	kind := p.Config.Billing.SuspensionPublisher
	switch kind {
	case "", KindLog:
		return NewLogPublisher(p.Log), nil
	case KindRedis:
		if p.Redis == nil {
			return nil, fmt.Errorf("suspension publisher %q requires REDIS_ADDR", kind)
		}
		return NewRedisPublisher(p.Redis, p.Config.Billing.SuspensionChannel), nil
	case KindKafka:
		if len(p.Config.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("suspension publisher %q requires KAFKA_BROKERS", kind)
		}
		producer, err := sarama.NewSyncProducer(p.Config.KafkaBrokers, NewSaramaConfig(p.Config.AppName))
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		pub := NewKafkaPublisher(producer, p.Config.KafkaTopic)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return pub.Close()
			},
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPublisher, kind)
	}
}
