package publisher

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
)

// KafkaPublisher writes signals keyed by tenant so a tenant's signals stay
// ordered within one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// NewSaramaConfig returns the producer settings a SyncProducer needs.
func NewSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

func (p *KafkaPublisher) Publish(ctx context.Context, signal suspensiondomain.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(signal.TenantID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(signal.Action)},
			{Key: []byte("signal_id"), Value: []byte(signal.ID)},
		},
		Timestamp: signal.OccurredAt,
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
