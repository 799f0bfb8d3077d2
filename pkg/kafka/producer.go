// pkg/kafka/producer.go
package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"

	"dispatch-service/internal/domain"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	TopicChannelJobs = "notification.channel.jobs"
	TopicLifecycle   = "notification.lifecycle"
)

// Producer publishes channel jobs and lifecycle events. Channel jobs are the
// async half of delivery; lifecycle events are fire-and-forget.
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func NewProducer(brokers []string, logger *zap.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return &Producer{producer: producer, logger: logger}, nil
}

// PublishChannelJob enqueues one delivery job, keyed by delivery id so
// retries of the same delivery stay ordered.
func (p *Producer) PublishChannelJob(job *domain.ChannelJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal channel job: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicChannelJobs,
		Key:   sarama.StringEncoder(strconv.FormatInt(job.DeliveryID, 10)),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send channel job: %w", err)
	}

	p.logger.Debug("channel job queued",
		zap.Int64("delivery_id", job.DeliveryID),
		zap.String("channel", job.Channel),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// PublishLifecycle publishes an observability event. Failures are logged and
// swallowed; lifecycle events are not required for correctness.
func (p *Producer) PublishLifecycle(ev *domain.LifecycleEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to marshal lifecycle event", zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicLifecycle,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.NotificationID, 10)),
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.logger.Warn("failed to publish lifecycle event",
			zap.String("kind", ev.Kind),
			zap.Int64("notification_id", ev.NotificationID),
			zap.Error(err))
	}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
