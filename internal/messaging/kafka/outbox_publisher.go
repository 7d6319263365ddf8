package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = messaging.TopicReservationEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Publish отправляет сообщение с идентификатором брони в качестве ключа.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	envelope := messaging.NewEnvelope(event, time.Now())
	return p.producer.PublishJSON(ctx, p.topic, envelope.Key(), envelope, map[string]string{
		messaging.HeaderEventType: event.EventType,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
