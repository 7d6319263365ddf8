// Package amqp публикует и читает события через RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
)

// DefaultExchange — topic exchange для событий брони.
const DefaultExchange = "hotel.events"

// Channel — часть *amqp.Channel, нужная паблишеру.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует outbox-сообщения в exchange с типом события в качестве routing key.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	logger   *log.Entry
}

// Dial подключается к брокеру и объявляет durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	p := NewPublisher(ch, exchange, nil)
	p.conn = conn
	return p, nil
}

// NewPublisher оборачивает готовый канал.
func NewPublisher(ch Channel, exchange string, logger *log.Entry) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = log.WithField("component", "amqp-publisher")
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger}
}

// Publish отправляет persistent-сообщение с JSON-конвертом.
func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.channel == nil {
		return errors.New("amqp publisher is not initialized")
	}

	envelope := messaging.NewEnvelope(event, time.Now())
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    envelope.PublishedAt,
		Type:         event.EventType,
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, event.EventType, false, false, msg); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"exchange":    p.exchange,
			"routing_key": event.EventType,
		}).Error("failed to publish message to rabbitmq")
		return fmt.Errorf("publish to rabbitmq: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
