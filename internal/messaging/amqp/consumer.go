package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Handler обрабатывает тело сообщения.
type Handler func(ctx context.Context, body []byte) error

// Delivery — часть amqp.Delivery для подтверждения сообщения.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// ConsumerConfig — параметры очереди.
// DeadLetterExchange по умолчанию "<Exchange>.dlx", очередь отказов "<Queue>.dlq".
type ConsumerConfig struct {
	URL                string
	Exchange           string
	Queue              string
	BindingKey         string
	Prefetch           int
	DeadLetterExchange string
	MaxRetries         int
	RetryDelay         time.Duration
}

// Consumer читает очередь, привязанную к exchange, и переподключается при обрывах.
// Сообщение, которое не удалось обработать за MaxRetries повторов, уходит в dead-letter exchange.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler
	logger  *log.Entry
}

// NewConsumer создаёт consumer.
func NewConsumer(cfg ConsumerConfig, handler Handler) *Consumer {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.DeadLetterExchange == "" {
		cfg.DeadLetterExchange = cfg.Exchange + ".dlx"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Consumer{cfg: cfg, handler: handler, logger: log.WithField("component", "amqp-consumer")}
}

// DeadLetterQueue возвращает имя очереди, куда попадают отклонённые сообщения.
func (c *Consumer) DeadLetterQueue() string {
	return c.cfg.Queue + ".dlq"
}

// queueArgs направляет отклонённые без requeue сообщения в dead-letter exchange.
func (c *Consumer) queueArgs() amqp.Table {
	return amqp.Table{"x-dead-letter-exchange": c.cfg.DeadLetterExchange}
}

// Run читает сообщения, пока не отменён ctx.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.WithError(err).WithField("retry_in", backoff).Warn("rabbitmq consume loop ended, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead-letter exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(c.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead-letter queue declare: %w", err)
	}
	if err := ch.QueueBind(c.DeadLetterQueue(), "", c.cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("dead-letter queue bind: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, c.queueArgs()); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.BindingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.logger.WithField("queue", c.cfg.Queue).Info("rabbitmq consumer started")

	for d := range deliveries {
		c.handle(ctx, &d, d.Body)
	}
	return errors.New("deliveries channel closed")
}

// handle подтверждает успешно обработанное сообщение. Ошибочное повторяется
// до MaxRetries раз, затем отклоняется без requeue и уходит в dead-letter exchange.
// При остановке ctx сообщение возвращается в очередь.
func (c *Consumer) handle(ctx context.Context, d Delivery, body []byte) {
	err := c.handleWithRetry(ctx, body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.WithError(ackErr).Warn("ack failed")
		}
	case ctx.Err() != nil:
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.WithError(nackErr).Warn("requeue failed")
		}
	default:
		c.logger.WithError(err).WithFields(log.Fields{
			"retries":            c.cfg.MaxRetries,
			"dead_letter_target": c.cfg.DeadLetterExchange,
		}).Error("message processing failed after all retries, dead-lettering")
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.WithError(nackErr).Warn("nack failed")
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, body []byte) error {
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err = c.handler(ctx, body); err == nil {
			return nil
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("message processing failed, will retry")

		if c.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay * time.Duration(1<<attempt)):
			}
		}
	}
	return err
}
