package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging/amqp"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/outbox"
)

// brokerPublishers указывает, куда outbox-воркер отправляет события и недоставленные сообщения.
type brokerPublishers struct {
	events domain.OutboxPublisher
	// dlq может быть nil: тогда сообщение просто помечается failed.
	dlq   domain.OutboxPublisher
	close func() error
}

// openBroker подключает брокер из cfg.Broker.
func openBroker(cfg Config, logger *log.Entry) (brokerPublishers, error) {
	switch cfg.Broker {
	case BrokerKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
		if err != nil {
			return brokerPublishers{}, err
		}
		logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		return brokerPublishers{
			events: kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			dlq:    kafka.NewOutboxPublisher(producer, messaging.TopicDeadLetterQueue),
			close:  producer.Close,
		}, nil

	case BrokerAMQP:
		publisher, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return brokerPublishers{}, err
		}
		logger.WithField("exchange", cfg.AMQPExchange).Info("rabbitmq publisher initialized")
		return brokerPublishers{events: publisher, close: publisher.Close}, nil

	case BrokerLog:
		return brokerPublishers{
			events: outbox.NewLogPublisher(logger.WithField("publisher", "log")),
			close:  func() error { return nil },
		}, nil

	default:
		return brokerPublishers{}, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

// closeBroker закрывает соединение с брокером, если оно было.
func closeBroker(b brokerPublishers, logger *log.Entry) {
	if b.close == nil {
		return
	}
	if err := b.close(); err != nil {
		logger.WithError(err).Warn("failed to close broker connection")
		return
	}
	logger.Info("broker connection closed")
}
