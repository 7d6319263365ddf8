// Команда notifier читает события reservation.confirmed из брокера и
// отправляет гостю квитанцию.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/app"
	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging/amqp"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/notify"
)

const (
	defaultGroupID    = "hotel-notifier"
	defaultQueue      = "hotel.notifier.confirmations"
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

type config struct {
	app.Config
	GroupID    string
	Queue      string
	MaxRetries int
	RetryDelay time.Duration
}

func readConfig(lookup func(string) (string, bool)) (config, error) {
	base, err := app.ConfigFromEnv(lookup)
	if err != nil {
		return config{}, err
	}
	cfg := config{
		Config:     base,
		GroupID:    defaultGroupID,
		Queue:      defaultQueue,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}
	if v, ok := lookup("HOTEL_NOTIFIER_GROUP"); ok && strings.TrimSpace(v) != "" {
		cfg.GroupID = strings.TrimSpace(v)
	}
	if v, ok := lookup("HOTEL_NOTIFIER_QUEUE"); ok && strings.TrimSpace(v) != "" {
		cfg.Queue = strings.TrimSpace(v)
	}

	switch cfg.Broker {
	case app.BrokerKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return config{}, errors.New("HOTEL_KAFKA_BROKERS is required for kafka broker")
		}
	case app.BrokerAMQP:
		if cfg.AMQPURL == "" {
			return config{}, errors.New("HOTEL_AMQP_URL is required for amqp broker")
		}
	default:
		return config{}, fmt.Errorf("notifier needs HOTEL_BROKER=kafka or amqp, got %q", cfg.Broker)
	}
	return cfg, nil
}

// kafkaHandler передаёт тело сообщения в notify.Handler.
func kafkaHandler(h *notify.Handler) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		return h.Handle(ctx, message.Value)
	}
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	if logger == nil {
		logger = log.WithField("component", "notifier")
	}
	handler := notify.NewHandler(notify.TextRenderer{}, notify.NewLogMailer(logger.WithField("component", "mailer")), logger)

	switch cfg.Broker {
	case app.BrokerKafka:
		dlq, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID+"-notifier-dlq")
		if err != nil {
			return fmt.Errorf("create dlq producer: %w", err)
		}
		defer func() {
			if err := dlq.Close(); err != nil {
				logger.WithError(err).Warn("close dlq producer")
			}
		}()

		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.GroupID,
			Topics:     []string{cfg.KafkaTopic},
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, kafkaHandler(handler), dlq)
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return consumer.Stop()

	case app.BrokerAMQP:
		consumer := amqp.NewConsumer(amqp.ConsumerConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			Queue:      cfg.Queue,
			BindingKey: domain.EventReservationConfirmed,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, handler.Handle)
		return consumer.Run(ctx)
	}
	return fmt.Errorf("unsupported broker %q", cfg.Broker)
}

func main() {
	_ = godotenv.Load(".env")

	cfg, err := readConfig(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	app.ConfigureLogging(cfg.Config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithField("component", "notifier")
	logger.WithFields(log.Fields{"broker": cfg.Broker, "group": cfg.GroupID}).Info("запускаем notifier")

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("notifier завершился с ошибкой")
	}
	logger.Info("notifier остановлен")
}
