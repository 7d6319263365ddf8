// Команда dlq-replay просматривает hotel.dlq и возвращает сообщения в рабочие топики.
// Без -execute только показывает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// outboxDeadLetter — payload, который outbox worker кладёт в DLQ.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type replayMessage struct {
	topic     string
	key       string
	value     []byte
	eventType string
}

type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
}

type sender interface {
	Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type replayer struct {
	cfg      config
	offsets  offsetSource
	source   partitionSource
	producer sender
	logger   *log.Entry
	now      func() time.Time
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(o replayStats) {
	s.processed += o.processed
	s.replayed += o.replayed
	s.skipped += o.skipped
}

func main() {
	_ = godotenv.Load(".env")
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	client, err := sarama.NewClient(cfg.brokers, sarama.NewConfig())
	if err != nil {
		fail("create kafka client: %v", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		fail("create kafka consumer: %v", err)
	}
	defer consumer.Close()

	r := &replayer{
		cfg:     cfg,
		offsets: client,
		source:  consumer,
		logger:  log.WithField("component", "dlq-replay"),
		now:     time.Now,
	}
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, "hotel-dlq-replay")
		if err != nil {
			fail("create kafka producer: %v", err)
		}
		defer producer.Close()
		r.producer = producer
	}

	if _, err := r.run(context.Background()); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg     config
		brokers string
	)
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", "", "Kafka brokers, comma-separated (fallback: HOTEL_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", messaging.TopicDeadLetterQueue, "DLQ topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", messaging.TopicReservationEvents, "topic for outbox dead letters")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replays; dry-run otherwise")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv("HOTEL_KAFKA_BROKERS")
	}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or HOTEL_KAFKA_BROKERS)")
	case cfg.sourceTopic == "" || cfg.targetTopic == "":
		return config{}, errors.New("source-topic and target-topic are required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.cfg.execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, p := range partitions {
		if total.processed >= r.cfg.limit {
			break
		}
		stats, err := r.replayPartition(ctx, p, r.cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   r.cfg.execute,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// replayPartition читает сообщения, существовавшие на момент запуска.
func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.AsyncClose()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-pc.Errors():
			if ok && cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)
			stats.processed++

			replay, err := r.extract(msg)
			if err != nil {
				stats.skipped++
				r.logger.WithError(err).WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset}).
					Warn("skip dlq message")
			} else {
				if err := r.publish(ctx, replay, msg); err != nil {
					return stats, err
				}
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) publish(ctx context.Context, replay replayMessage, msg *sarama.ConsumerMessage) error {
	fields := log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": replay.topic,
		"key":          replay.key,
	}
	if !r.cfg.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return nil
	}

	var headers map[string]string
	if replay.eventType != "" {
		headers = map[string]string{messaging.HeaderEventType: replay.eventType}
	}
	if err := r.producer.Send(ctx, replay.topic, replay.key, replay.value, headers); err != nil {
		return fmt.Errorf("publish replay to %s: %w", replay.topic, err)
	}
	r.logger.WithFields(fields).Info("dlq message replayed")
	return nil
}

// extract восстанавливает исходное сообщение. Consumer кладёт в DLQ тело как есть
// с заголовком исходного топика; outbox worker оборачивает событие в конверт.
func (r *replayer) extract(msg *sarama.ConsumerMessage) (replayMessage, error) {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == messaging.HeaderOriginalTopic && len(h.Value) > 0 {
			return replayMessage{topic: string(h.Value), key: string(msg.Key), value: msg.Value}, nil
		}
	}

	env, err := messaging.ParseEnvelope(msg.Value)
	if err != nil {
		return replayMessage{}, err
	}
	var dead outboxDeadLetter
	if err := json.Unmarshal(env.Payload, &dead); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 || string(dead.Payload) == "null" {
		return replayMessage{}, errors.New("outbox dead letter has no original payload")
	}

	restored := messaging.NewEnvelope(domain.OutboxMessage{
		ID:            firstNonEmpty(dead.OutboxID, env.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, env.EventType),
		Payload:       dead.Payload,
	}, r.now())
	value, err := json.Marshal(restored)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode envelope: %w", err)
	}
	return replayMessage{topic: r.cfg.targetTopic, key: restored.Key(), value: value, eventType: restored.EventType}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
