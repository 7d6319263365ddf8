package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging/kafka"
)

type offsetRange struct{ oldest, newest int64 }

type fakeOffsets struct {
	partitions []int32
	ranges     map[int32]offsetRange
	err        error
}

func (f *fakeOffsets) Partitions(string) ([]int32, error) { return f.partitions, f.err }

func (f *fakeOffsets) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if at == sarama.OffsetOldest {
		return f.ranges[partition].oldest, nil
	}
	return f.ranges[partition].newest, nil
}

type fakePartitionConsumer struct {
	sarama.PartitionConsumer
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return f.errors }
func (f *fakePartitionConsumer) AsyncClose()                              {}

func yielding(msgs ...*sarama.ConsumerMessage) *fakePartitionConsumer {
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		pc.messages <- m
	}
	return pc
}

type fakeSource struct {
	consumers map[int32]sarama.PartitionConsumer
	err       error
}

func (f *fakeSource) ConsumePartition(_ string, partition int32, _ int64) (sarama.PartitionConsumer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.consumers[partition], nil
}

func consumerDeadLetter(offset int64, key string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Offset: offset,
		Key:    []byte(key),
		Value:  []byte(`{"id":"evt-` + key + `"}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(messaging.HeaderOriginalTopic), Value: []byte(messaging.TopicReservationEvents)},
			{Key: []byte(messaging.HeaderErrorMessage), Value: []byte("poison message")},
		},
	}
}

func outboxDeadLetterMessage(t *testing.T, offset int64, inner json.RawMessage) *sarama.ConsumerMessage {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"outbox_id":      "evt-1",
		"aggregate_type": "reservation",
		"aggregate_id":   "res-1",
		"event_type":     domain.EventReservationConfirmed,
		"payload":        inner,
		"publish_error":  "broker unavailable",
	})
	require.NoError(t, err)
	body, err := json.Marshal(messaging.NewEnvelope(domain.OutboxMessage{
		ID:            "evt-1",
		AggregateType: "reservation",
		AggregateID:   "res-1",
		EventType:     domain.EventReservationConfirmed,
		Payload:       payload,
	}, time.Now()))
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: body}
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"localhost:9092"},
		sourceTopic: messaging.TopicDeadLetterQueue,
		targetTopic: messaging.TopicReservationEvents,
		limit:       10,
		execute:     execute,
		idleTimeout: 50 * time.Millisecond,
	}
}

func newTestReplayer(cfg config, offsets offsetSource, source partitionSource, producer sender) *replayer {
	return &replayer{
		cfg:      cfg,
		offsets:  offsets,
		source:   source,
		producer: producer,
		logger:   log.WithField("test", "dlq-replay"),
		now:      func() time.Time { return time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC) },
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-execute", "-limit=5", "-idle-timeout=3s"}, func(key string) string {
		if key == "HOTEL_KAFKA_BROKERS" {
			return " k1:9092, ,k2:9092 "
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
	assert.Equal(t, messaging.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, messaging.TopicReservationEvents, cfg.targetTopic)
	assert.Equal(t, 5, cfg.limit)
	assert.True(t, cfg.execute)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
}

func TestParseConfig_Errors(t *testing.T) {
	noEnv := func(string) string { return "" }
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no brokers", nil, "kafka brokers are required"},
		{"empty target", []string{"-brokers=k:9092", "-target-topic= "}, "target-topic"},
		{"zero limit", []string{"-brokers=k:9092", "-limit=0"}, "limit must be > 0"},
		{"zero idle", []string{"-brokers=k:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
		{"bad flag", []string{"-brokers=k:9092", "-limit=many"}, "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, noEnv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtract(t *testing.T) {
	r := newTestReplayer(testConfig(false), nil, nil, nil)

	t.Run("consumer dead letter", func(t *testing.T) {
		got, err := r.extract(consumerDeadLetter(0, "res-9"))
		require.NoError(t, err)
		assert.Equal(t, messaging.TopicReservationEvents, got.topic)
		assert.Equal(t, "res-9", got.key)
		assert.JSONEq(t, `{"id":"evt-res-9"}`, string(got.value))
	})

	t.Run("outbox dead letter", func(t *testing.T) {
		got, err := r.extract(outboxDeadLetterMessage(t, 0, json.RawMessage(`{"reservation_id":"res-1"}`)))
		require.NoError(t, err)
		assert.Equal(t, messaging.TopicReservationEvents, got.topic)
		assert.Equal(t, "res-1", got.key)
		assert.Equal(t, domain.EventReservationConfirmed, got.eventType)

		env, err := messaging.ParseEnvelope(got.value)
		require.NoError(t, err)
		assert.Equal(t, "evt-1", env.ID)
		assert.JSONEq(t, `{"reservation_id":"res-1"}`, string(env.Payload))
	})

	t.Run("outbox dead letter without payload", func(t *testing.T) {
		_, err := r.extract(outboxDeadLetterMessage(t, 0, nil))
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := r.extract(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)})
		require.Error(t, err)
	})
}

func TestRun_DryRunDoesNotPublish(t *testing.T) {
	offsets := &fakeOffsets{partitions: []int32{0}, ranges: map[int32]offsetRange{0: {0, 2}}}
	source := &fakeSource{consumers: map[int32]sarama.PartitionConsumer{
		0: yielding(consumerDeadLetter(0, "res-1"), &sarama.ConsumerMessage{Offset: 1, Value: []byte("junk")}),
	}}

	stats, err := newTestReplayer(testConfig(false), offsets, source, nil).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
}

func TestRun_ExecutePublishesAcrossPartitions(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != messaging.TopicReservationEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != messaging.HeaderEventType {
			return errors.New("outbox replay must carry event type header")
		}
		return nil
	})
	producer := kafka.NewProducerWithClient(mockProducer, nil)

	offsets := &fakeOffsets{partitions: []int32{2, 0}, ranges: map[int32]offsetRange{0: {0, 1}, 2: {4, 5}}}
	source := &fakeSource{consumers: map[int32]sarama.PartitionConsumer{
		0: yielding(consumerDeadLetter(0, "res-1")),
		2: yielding(outboxDeadLetterMessage(t, 4, json.RawMessage(`{"reservation_id":"res-1"}`))),
	}}

	stats, err := newTestReplayer(testConfig(true), offsets, source, producer).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 2}, stats)
	require.NoError(t, mockProducer.Close())
}

func TestRun_LimitStopsEarly(t *testing.T) {
	cfg := testConfig(false)
	cfg.limit = 1
	offsets := &fakeOffsets{partitions: []int32{0, 1}, ranges: map[int32]offsetRange{0: {0, 3}, 1: {0, 3}}}
	source := &fakeSource{consumers: map[int32]sarama.PartitionConsumer{
		0: yielding(consumerDeadLetter(0, "a"), consumerDeadLetter(1, "b")),
	}}

	stats, err := newTestReplayer(cfg, offsets, source, nil).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.processed)
}

func TestRun_Errors(t *testing.T) {
	t.Run("execute without producer", func(t *testing.T) {
		_, err := newTestReplayer(testConfig(true), &fakeOffsets{}, &fakeSource{}, nil).run(context.Background())
		require.Error(t, err)
	})

	t.Run("offsets failure", func(t *testing.T) {
		_, err := newTestReplayer(testConfig(false), &fakeOffsets{err: errors.New("down")}, &fakeSource{}, nil).run(context.Background())
		require.Error(t, err)
	})

	t.Run("consume failure", func(t *testing.T) {
		offsets := &fakeOffsets{partitions: []int32{0}, ranges: map[int32]offsetRange{0: {0, 1}}}
		_, err := newTestReplayer(testConfig(false), offsets, &fakeSource{err: errors.New("no leader")}, nil).run(context.Background())
		require.Error(t, err)
	})

	t.Run("publish failure", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		offsets := &fakeOffsets{partitions: []int32{0}, ranges: map[int32]offsetRange{0: {0, 1}}}
		source := &fakeSource{consumers: map[int32]sarama.PartitionConsumer{0: yielding(consumerDeadLetter(0, "a"))}}

		_, err := newTestReplayer(testConfig(true), offsets, source, kafka.NewProducerWithClient(mockProducer, nil)).run(context.Background())
		require.Error(t, err)
		require.NoError(t, mockProducer.Close())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		offsets := &fakeOffsets{partitions: []int32{0}, ranges: map[int32]offsetRange{0: {0, 1}}}
		source := &fakeSource{consumers: map[int32]sarama.PartitionConsumer{0: yielding()}}

		_, err := newTestReplayer(testConfig(false), offsets, source, nil).run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRun_IdlePartitionReturns(t *testing.T) {
	offsets := &fakeOffsets{partitions: []int32{0}, ranges: map[int32]offsetRange{0: {0, 5}}}
	source := &fakeSource{consumers: map[int32]sarama.PartitionConsumer{0: yielding()}}

	stats, err := newTestReplayer(testConfig(false), offsets, source, nil).run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}
