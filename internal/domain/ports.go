package domain

import (
	"context"
	"time"
)

// SettlementOutcome — результат внешнего провайдера по попытке оплаты.
type SettlementOutcome struct {
	Success           bool
	AuthorizationCode string
	ErrorMessage      string
}

// SettlementGateway эмулирует или вызывает платёжного провайдера.
type SettlementGateway interface {
	// Settle возвращает исход оплаты; forceFailure принудительно отклоняет платёж.
	Settle(ctx context.Context, p Payment, forceFailure bool) (SettlementOutcome, error)
}

// ConfirmationNotifier получает идентификатор подтверждённой брони.
// Вызов не блокирует и не возвращает ошибок.
type ConfirmationNotifier interface {
	ReservationConfirmed(reservationID string)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла брони.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, reservationID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Attempts      int
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Типы агрегатов и событий outbox.
const (
	AggregateReservation = "reservation"

	EventReservationConfirmed = "reservation.confirmed"
)
