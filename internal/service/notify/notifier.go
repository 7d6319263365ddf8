// Package notify доставляет уведомления о подтверждённых бронях.
//
// Сторона сервиса (Notifier) ставит событие reservation.confirmed в transactional
// outbox, не блокируя обработку платежа. Сторона потребителя (Handler) получает
// событие из брокера, формирует квитанцию и отправляет письмо.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
	"github.com/vladislavdragonenkov/hotel-booking/internal/metrics"
)

const (
	defaultBufferSize   = 256
	defaultDrainTimeout = 5 * time.Second
)

// Результаты уведомления для метрик.
const (
	resultQueued   = "queued"
	resultDropped  = "dropped"
	resultEnqueued = "enqueued"
	resultFailed   = "failed"
)

// ReservationReader читает бронь для формирования события.
type ReservationReader interface {
	Get(ctx context.Context, id string) (domain.Reservation, error)
}

// Option настраивает Notifier.
type Option func(*Notifier)

// WithBufferSize задаёт ёмкость очереди.
func WithBufferSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.bufferSize = size
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// Notifier принимает идентификаторы подтверждённых броней и пишет события в outbox.
type Notifier struct {
	reservations ReservationReader
	outbox       domain.OutboxRepository
	metrics      *metrics.BookingMetrics
	logger       *log.Entry
	now          func() time.Time
	bufferSize   int
	queue        chan string
}

// NewNotifier создаёт Notifier. Очередь разбирается в Run.
func NewNotifier(reservations ReservationReader, outbox domain.OutboxRepository, opts ...Option) *Notifier {
	n := &Notifier{
		reservations: reservations,
		outbox:       outbox,
		logger:       log.WithField("component", "confirmation-notifier"),
		now:          func() time.Time { return time.Now().UTC() },
		bufferSize:   defaultBufferSize,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.queue = make(chan string, n.bufferSize)
	return n
}

// ReservationConfirmed ставит уведомление в очередь. Никогда не блокирует:
// при переполнении уведомление теряется и учитывается в метриках.
func (n *Notifier) ReservationConfirmed(reservationID string) {
	select {
	case n.queue <- reservationID:
		n.metrics.RecordNotification(resultQueued)
	default:
		n.metrics.RecordNotification(resultDropped)
		n.logger.WithField("reservation_id", reservationID).Warn("notification queue is full, confirmation dropped")
	}
}

// Run разбирает очередь до отмены ctx, затем дописывает оставшееся с таймаутом.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case id := <-n.queue:
			n.dispatch(ctx, id)
		case <-ctx.Done():
			n.drain()
			return
		}
	}
}

func (n *Notifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultDrainTimeout)
	defer cancel()

	for {
		select {
		case id := <-n.queue:
			n.dispatch(ctx, id)
		default:
			return
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, id string) {
	if err := n.Dispatch(ctx, id); err != nil {
		n.logger.WithError(err).WithField("reservation_id", id).Error("failed to enqueue confirmation")
	}
}

// Dispatch записывает событие reservation.confirmed в outbox.
func (n *Notifier) Dispatch(ctx context.Context, reservationID string) error {
	res, err := n.reservations.Get(ctx, reservationID)
	if err != nil {
		n.metrics.RecordNotification(resultFailed)
		return fmt.Errorf("load reservation: %w", err)
	}
	if res.Status != domain.ReservationStatusConfirmed {
		n.metrics.RecordNotification(resultFailed)
		return fmt.Errorf("%w: reservation %s is %s", domain.ErrInvalidStatus, res.ID, res.Status)
	}

	payload, err := json.Marshal(messaging.NewReservationConfirmed(res))
	if err != nil {
		n.metrics.RecordNotification(resultFailed)
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := n.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateReservation,
		AggregateID:   res.ID,
		EventType:     domain.EventReservationConfirmed,
		Payload:       payload,
		CreatedAt:     n.now(),
	}); err != nil {
		n.metrics.RecordNotification(resultFailed)
		return fmt.Errorf("enqueue outbox: %w", err)
	}

	n.metrics.RecordNotification(resultEnqueued)
	n.logger.WithField("reservation_id", res.ID).Debug("confirmation enqueued")
	return nil
}

var _ domain.ConfirmationNotifier = (*Notifier)(nil)
