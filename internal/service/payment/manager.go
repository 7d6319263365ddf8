// Package payment ведёт попытки оплаты брони: проверка, создание платежа,
// обработка ответа провайдера с подтверждением брони и компенсацией.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/lock"
	"github.com/vladislavdragonenkov/hotel-booking/internal/metrics"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/audit"
)

// В течение DefaultReuseWindow повторная инициация возвращает тот же платёж.
const DefaultReuseWindow = 5 * time.Minute

const rollbackReason = "reservation update failed"

// ReservationConfirmer подтверждает бронь после успешной оплаты.
type ReservationConfirmer interface {
	Confirm(ctx context.Context, reservationID string) (domain.Reservation, error)
}

// InitiateInput описывает запрос на создание платежа.
type InitiateInput struct {
	ReservationID string
	UserID        string
	Method        domain.PaymentMethod
	Card          *CardDetails
	Phone         string
}

// InitiateResult — созданный или переиспользованный платёж.
type InitiateResult struct {
	Payment domain.Payment
	Reused  bool
}

// ProcessResult содержит итог обработки ответа провайдера.
type ProcessResult struct {
	Payment     domain.Payment
	Reservation domain.Reservation
}

// Eligibility показывает, может ли пользователь оплатить бронь сейчас.
type Eligibility struct {
	CanPay      bool
	Reason      error
	Reservation *domain.Reservation
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLocker задаёт блокировку, сериализующую обработку одного платежа.
func WithLocker(l lock.Locker) Option {
	return func(m *Manager) {
		if l != nil {
			m.locker = l
		}
	}
}

// WithNotifier подключает уведомление о подтверждённой брони.
func WithNotifier(n domain.ConfirmationNotifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithRooms подключает каталог комнат для метаданных платежа.
func WithRooms(rooms domain.RoomRepository) Option {
	return func(m *Manager) { m.rooms = rooms }
}

// WithReuseWindow задаёт окно переиспользования pending платежа.
func WithReuseWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reuseWindow = d
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(mtr *metrics.BookingMetrics) Option {
	return func(m *Manager) { m.metrics = mtr }
}

// WithTimeline подключает историю брони.
func WithTimeline(rec *audit.Recorder) Option {
	return func(m *Manager) { m.timeline = rec }
}

// Manager ведёт жизненный цикл платежей.
type Manager struct {
	payments     domain.PaymentRepository
	reservations domain.ReservationRepository
	confirmer    ReservationConfirmer
	gateway      domain.SettlementGateway

	rooms       domain.RoomRepository
	locker      lock.Locker
	notifier    domain.ConfirmationNotifier
	timeline    *audit.Recorder
	metrics     *metrics.BookingMetrics
	logger      *log.Entry
	now         func() time.Time
	reuseWindow time.Duration
}

// NewManager собирает менеджер платежей. По умолчанию блокировка in-process.
func NewManager(
	payments domain.PaymentRepository,
	reservations domain.ReservationRepository,
	confirmer ReservationConfirmer,
	gateway domain.SettlementGateway,
	opts ...Option,
) *Manager {
	m := &Manager{
		payments:     payments,
		reservations: reservations,
		confirmer:    confirmer,
		gateway:      gateway,
		locker:       lock.NewKeyedMutex(),
		logger:       log.WithField("component", "payment-manager"),
		now:          func() time.Time { return time.Now().UTC() },
		reuseWindow:  DefaultReuseWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate проверяет, что пользователь может оплатить бронь.
// Порядок проверок: существование, владелец, статус, наличие успешного платежа, срок удержания.
func (m *Manager) Validate(ctx context.Context, reservationID, userID string) (domain.Reservation, error) {
	res, err := m.reservations.Get(ctx, reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if res.UserID != userID {
		return domain.Reservation{}, domain.ErrReservationNotOwned
	}
	if res.Status != domain.ReservationStatusPendingPayment {
		return domain.Reservation{}, domain.ErrInvalidStatus
	}

	paid, err := m.payments.HasSuccess(ctx, reservationID)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("check completed payment: %w", err)
	}
	if paid {
		return domain.Reservation{}, domain.ErrAlreadyCompleted
	}
	if res.HoldExpired(m.now()) {
		return domain.Reservation{}, domain.ErrReservationExpired
	}
	return res, nil
}

// Eligibility работает как Validate, но не возвращает ошибки проверки.
func (m *Manager) Eligibility(ctx context.Context, reservationID, userID string) (Eligibility, error) {
	res, err := m.Validate(ctx, reservationID, userID)
	switch {
	case err == nil:
		return Eligibility{CanPay: true, Reservation: &res}, nil
	case domain.IsEligibility(err):
		return Eligibility{CanPay: false, Reason: err}, nil
	default:
		return Eligibility{}, err
	}
}

// Initiate создаёт pending платёж или возвращает недавно созданный.
func (m *Manager) Initiate(ctx context.Context, in InitiateInput) (InitiateResult, error) {
	if !in.Method.Valid() {
		m.metrics.RecordPaymentInitiated("rejected")
		return InitiateResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrPaymentMethodInvalid)
	}
	if in.Method == domain.PaymentMethodCard {
		if in.Card == nil {
			m.metrics.RecordPaymentInitiated("rejected")
			return InitiateResult{}, fmt.Errorf("%w: card data is required for card payments", domain.ErrInvalidInput)
		}
		if err := in.Card.Validate(); err != nil {
			m.metrics.RecordPaymentInitiated("rejected")
			return InitiateResult{}, err
		}
	}

	// Две одновременные инициации одной брони не должны создать два платежа.
	unlock, err := m.locker.Lock(ctx, "initiate:"+in.ReservationID)
	if err != nil {
		return InitiateResult{}, err
	}
	defer unlock()

	res, err := m.Validate(ctx, in.ReservationID, in.UserID)
	if err != nil {
		m.metrics.RecordPaymentInitiated("rejected")
		return InitiateResult{}, err
	}

	now := m.now()
	existing, err := m.payments.FindRecentPending(ctx, res.ID, now.Add(-m.reuseWindow))
	switch {
	case err == nil:
		m.metrics.RecordPaymentInitiated("reused")
		m.logger.WithFields(log.Fields{
			"payment_id":     existing.ID,
			"reservation_id": res.ID,
		}).Info("returning recent pending payment")
		return InitiateResult{Payment: existing, Reused: true}, nil
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return InitiateResult{}, fmt.Errorf("find pending payment: %w", err)
	}

	p := domain.Payment{
		ID:             uuid.NewString(),
		ReservationID:  res.ID,
		Method:         in.Method,
		AmountMinor:    res.TotalMinor,
		Status:         domain.PaymentStatusPending,
		TransactionRef: NewTransactionRef(now),
		Metadata:       m.initialMetadata(ctx, in, res, now),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.payments.Create(ctx, p); err != nil {
		m.metrics.RecordPaymentInitiated("failed")
		m.logger.WithError(err).WithField("reservation_id", res.ID).Error("create payment failed")
		return InitiateResult{}, fmt.Errorf("%w: %v", domain.ErrPaymentCreationFailed, err)
	}

	m.timeline.Record(ctx, res.ID, domain.TimelinePaymentInitiated, string(in.Method))
	m.metrics.RecordPaymentInitiated("created")
	m.logger.WithFields(log.Fields{
		"payment_id":      p.ID,
		"reservation_id":  res.ID,
		"transaction_ref": p.TransactionRef,
		"amount_minor":    p.AmountMinor,
	}).Info("payment initiated")
	return InitiateResult{Payment: p}, nil
}

func (m *Manager) initialMetadata(ctx context.Context, in InitiateInput, res domain.Reservation, now time.Time) map[string]any {
	meta := map[string]any{
		domain.MetaUserID:      in.UserID,
		domain.MetaInitiatedAt: now.Format(time.RFC3339Nano),
	}
	if in.Method == domain.PaymentMethodCard && in.Card != nil {
		meta = domain.MergeMetadata(meta, in.Card.metadata())
	}
	if in.Method == domain.PaymentMethodYape && in.Phone != "" {
		meta[domain.MetaPhone] = in.Phone
	}
	if m.rooms != nil {
		if room, err := m.rooms.Get(ctx, res.RoomID); err == nil {
			meta[domain.MetaRoomCode] = room.Code
			meta[domain.MetaRoomType] = room.Type
		}
	}
	return meta
}

// NewTransactionRef формирует ссылку вида TXN-<unix ms>-<9 символов>.
func NewTransactionRef(now time.Time) string {
	return "TXN-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + randomCode(9)
}

// Simulate запрашивает исход у провайдера и обрабатывает его.
// method должен совпадать со способом оплаты платежа.
func (m *Manager) Simulate(ctx context.Context, paymentID string, method domain.PaymentMethod, forceFailure bool) (ProcessResult, domain.SettlementOutcome, error) {
	p, err := m.payments.Get(ctx, paymentID)
	if err != nil {
		return ProcessResult{}, domain.SettlementOutcome{}, err
	}
	if p.Method != method {
		return ProcessResult{}, domain.SettlementOutcome{}, fmt.Errorf("%w: payment method is %s", domain.ErrInvalidInput, p.Method)
	}

	outcome, err := m.gateway.Settle(ctx, p, forceFailure)
	if err != nil {
		return ProcessResult{}, domain.SettlementOutcome{}, fmt.Errorf("settle payment: %w", err)
	}
	result, err := m.Process(ctx, paymentID, outcome)
	return result, outcome, err
}

// Process применяет исход провайдера к платежу. Вызовы для одного платежа
// сериализуются блокировкой, переходы статуса выполняются через compare-and-swap.
func (m *Manager) Process(ctx context.Context, paymentID string, outcome domain.SettlementOutcome) (ProcessResult, error) {
	start := time.Now()

	unlock, err := m.locker.Lock(ctx, "payment:"+paymentID)
	if err != nil {
		return ProcessResult{}, err
	}
	defer unlock()

	p, err := m.payments.Get(ctx, paymentID)
	if err != nil {
		return ProcessResult{}, err
	}
	if p.Status != domain.PaymentStatusPending {
		m.metrics.RecordPaymentProcessed(metrics.OutcomeAlreadyProcessed, time.Since(start))
		return ProcessResult{Payment: p}, domain.ErrPaymentAlreadyProcessed
	}

	logger := m.logger.WithFields(log.Fields{
		"payment_id":     p.ID,
		"reservation_id": p.ReservationID,
	})

	if !outcome.Success {
		return m.decline(ctx, p, outcome, logger, start)
	}

	now := m.now()
	paid, err := m.payments.Transition(ctx, p.ID, domain.PaymentUpdate{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusSuccess,
		At:   now,
		Metadata: map[string]any{
			domain.MetaAuthorizationCode:    outcome.AuthorizationCode,
			domain.MetaCompletedAt:          now.Format(time.RFC3339Nano),
			domain.MetaProcessingDurationMs: now.Sub(p.CreatedAt).Milliseconds(),
		},
	})
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		m.metrics.RecordPaymentProcessed(metrics.OutcomeAlreadyProcessed, time.Since(start))
		return ProcessResult{Payment: p}, domain.ErrPaymentAlreadyProcessed
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return m.rejectSecondSuccess(ctx, p, logger, start)
	case err != nil:
		m.metrics.RecordPaymentProcessed(metrics.OutcomeUpdateFailed, time.Since(start))
		logger.WithError(err).Error("mark payment success failed")
		return ProcessResult{Payment: p}, fmt.Errorf("%w: %v", domain.ErrPaymentUpdateFailed, err)
	}
	m.timeline.Record(ctx, p.ReservationID, domain.TimelinePaymentSucceeded, outcome.AuthorizationCode)

	res, err := m.confirmer.Confirm(ctx, p.ReservationID)
	if err != nil {
		logger.WithError(err).Error("confirm reservation failed, rolling back payment")
		rolledBack := m.compensate(ctx, paid, err, logger)
		m.metrics.RecordPaymentProcessed(metrics.OutcomeCompensated, time.Since(start))
		return ProcessResult{Payment: rolledBack}, fmt.Errorf("%w: %v", domain.ErrReservationUpdateFailed, err)
	}

	if m.notifier != nil {
		m.notifier.ReservationConfirmed(res.ID)
	}
	m.metrics.RecordPaymentProcessed(metrics.OutcomeSuccess, time.Since(start))
	logger.WithField("authorization_code", outcome.AuthorizationCode).Info("payment processed, reservation confirmed")
	return ProcessResult{Payment: paid, Reservation: res}, nil
}

func (m *Manager) decline(ctx context.Context, p domain.Payment, outcome domain.SettlementOutcome, logger *log.Entry, start time.Time) (ProcessResult, error) {
	msg := outcome.ErrorMessage
	if msg == "" {
		msg = "payment was declined"
	}

	now := m.now()
	failed, err := m.payments.Transition(ctx, p.ID, domain.PaymentUpdate{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusFailed,
		At:   now,
		Metadata: map[string]any{
			domain.MetaErrorMessage: msg,
			domain.MetaFailedAt:     now.Format(time.RFC3339Nano),
		},
	})
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		m.metrics.RecordPaymentProcessed(metrics.OutcomeAlreadyProcessed, time.Since(start))
		return ProcessResult{Payment: p}, domain.ErrPaymentAlreadyProcessed
	case err != nil:
		logger.WithError(err).Error("mark payment failed")
		failed = p
	}

	m.timeline.Record(ctx, p.ReservationID, domain.TimelinePaymentFailed, msg)
	m.metrics.RecordPaymentProcessed(metrics.OutcomeDeclined, time.Since(start))
	logger.WithField("reason", msg).Info("payment declined")
	return ProcessResult{Payment: failed}, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, msg)
}

// rejectSecondSuccess закрывает платёж, если по брони уже прошёл другой успешный платёж.
func (m *Manager) rejectSecondSuccess(ctx context.Context, p domain.Payment, logger *log.Entry, start time.Time) (ProcessResult, error) {
	now := m.now()
	failed, err := m.payments.Transition(ctx, p.ID, domain.PaymentUpdate{
		From: domain.PaymentStatusPending,
		To:   domain.PaymentStatusFailed,
		At:   now,
		Metadata: map[string]any{
			domain.MetaErrorMessage: domain.ErrAlreadyCompleted.Error(),
			domain.MetaFailedAt:     now.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		logger.WithError(err).Error("close duplicate payment failed")
		failed = p
	}

	m.metrics.RecordPaymentProcessed(metrics.OutcomeAlreadyPaid, time.Since(start))
	logger.Warn("reservation already has a successful payment")
	return ProcessResult{Payment: failed}, domain.ErrAlreadyCompleted
}

// compensate возвращает успешный платёж в failed, если бронь не удалось подтвердить.
func (m *Manager) compensate(ctx context.Context, paid domain.Payment, cause error, logger *log.Entry) domain.Payment {
	now := m.now()
	rolledBack, err := m.payments.Transition(ctx, paid.ID, domain.PaymentUpdate{
		From: domain.PaymentStatusSuccess,
		To:   domain.PaymentStatusFailed,
		At:   now,
		Metadata: map[string]any{
			domain.MetaRollbackReason: rollbackReason + ": " + cause.Error(),
			domain.MetaRolledBackAt:   now.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		// Платёж остался success при неподтверждённой брони: нужна ручная сверка.
		logger.WithError(err).Error("payment compensation failed")
		return paid
	}

	m.timeline.Record(ctx, paid.ReservationID, domain.TimelinePaymentRolledBack, cause.Error())
	return rolledBack
}

// Status возвращает платёж вместе с его бронью.
func (m *Manager) Status(ctx context.Context, paymentID string, actor domain.Actor) (domain.Payment, domain.Reservation, error) {
	p, err := m.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, domain.Reservation{}, err
	}
	res, err := m.reservations.Get(ctx, p.ReservationID)
	if err != nil {
		return domain.Payment{}, domain.Reservation{}, err
	}
	if !actor.CanAccess(res.UserID) {
		return domain.Payment{}, domain.Reservation{}, domain.ErrForbidden
	}
	return p, res, nil
}

// History возвращает все попытки оплаты брони, новые первыми.
func (m *Manager) History(ctx context.Context, reservationID string, actor domain.Actor) ([]domain.Payment, error) {
	res, err := m.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(res.UserID) {
		return nil, domain.ErrForbidden
	}
	return m.payments.ListByReservation(ctx, reservationID)
}

// HasCompletedPayment сообщает, есть ли у брони успешный платёж.
func (m *Manager) HasCompletedPayment(ctx context.Context, reservationID string) (bool, error) {
	return m.payments.HasSuccess(ctx, reservationID)
}
