// Package reservation управляет жизненным циклом брони: удержание комнаты,
// отмена, завершение и подтверждение после оплаты.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/metrics"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/audit"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/pricing"
)

const (
	// Сколько комната удерживается в ожидании оплаты.
	DefaultHoldTTL = 15 * time.Minute

	maxSaveRetries = 3
	baseRetryDelay = 10 * time.Millisecond
)

// ServiceRequest описывает запрошенную дополнительную услугу.
type ServiceRequest struct {
	ServiceID string
	Quantity  int32
}

// CreateInput содержит данные для создания брони.
type CreateInput struct {
	UserID       string
	RoomID       string
	CheckIn      time.Time
	CheckOut     time.Time
	Guests       int32
	GuestDetails []byte
	Services     []ServiceRequest
	DiscountID   string
}

// CreateResult — созданная бронь и расчёт её стоимости.
type CreateResult struct {
	Reservation domain.Reservation
	Room        domain.Room
	Quote       pricing.Quote
	Services    []domain.ReservationServiceLine
}

// Option настраивает Manager.
type Option func(*Manager)

// WithHoldTTL задаёт длительность удержания.
func WithHoldTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.holdTTL = ttl
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

// WithTimeline подключает запись истории брони.
func WithTimeline(rec *audit.Recorder) Option {
	return func(m *Manager) { m.timeline = rec }
}

// Manager ведёт жизненный цикл брони.
type Manager struct {
	rooms        domain.RoomRepository
	reservations domain.ReservationRepository
	oracle       domain.AvailabilityOracle
	services     domain.ServiceRepository
	pricing      *pricing.Calculator

	timeline *audit.Recorder
	metrics  *metrics.BookingMetrics
	logger   *log.Entry
	now      func() time.Time
	holdTTL  time.Duration
}

// NewManager собирает менеджер броней.
func NewManager(
	rooms domain.RoomRepository,
	reservations domain.ReservationRepository,
	oracle domain.AvailabilityOracle,
	services domain.ServiceRepository,
	calc *pricing.Calculator,
	opts ...Option,
) *Manager {
	m := &Manager{
		rooms:        rooms,
		reservations: reservations,
		oracle:       oracle,
		services:     services,
		pricing:      calc,
		logger:       log.WithField("component", "reservation-manager"),
		now:          func() time.Time { return time.Now().UTC() },
		holdTTL:      DefaultHoldTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create удерживает комнату за пользователем до оплаты.
func (m *Manager) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	loc := m.pricing.Location()
	if err := validateCreate(in, loc); err != nil {
		m.metrics.RecordReservationRejected("invalid_input")
		return CreateResult{}, err
	}
	in.CheckIn = domain.CalendarDate(in.CheckIn, loc)
	in.CheckOut = domain.CalendarDate(in.CheckOut, loc)

	room, err := m.rooms.Get(ctx, in.RoomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			m.metrics.RecordReservationRejected("room_not_found")
		}
		return CreateResult{}, err
	}
	if in.Guests > room.Capacity {
		m.metrics.RecordReservationRejected("invalid_input")
		return CreateResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrGuestsInvalid)
	}

	available, err := m.oracle.IsAvailable(ctx, room.ID, in.CheckIn, in.CheckOut)
	if err != nil {
		return CreateResult{}, fmt.Errorf("check availability: %w", err)
	}
	if !available {
		m.metrics.RecordReservationRejected("room_unavailable")
		return CreateResult{}, domain.ErrRoomUnavailable
	}

	lines, charges, err := m.priceServices(ctx, in.Services)
	if err != nil {
		return CreateResult{}, err
	}

	quote, err := m.pricing.Quote(ctx, pricing.QuoteInput{
		UserID:       in.UserID,
		NightlyMinor: room.PriceMinor,
		CheckIn:      in.CheckIn,
		CheckOut:     in.CheckOut,
		Services:     charges,
		DiscountID:   in.DiscountID,
	})
	if err != nil {
		m.metrics.RecordReservationRejected("pricing")
		return CreateResult{}, err
	}

	now := m.now()
	lockedUntil := now.Add(m.holdTTL)
	res := domain.Reservation{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		RoomID:       room.ID,
		CheckIn:      in.CheckIn,
		CheckOut:     in.CheckOut,
		Guests:       in.Guests,
		GuestDetails: in.GuestDetails,
		TotalMinor:   quote.TotalMinor,
		Status:       domain.ReservationStatusPendingPayment,
		LockedUntil:  &lockedUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range lines {
		lines[i].ReservationID = res.ID
	}

	if err := m.reservations.Create(ctx, res, lines); err != nil {
		if errors.Is(err, domain.ErrRoomUnavailable) {
			m.metrics.RecordReservationRejected("room_unavailable")
			return CreateResult{}, domain.ErrRoomUnavailable
		}
		return CreateResult{}, fmt.Errorf("persist reservation: %w", err)
	}

	if quote.Discount != nil {
		applied := domain.ReservationDiscount{
			ReservationID: res.ID,
			DiscountID:    quote.Discount.ID,
			AmountMinor:   quote.DiscountMinor,
			CreatedAt:     now,
		}
		if err := m.reservations.AddDiscount(ctx, applied); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"reservation_id": res.ID,
				"discount_id":    quote.Discount.ID,
			}).Warn("record applied discount failed")
		}
	}

	m.timeline.Record(ctx, res.ID, domain.TimelineReservationCreated, "")
	m.metrics.RecordReservationCreated()
	m.logger.WithFields(log.Fields{
		"reservation_id": res.ID,
		"room_id":        room.ID,
		"user_id":        in.UserID,
		"nights":         quote.Nights,
		"total_minor":    quote.TotalMinor,
	}).Info("reservation hold created")

	return CreateResult{Reservation: res, Room: room, Quote: quote, Services: lines}, nil
}

func validateCreate(in CreateInput, loc *time.Location) error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrUserRequired)
	case in.RoomID == "":
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrRoomRequired)
	case in.CheckIn.IsZero() || in.CheckOut.IsZero() || domain.NightsIn(in.CheckIn, in.CheckOut, loc) <= 0:
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrDatesInvalid)
	case in.Guests <= 0:
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrGuestsInvalid)
	}
	for _, s := range in.Services {
		if s.ServiceID == "" || s.Quantity <= 0 {
			return fmt.Errorf("%w: service_id and positive quantity are required", domain.ErrInvalidInput)
		}
	}
	return nil
}

// priceServices считает подытоги услуг по ценам каталога.
func (m *Manager) priceServices(ctx context.Context, requested []ServiceRequest) ([]domain.ReservationServiceLine, []pricing.ServiceCharge, error) {
	if len(requested) == 0 {
		return nil, nil, nil
	}
	if m.services == nil {
		return nil, nil, domain.ErrServiceNotFound
	}

	lines := make([]domain.ReservationServiceLine, 0, len(requested))
	charges := make([]pricing.ServiceCharge, 0, len(requested))
	for _, req := range requested {
		svc, err := m.services.Get(ctx, req.ServiceID)
		if err != nil {
			return nil, nil, err
		}
		subtotal := svc.PriceMinor * int64(req.Quantity)
		lines = append(lines, domain.ReservationServiceLine{
			ID:            uuid.NewString(),
			ServiceID:     svc.ID,
			Quantity:      req.Quantity,
			SubtotalMinor: subtotal,
		})
		charges = append(charges, pricing.ServiceCharge{
			ServiceID:     svc.ID,
			Quantity:      req.Quantity,
			SubtotalMinor: subtotal,
		})
	}
	return lines, charges, nil
}

// Cancel отменяет бронь владельцем или персоналом. Платежи не затрагиваются.
func (m *Manager) Cancel(ctx context.Context, id string, actor domain.Actor) (domain.Reservation, error) {
	res, err := m.update(ctx, id, func(r *domain.Reservation) error {
		if !actor.CanAccess(r.UserID) {
			return domain.ErrForbidden
		}
		if r.Status.Terminal() {
			return domain.ErrAlreadyTerminal
		}
		return r.Transition(domain.ReservationStatusCancelled, m.now())
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	by := "owner"
	if actor.UserID != res.UserID {
		by = string(actor.Role)
	}
	m.timeline.Record(ctx, res.ID, domain.TimelineReservationCancelled, by)
	m.metrics.RecordReservationCancelled(by)
	m.logger.WithFields(log.Fields{"reservation_id": res.ID, "by": actor.UserID}).Info("reservation cancelled")
	return res, nil
}

// Complete переводит бронь в completed. Доступно только персоналу.
func (m *Manager) Complete(ctx context.Context, id string, actor domain.Actor) (domain.Reservation, error) {
	if !actor.IsStaff() {
		return domain.Reservation{}, domain.ErrForbidden
	}

	res, err := m.update(ctx, id, func(r *domain.Reservation) error {
		if r.Status == domain.ReservationStatusCompleted {
			return domain.ErrAlreadyTerminal
		}
		return r.Transition(domain.ReservationStatusCompleted, m.now())
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	m.timeline.Record(ctx, res.ID, domain.TimelineReservationCompleted, actor.UserID)
	m.metrics.RecordReservationCompleted()
	return res, nil
}

// Confirm переводит удержание в confirmed после успешной оплаты.
// Возвращает ErrInvalidStatus, если бронь уже не ждёт оплаты.
func (m *Manager) Confirm(ctx context.Context, id string) (domain.Reservation, error) {
	res, err := m.update(ctx, id, func(r *domain.Reservation) error {
		if r.Status != domain.ReservationStatusPendingPayment {
			return domain.ErrInvalidStatus
		}
		return r.Transition(domain.ReservationStatusConfirmed, m.now())
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	m.timeline.Record(ctx, res.ID, domain.TimelineReservationConfirmed, "")
	return res, nil
}

// ExpireHold отменяет удержание, если оно всё ещё pending_payment и истекло.
// Возвращает false, если бронь успели оплатить или отменить.
func (m *Manager) ExpireHold(ctx context.Context, id string) (bool, error) {
	_, err := m.update(ctx, id, func(r *domain.Reservation) error {
		if r.Status != domain.ReservationStatusPendingPayment || !r.HoldExpired(m.now()) {
			return errHoldActive
		}
		return r.Transition(domain.ReservationStatusCancelled, m.now())
	})
	if errors.Is(err, errHoldActive) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.timeline.Record(ctx, id, domain.TimelineHoldExpired, "")
	m.metrics.RecordHoldExpired()
	return true, nil
}

var errHoldActive = errors.New("hold is not expired")

// update перечитывает бронь и повторяет изменение при конфликте версий.
func (m *Manager) update(ctx context.Context, id string, mutate func(*domain.Reservation) error) (domain.Reservation, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		res, err := m.reservations.Get(ctx, id)
		if err != nil {
			return domain.Reservation{}, err
		}
		if err := mutate(&res); err != nil {
			return domain.Reservation{}, err
		}

		err = m.reservations.Save(ctx, res)
		if err == nil {
			res.Version++
			return res, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.Reservation{}, fmt.Errorf("save reservation: %w", err)
		}

		lastErr = err
		m.logger.WithFields(log.Fields{
			"reservation_id": id,
			"attempt":        attempt + 1,
		}).Debug("reservation version conflict, retrying")

		delay := baseRetryDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return domain.Reservation{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return domain.Reservation{}, fmt.Errorf("save reservation after %d attempts: %w", maxSaveRetries, lastErr)
}

// Get возвращает бронь владельцу или персоналу.
func (m *Manager) Get(ctx context.Context, id string, actor domain.Actor) (domain.Reservation, error) {
	res, err := m.reservations.Get(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !actor.CanAccess(res.UserID) {
		return domain.Reservation{}, domain.ErrForbidden
	}
	return res, nil
}

// ListByUser возвращает брони пользователя, новые первыми.
func (m *Manager) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Reservation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrUserRequired)
	}
	return m.reservations.ListByUser(ctx, userID, limit)
}

// ListAll возвращает брони всех пользователей. Только для персонала.
func (m *Manager) ListAll(ctx context.Context, actor domain.Actor, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	return m.reservations.List(ctx, filter)
}

// Services возвращает дополнительные услуги брони.
func (m *Manager) Services(ctx context.Context, id string, actor domain.Actor) ([]domain.ReservationServiceLine, error) {
	if _, err := m.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return m.reservations.Services(ctx, id)
}

// Discounts возвращает применённые к брони скидки.
func (m *Manager) Discounts(ctx context.Context, id string, actor domain.Actor) ([]domain.ReservationDiscount, error) {
	if _, err := m.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return m.reservations.Discounts(ctx, id)
}

// Timeline возвращает историю брони.
func (m *Manager) Timeline(ctx context.Context, id string, actor domain.Actor) ([]domain.TimelineEvent, error) {
	if _, err := m.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return m.timeline.List(ctx, id)
}
