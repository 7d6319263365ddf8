package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReservationStatus описывает жизненный цикл брони.
type ReservationStatus string

const (
	// Комната удержана до LockedUntil, ждём оплату.
	ReservationStatusPendingPayment ReservationStatus = "pending_payment"
	// Оплата прошла, бронь подтверждена.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// Бронь отменена владельцем, персоналом или истекла.
	ReservationStatusCancelled ReservationStatus = "cancelled"
	// Проживание завершено (переводит персонал).
	ReservationStatusCompleted ReservationStatus = "completed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusPendingPayment, ReservationStatusConfirmed,
		ReservationStatusCancelled, ReservationStatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что отмена из этого статуса невозможна.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusCompleted
}

// CanTransition описывает граф допустимых переходов статуса брони.
func CanTransition(from, to ReservationStatus) bool {
	switch to {
	case ReservationStatusConfirmed:
		return from == ReservationStatusPendingPayment
	case ReservationStatusCancelled:
		return from == ReservationStatusPendingPayment || from == ReservationStatusConfirmed
	case ReservationStatusCompleted:
		return from.Valid() && from != ReservationStatusCompleted
	default:
		return false
	}
}

// Reservation — бронь комнаты на диапазон календарных дат [CheckIn, CheckOut).
type Reservation struct {
	ID     string
	UserID string
	RoomID string
	// CheckIn и CheckOut хранятся как полночь UTC.
	CheckIn      time.Time
	CheckOut     time.Time
	Guests       int32
	GuestDetails []byte
	TotalMinor   int64
	Status       ReservationStatus
	// LockedUntil задан только для pending_payment.
	LockedUntil *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Nights возвращает количество ночей брони.
func (r *Reservation) Nights() int {
	return NightsBetween(r.CheckIn, r.CheckOut)
}

// HoldExpired сообщает, что удержание истекло к моменту now.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.Before(now)
}

// Holds сообщает, что бронь занимает комнату на момент now.
func (r *Reservation) Holds(now time.Time) bool {
	switch r.Status {
	case ReservationStatusConfirmed:
		return true
	case ReservationStatusPendingPayment:
		return !r.HoldExpired(now)
	default:
		return false
	}
}

// Overlaps проверяет пересечение полуинтервалов дат [in, out).
func (r *Reservation) Overlaps(checkIn, checkOut time.Time) bool {
	return r.CheckIn.Before(checkOut) && checkIn.Before(r.CheckOut)
}

// Transition переводит бронь в новый статус, поддерживая инвариант LockedUntil.
func (r *Reservation) Transition(to ReservationStatus, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.LockedUntil = nil
	r.UpdatedAt = now
	return nil
}

// CheckInvariants проверяет базовые инварианты брони и возвращает список замечаний.
func (r *Reservation) CheckInvariants() []error {
	var errs []error

	if r.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if r.RoomID == "" {
		errs = append(errs, ErrRoomRequired)
	}
	if !r.CheckOut.After(r.CheckIn) {
		errs = append(errs, ErrDatesInvalid)
	}
	if r.Guests <= 0 {
		errs = append(errs, ErrGuestsInvalid)
	}
	if r.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	pending := r.Status == ReservationStatusPendingPayment
	if pending != (r.LockedUntil != nil) {
		errs = append(errs, fmt.Errorf("%w: locked_until must be set only while pending_payment", ErrInvalidStatus))
	}

	return errs
}

// ReservationServiceLine — дополнительная услуга в составе брони.
type ReservationServiceLine struct {
	ID            string
	ReservationID string
	ServiceID     string
	Quantity      int32
	SubtotalMinor int64
}

// ReservationDiscount фиксирует применённую к брони скидку.
type ReservationDiscount struct {
	ReservationID string
	DiscountID    string
	AmountMinor   int64
	CreatedAt     time.Time
}

// ReservationFilter задаёт выборку броней для персонала.
type ReservationFilter struct {
	Status ReservationStatus
	// From/To ограничивают дату заезда (включительно).
	From  time.Time
	To    time.Time
	Limit int
}

// Match проверяет бронь на соответствие фильтру.
func (f ReservationFilter) Match(r Reservation) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && r.CheckIn.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.CheckIn.After(f.To) {
		return false
	}
	return true
}

// CivilDate отбрасывает время суток: берёт календарную дату t в loc и возвращает её полночь в UTC.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate принимает "2006-01-02" или RFC3339 и возвращает календарную дату (полночь UTC).
// Для RFC3339 берётся дата до символа 'T', смещение часового пояса игнорируется.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidInput, s)
	}
	return t, nil
}

// CalendarDate возвращает календарную дату значения. Дата без времени суток
// (полночь) берётся как есть, момент со временем суток переводится в loc.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return CivilDate(t, nil)
	}
	return CivilDate(t, loc)
}

// NightsBetween возвращает число ночей между датами (округление вверх).
func NightsBetween(checkIn, checkOut time.Time) int {
	return NightsIn(checkIn, checkOut, nil)
}

// NightsIn считает ночи по календарным датам отеля в часовом поясе loc.
func NightsIn(checkIn, checkOut time.Time, loc *time.Location) int {
	diff := CalendarDate(checkOut, loc).Sub(CalendarDate(checkIn, loc))
	nights := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		nights++
	}
	return nights
}
