package domain

import "time"

// Типы событий в истории брони.
const (
	TimelineReservationCreated   = "reservation_created"
	TimelineReservationConfirmed = "reservation_confirmed"
	TimelineReservationCancelled = "reservation_cancelled"
	TimelineReservationCompleted = "reservation_completed"
	TimelineHoldExpired          = "hold_expired"
	TimelinePaymentInitiated     = "payment_initiated"
	TimelinePaymentSucceeded     = "payment_succeeded"
	TimelinePaymentFailed        = "payment_failed"
	TimelinePaymentRolledBack    = "payment_rolled_back"
)

// TimelineEvent описывает событие в жизненном цикле брони.
type TimelineEvent struct {
	ReservationID string
	Type          string
	Reason        string
	Occurred      time.Time
}
