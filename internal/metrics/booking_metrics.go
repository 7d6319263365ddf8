package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обработки платежа (значения label outcome).
const (
	OutcomeSuccess          = "success"
	OutcomeDeclined         = "declined"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeUpdateFailed     = "update_failed"
	OutcomeCompensated      = "compensated"
	OutcomeAlreadyPaid      = "already_paid"
)

// BookingMetrics содержит метрики броней и платежей. Методы безопасны для nil.
type BookingMetrics struct {
	reservationsCreated   prometheus.Counter
	reservationsRejected  *prometheus.CounterVec
	reservationsCancelled *prometheus.CounterVec
	reservationsCompleted prometheus.Counter
	holdsExpired          prometheus.Counter

	paymentsInitiated *prometheus.CounterVec
	paymentsProcessed *prometheus.CounterVec
	compensations     prometheus.Counter
	processDuration   prometheus.Histogram

	notifications *prometheus.CounterVec
}

// NewBookingMetrics регистрирует метрики в DefaultRegisterer.
func NewBookingMetrics() *BookingMetrics {
	return NewBookingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBookingMetricsWithRegisterer регистрирует метрики в заданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewBookingMetricsWithRegisterer(registerer prometheus.Registerer) *BookingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BookingMetrics{
		reservationsCreated: register(registerer, "hotel_reservations_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_reservations_created_total",
			Help: "Total number of reservation holds created.",
		})),
		reservationsRejected: register(registerer, "hotel_reservations_rejected_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_reservations_rejected_total",
			Help: "Reservation creation attempts rejected, grouped by reason.",
		}, []string{"reason"})),
		reservationsCancelled: register(registerer, "hotel_reservations_cancelled_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_reservations_cancelled_total",
			Help: "Cancelled reservations grouped by who cancelled them.",
		}, []string{"by"})),
		reservationsCompleted: register(registerer, "hotel_reservations_completed_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_reservations_completed_total",
			Help: "Reservations marked as completed by staff.",
		})),
		holdsExpired: register(registerer, "hotel_holds_expired_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_holds_expired_total",
			Help: "Expired holds released by the reaper.",
		})),
		paymentsInitiated: register(registerer, "hotel_payments_initiated_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_payments_initiated_total",
			Help: "Payment intents grouped by result (created, reused, rejected, failed).",
		}, []string{"result"})),
		paymentsProcessed: register(registerer, "hotel_payments_processed_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_payments_processed_total",
			Help: "Settlement callbacks grouped by outcome.",
		}, []string{"outcome"})),
		compensations: register(registerer, "hotel_payment_compensations_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotel_payment_compensations_total",
			Help: "Payments rolled back to failed after the reservation could not be confirmed.",
		})),
		processDuration: register(registerer, "hotel_payment_process_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotel_payment_process_duration_seconds",
			Help:    "Duration of payment processing in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})),
		notifications: register(registerer, "hotel_confirmation_notifications_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_confirmation_notifications_total",
			Help: "Confirmation notifications grouped by result (queued, dropped, enqueued, failed).",
		}, []string{"result"})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordReservationCreated увеличивает счётчик созданных броней.
func (m *BookingMetrics) RecordReservationCreated() {
	if m == nil {
		return
	}
	m.reservationsCreated.Inc()
}

// RecordReservationRejected учитывает отказ в создании брони.
func (m *BookingMetrics) RecordReservationRejected(reason string) {
	if m == nil {
		return
	}
	m.reservationsRejected.WithLabelValues(reason).Inc()
}

// RecordReservationCancelled учитывает отмену (by: owner, staff, expired).
func (m *BookingMetrics) RecordReservationCancelled(by string) {
	if m == nil {
		return
	}
	m.reservationsCancelled.WithLabelValues(by).Inc()
}

// RecordReservationCompleted увеличивает счётчик завершённых броней.
func (m *BookingMetrics) RecordReservationCompleted() {
	if m == nil {
		return
	}
	m.reservationsCompleted.Inc()
}

// RecordHoldExpired увеличивает счётчик снятых по таймауту удержаний.
func (m *BookingMetrics) RecordHoldExpired() {
	if m == nil {
		return
	}
	m.holdsExpired.Inc()
}

// RecordPaymentInitiated учитывает результат initiate.
func (m *BookingMetrics) RecordPaymentInitiated(result string) {
	if m == nil {
		return
	}
	m.paymentsInitiated.WithLabelValues(result).Inc()
}

// RecordPaymentProcessed учитывает исход process и его длительность.
func (m *BookingMetrics) RecordPaymentProcessed(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.paymentsProcessed.WithLabelValues(outcome).Inc()
	m.processDuration.Observe(duration.Seconds())
	if outcome == OutcomeCompensated {
		m.compensations.Inc()
	}
}

// RecordNotification учитывает судьбу уведомления о подтверждении.
func (m *BookingMetrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
