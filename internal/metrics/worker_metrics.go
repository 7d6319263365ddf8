package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики публикации transactional outbox. Методы безопасны для nil.
type OutboxMetrics struct {
	attempts  *prometheus.CounterVec
	pending   prometheus.Gauge
	oldestAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox в registerer.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &OutboxMetrics{
		attempts: register(registerer, "hotel_outbox_publish_attempts_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"})),
		pending: register(registerer, "hotel_outbox_pending_records", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotel_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		})),
		oldestAge: register(registerer, "hotel_outbox_oldest_pending_age_seconds", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotel_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		})),
	}
}

// RecordAttempt учитывает попытку публикации (sent, retry_error, failed, dlq_failed).
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestAge.Set(oldestAge.Seconds())
}

// CleanupMetrics считает фоновые чистки: ключи идемпотентности и истёкшие удержания.
type CleanupMetrics struct {
	runs    *prometheus.CounterVec
	deleted *prometheus.CounterVec
}

// NewCleanupMetrics регистрирует метрики чисток.
func NewCleanupMetrics(registerer prometheus.Registerer) *CleanupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &CleanupMetrics{
		runs: register(registerer, "hotel_cleanup_runs_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_cleanup_runs_total",
			Help: "Cleanup worker runs grouped by worker and result.",
		}, []string{"worker", "result"})),
		deleted: register(registerer, "hotel_cleanup_items_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotel_cleanup_items_total",
			Help: "Items removed or released by cleanup workers.",
		}, []string{"worker"})),
	}
}

// RecordRun учитывает запуск воркера и число обработанных записей.
func (m *CleanupMetrics) RecordRun(worker string, items int, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(worker, result).Inc()
	if items > 0 {
		m.deleted.WithLabelValues(worker).Add(float64(items))
	}
}
