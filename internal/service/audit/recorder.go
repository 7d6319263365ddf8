// Package audit пишет историю брони в TimelineRepository.
package audit

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// Recorder добавляет события в timeline. Ошибки записи только логируются:
// история не должна ломать основной сценарий. Нулевой Recorder ничего не делает.
type Recorder struct {
	repo   domain.TimelineRepository
	logger *log.Entry
	now    func() time.Time
}

// NewRecorder создаёт Recorder; repo может быть nil.
func NewRecorder(repo domain.TimelineRepository, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "audit")
	}
	return &Recorder{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record добавляет событие eventType с необязательной причиной.
func (r *Recorder) Record(ctx context.Context, reservationID, eventType, reason string) {
	if r == nil || r.repo == nil {
		return
	}

	event := domain.TimelineEvent{
		ReservationID: reservationID,
		Type:          eventType,
		Reason:        reason,
		Occurred:      r.now(),
	}
	if err := r.repo.Append(ctx, event); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{
			"reservation_id": reservationID,
			"event":          eventType,
		}).Warn("append timeline event failed")
	}
}

// List возвращает историю брони.
func (r *Recorder) List(ctx context.Context, reservationID string) ([]domain.TimelineEvent, error) {
	if r == nil || r.repo == nil {
		return nil, nil
	}
	return r.repo.List(ctx, reservationID)
}
