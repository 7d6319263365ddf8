package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// LogPublisher пишет события в лог. Используется, когда брокер не настроен.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт LogPublisher.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

// Publish логирует сообщение и всегда завершается успешно.
func (p *LogPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"aggregate_id": event.AggregateID,
		"event_type":   event.EventType,
		"payload":      string(event.Payload),
	}).Info("outbox event")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
