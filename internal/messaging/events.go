// Package messaging описывает формат событий, которые сервис отправляет в брокеры.
package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// Топики и очереди.
const (
	TopicReservationEvents = "hotel.reservation.events"
	TopicDeadLetterQueue   = "hotel.dlq"
)

// Заголовки для retry и DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// Envelope — обёртка outbox-сообщения при публикации.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, now time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   now.UTC(),
	}
}

// Key возвращает ключ партиционирования: все события одной брони идут по порядку.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// ParseEnvelope разбирает тело сообщения из брокера.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("envelope %q has no event_type", env.ID)
	}
	return env, nil
}

// ReservationConfirmed — полезная нагрузка события reservation.confirmed.
type ReservationConfirmed struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	RoomID        string    `json:"room_id"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Nights        int       `json:"nights"`
	Guests        int32     `json:"guests"`
	TotalMinor    int64     `json:"total_minor"`
	Currency      string    `json:"currency"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// Currency — валюта всех сумм сервиса.
const Currency = "PEN"

// NewReservationConfirmed собирает событие из брони.
func NewReservationConfirmed(r domain.Reservation) ReservationConfirmed {
	return ReservationConfirmed{
		ReservationID: r.ID,
		UserID:        r.UserID,
		RoomID:        r.RoomID,
		CheckIn:       r.CheckIn.Format(time.DateOnly),
		CheckOut:      r.CheckOut.Format(time.DateOnly),
		Nights:        r.Nights(),
		Guests:        r.Guests,
		TotalMinor:    r.TotalMinor,
		Currency:      Currency,
		ConfirmedAt:   r.UpdatedAt,
	}
}

// DecodeReservationConfirmed достаёт событие подтверждения из конверта.
func DecodeReservationConfirmed(env Envelope) (ReservationConfirmed, error) {
	if env.EventType != domain.EventReservationConfirmed {
		return ReservationConfirmed{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var event ReservationConfirmed
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		return ReservationConfirmed{}, fmt.Errorf("unmarshal reservation.confirmed: %w", err)
	}
	if event.ReservationID == "" {
		return ReservationConfirmed{}, fmt.Errorf("reservation.confirmed without reservation_id")
	}
	return event, nil
}
