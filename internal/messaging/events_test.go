package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

func TestReservationConfirmedRoundTrip(t *testing.T) {
	res := domain.Reservation{
		ID:         "res-1",
		UserID:     "user-1",
		RoomID:     "room-1",
		CheckIn:    time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		Guests:     2,
		TotalMinor: 300,
		Status:     domain.ReservationStatusConfirmed,
	}
	payload, err := json.Marshal(NewReservationConfirmed(res))
	require.NoError(t, err)

	env := NewEnvelope(domain.OutboxMessage{
		ID:            "msg-1",
		AggregateType: domain.AggregateReservation,
		AggregateID:   res.ID,
		EventType:     domain.EventReservationConfirmed,
		Payload:       payload,
	}, time.Now())
	assert.Equal(t, "res-1", env.Key())

	body, err := json.Marshal(env)
	require.NoError(t, err)

	parsed, err := ParseEnvelope(body)
	require.NoError(t, err)
	event, err := DecodeReservationConfirmed(parsed)
	require.NoError(t, err)
	assert.Equal(t, 3, event.Nights)
	assert.Equal(t, "2025-01-10", event.CheckIn)
	assert.Equal(t, "PEN", event.Currency)
}

func TestParseEnvelope_Rejects(t *testing.T) {
	_, err := ParseEnvelope([]byte("{not json"))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"id":"x"}`))
	assert.Error(t, err)

	_, err = DecodeReservationConfirmed(Envelope{EventType: "reservation.cancelled"})
	assert.Error(t, err)
}
