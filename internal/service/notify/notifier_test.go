package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/messaging"
	"github.com/vladislavdragonenkov/hotel-booking/internal/metrics"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/notify"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/memory"
)

type reservationMap map[string]domain.Reservation

func (m reservationMap) Get(_ context.Context, id string) (domain.Reservation, error) {
	r, ok := m[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return r, nil
}

func confirmedReservation(id string) domain.Reservation {
	return domain.Reservation{
		ID:         id,
		UserID:     "user-1",
		RoomID:     "room-1",
		CheckIn:    time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		Guests:     2,
		TotalMinor: 27000,
		Status:     domain.ReservationStatusConfirmed,
		UpdatedAt:  time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestNotifier_DispatchWritesOutbox(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	n := notify.NewNotifier(reservationMap{"res-1": confirmedReservation("res-1")}, outbox)

	require.NoError(t, n.Dispatch(ctx, "res-1"))

	pending := outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventReservationConfirmed, pending[0].EventType)
	assert.Equal(t, "res-1", pending[0].AggregateID)

	var event messaging.ReservationConfirmed
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	assert.Equal(t, 3, event.Nights)
	assert.Equal(t, int64(27000), event.TotalMinor)
	assert.Equal(t, "2025-01-10", event.CheckIn)
}

func TestNotifier_DispatchRejectsUnconfirmed(t *testing.T) {
	res := confirmedReservation("res-1")
	res.Status = domain.ReservationStatusPendingPayment
	outbox := memory.NewOutboxRepository()
	n := notify.NewNotifier(reservationMap{"res-1": res}, outbox)

	err := n.Dispatch(context.Background(), "res-1")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.Empty(t, outbox.AllPending())

	err = n.Dispatch(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestNotifier_QueueOverflowNeverBlocks(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := notify.NewNotifier(reservationMap{}, memory.NewOutboxRepository(),
		notify.WithBufferSize(1),
		notify.WithMetrics(metrics.NewBookingMetricsWithRegisterer(reg)),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.ReservationConfirmed("a")
		n.ReservationConfirmed("b")
		n.ReservationConfirmed("c")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReservationConfirmed blocked on a full queue")
	}

	count, err := testutil.GatherAndCount(reg, "hotel_confirmation_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "queued and dropped series expected")
}

func TestNotifier_RunDrainsQueue(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	n := notify.NewNotifier(reservationMap{
		"res-1": confirmedReservation("res-1"),
		"res-2": confirmedReservation("res-2"),
	}, outbox)

	n.ReservationConfirmed("res-1")
	n.ReservationConfirmed("res-2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Run(ctx)
	}()

	require.Eventually(t, func() bool { return len(outbox.AllPending()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
}
