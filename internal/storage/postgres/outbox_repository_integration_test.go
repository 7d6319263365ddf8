package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

func TestOutboxRepository_Lifecycle(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOutboxRepository(store)

	msg, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateReservation,
		AggregateID:   "res-1",
		EventType:     domain.EventReservationConfirmed,
		Payload:       []byte(`{"reservation_id":"res-1"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.JSONEq(t, `{"reservation_id":"res-1"}`, string(pending[0].Payload))

	require.NoError(t, repo.MarkSent(ctx, msg.ID))
	assert.ErrorIs(t, repo.MarkFailed(ctx, msg.ID), domain.ErrOutboxPublish)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingCount)
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	_, err := repo.CreateProcessing(ctx, "reservations:k1", "hash-a", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "reservations:k1", "hash-a", time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(ctx, "reservations:k1", "hash-b", time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "reservations:k1", []byte(`{"id":"r"}`), 201))
	rec, err := repo.Get(ctx, "reservations:k1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, rec.Status)
	assert.Equal(t, 201, rec.HTTPStatus)

	assert.ErrorIs(t, repo.MarkFailed(ctx, "unknown", nil, 500), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_ExpiredKeyReused(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewIdempotencyRepository(store)

	_, err := repo.CreateProcessing(ctx, "k-expired", "hash-a", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = repo.Get(ctx, "k-expired")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	rec, err := repo.CreateProcessing(ctx, "k-expired", "hash-b", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "hash-b", rec.RequestHash)

	_, err = repo.CreateProcessing(ctx, "k-old", "hash", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	deleted, err := repo.DeleteExpired(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestTimelineRepository_AppendAndList(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	ctx := context.Background()
	room := seedRoom(t, store, "401")
	res := pendingReservation(room.ID, "2030-08-01", "2030-08-02", time.Now().UTC().Add(time.Hour))
	require.NoError(t, NewReservationRepository(store).Create(ctx, res, nil))

	repo := NewTimelineRepository(store)
	base := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{ReservationID: res.ID, Type: domain.TimelineReservationCreated, Occurred: base}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{ReservationID: res.ID, Type: domain.TimelineReservationConfirmed, Occurred: base.Add(time.Second)}))

	events, err := repo.List(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.TimelineReservationCreated, events[0].Type)
	assert.Equal(t, domain.TimelineReservationConfirmed, events[1].Type)
}
