package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// openStoreForIntegrationTest поднимает схему и очищает таблицы.
// Без HOTEL_POSTGRES_TEST_DSN тест пропускается.
func openStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.MigrateUp(ctx, 0))

	_, err := store.DB().ExecContext(ctx, `
		TRUNCATE TABLE
			idempotency_keys,
			outbox_messages,
			timeline_events,
			payments,
			reservation_discounts,
			reservation_services,
			reservations,
			rooms
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)

	return store
}

func openRawStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("HOTEL_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("HOTEL_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, PoolConfig{MaxOpenConns: 10})
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedRoom(t *testing.T, store *Store, code string) domain.Room {
	t.Helper()

	room := domain.Room{
		ID:         uuid.NewString(),
		Code:       code,
		Type:       "double",
		PriceMinor: 10000,
		Capacity:   2,
		Status:     domain.RoomStatusAvailable,
		Amenities:  map[string]bool{"wifi": true},
	}
	require.NoError(t, NewRoomRepository(store).Create(context.Background(), room))
	return room
}

func pendingReservation(roomID, checkIn, checkOut string, lockedUntil time.Time) domain.Reservation {
	in, _ := time.Parse(time.DateOnly, checkIn)
	out, _ := time.Parse(time.DateOnly, checkOut)
	now := time.Now().UTC()
	return domain.Reservation{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		RoomID:      roomID,
		CheckIn:     in,
		CheckOut:    out,
		Guests:      2,
		TotalMinor:  20000,
		Status:      domain.ReservationStatusPendingPayment,
		LockedUntil: &lockedUntil,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
