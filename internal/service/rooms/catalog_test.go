package rooms_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/rooms"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/memory"
)

var (
	staff = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	guest = domain.Actor{UserID: "user-1", Role: domain.RoleUser}
	now   = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newCatalog(t *testing.T) (*rooms.Catalog, *memory.ReservationRepository) {
	t.Helper()
	ctx := context.Background()

	repo := memory.NewRoomRepository()
	require.NoError(t, repo.Create(ctx, domain.Room{
		ID: "r-101", Code: "101", Type: "double", PriceMinor: 150, Capacity: 2,
		Status: domain.RoomStatusAvailable, Amenities: map[string]bool{"wifi": true, "tv": true},
	}))
	require.NoError(t, repo.Create(ctx, domain.Room{
		ID: "r-102", Code: "102", Type: "single", PriceMinor: 90, Capacity: 1,
		Status: domain.RoomStatusAvailable, Amenities: map[string]bool{"wifi": true},
	}))
	require.NoError(t, repo.Create(ctx, domain.Room{
		ID: "r-201", Code: "201", Type: "suite", PriceMinor: 400, Capacity: 4,
		Status: domain.RoomStatusMaintenance,
	}))

	reservations := memory.NewReservationRepository()
	reservations.SetClock(func() time.Time { return now })
	return rooms.NewCatalog(repo, reservations, reservations, rooms.WithClock(func() time.Time { return now })), reservations
}

func holdRoom(t *testing.T, repo *memory.ReservationRepository, id, roomID, from, to string, status domain.ReservationStatus) {
	t.Helper()
	res := domain.Reservation{
		ID: id, UserID: "user-1", RoomID: roomID, CheckIn: day(from), CheckOut: day(to),
		Guests: 1, Status: status, CreatedAt: now, UpdatedAt: now,
	}
	if status == domain.ReservationStatusPendingPayment {
		until := now.Add(15 * time.Minute)
		res.LockedUntil = &until
	}
	require.NoError(t, repo.Create(context.Background(), res, nil))
}

func TestSearch_Filters(t *testing.T) {
	catalog, _ := newCatalog(t)
	ctx := context.Background()

	all, err := catalog.Search(ctx, rooms.SearchInput{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r-102", all[0].ID, "cheapest first")

	wifiTV, err := catalog.Search(ctx, rooms.SearchInput{Filter: domain.RoomFilter{Amenities: []string{"wifi", "tv"}}})
	require.NoError(t, err)
	require.Len(t, wifiTV, 1)
	assert.Equal(t, "r-101", wifiTV[0].ID)

	ranged, err := catalog.Search(ctx, rooms.SearchInput{Filter: domain.RoomFilter{MinPriceMinor: 100, MaxPriceMinor: 200}})
	require.NoError(t, err)
	require.Len(t, ranged, 1)

	onlyAvailable, err := catalog.Search(ctx, rooms.SearchInput{Filter: domain.RoomFilter{OnlyAvailable: true}})
	require.NoError(t, err)
	assert.Len(t, onlyAvailable, 2)
}

func TestSearch_ExcludesBookedRooms(t *testing.T) {
	catalog, reservations := newCatalog(t)
	holdRoom(t, reservations, "res-1", "r-101", "2025-01-10", "2025-01-12", domain.ReservationStatusConfirmed)

	free, err := catalog.Search(context.Background(), rooms.SearchInput{
		Filter:  domain.RoomFilter{OnlyAvailable: true},
		CheckIn: day("2025-01-11"), CheckOut: day("2025-01-13"),
	})
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, "r-102", free[0].ID)

	_, err = catalog.Search(context.Background(), rooms.SearchInput{CheckIn: day("2025-01-11")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCheckAvailability(t *testing.T) {
	catalog, reservations := newCatalog(t)
	ctx := context.Background()
	holdRoom(t, reservations, "res-1", "r-101", "2025-01-10", "2025-01-12", domain.ReservationStatusPendingPayment)

	ok, err := catalog.CheckAvailability(ctx, "r-101", day("2025-01-11"), day("2025-01-12"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = catalog.CheckAvailability(ctx, "r-101", day("2025-01-12"), day("2025-01-14"))
	require.NoError(t, err)
	assert.True(t, ok, "checkout day is free")

	_, err = catalog.CheckAvailability(ctx, "missing", day("2025-01-12"), day("2025-01-14"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestAdminRoomLifecycle(t *testing.T) {
	catalog, _ := newCatalog(t)
	ctx := context.Background()

	_, err := catalog.Create(ctx, guest, rooms.RoomInput{Code: "301", PriceMinor: 100, Capacity: 2})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = catalog.Create(ctx, staff, rooms.RoomInput{Code: "101", PriceMinor: 100, Capacity: 2})
	assert.ErrorIs(t, err, domain.ErrRoomCodeTaken)

	_, err = catalog.Create(ctx, staff, rooms.RoomInput{PriceMinor: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrRoomCodeRequired)

	room, err := catalog.Create(ctx, staff, rooms.RoomInput{Code: "301", Type: "double", PriceMinor: 120, Capacity: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusAvailable, room.Status)

	room, err = catalog.Update(ctx, staff, room.ID, rooms.RoomInput{Code: "301", Type: "double", PriceMinor: 130, Capacity: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(130), room.PriceMinor)

	_, err = catalog.UpdateStatus(ctx, staff, room.ID, "broken")
	assert.ErrorIs(t, err, domain.ErrRoomStatusInvalid)

	room, err = catalog.UpdateStatus(ctx, staff, room.ID, domain.RoomStatusCleaning)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusCleaning, room.Status)

	byCode, err := catalog.ListByCode(ctx, staff)
	require.NoError(t, err)
	require.Len(t, byCode, 4)
	assert.Equal(t, "101", byCode[0].Code)

	require.NoError(t, catalog.Delete(ctx, staff, room.ID))
	_, err = catalog.Get(ctx, room.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.ErrorIs(t, catalog.Delete(ctx, guest, "r-101"), domain.ErrForbidden)
}

func TestDashboard(t *testing.T) {
	catalog, reservations := newCatalog(t)
	ctx := context.Background()
	holdRoom(t, reservations, "res-1", "r-101", "2025-01-10", "2025-01-12", domain.ReservationStatusPendingPayment)
	holdRoom(t, reservations, "res-2", "r-102", "2025-01-10", "2025-01-12", domain.ReservationStatusConfirmed)

	_, err := catalog.Dashboard(ctx, guest)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	d, err := catalog.Dashboard(ctx, staff)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalReservations)
	assert.Equal(t, 1, d.PendingPayments)
	assert.Equal(t, 1, d.ConfirmedToday)
	assert.Equal(t, 3, d.TotalRooms)
	assert.Equal(t, 2, d.AvailableRooms)
}
