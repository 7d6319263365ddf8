package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

func TestRoomRepository_CodeUniqueAndFilters(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewRoomRepository(store)
	seedRoom(t, store, "301")

	dup := domain.Room{ID: uuid.NewString(), Code: "301", Type: "single", PriceMinor: 5000, Capacity: 1, Status: domain.RoomStatusAvailable}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrRoomCodeTaken)

	suite := domain.Room{ID: uuid.NewString(), Code: "302", Type: "suite", PriceMinor: 30000, Capacity: 4,
		Status: domain.RoomStatusAvailable, Amenities: map[string]bool{"wifi": true, "minibar": true}}
	require.NoError(t, repo.Create(ctx, suite))

	rooms, err := repo.List(ctx, domain.RoomFilter{Amenities: []string{"minibar"}, OnlyAvailable: true})
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "302", rooms[0].Code)

	require.NoError(t, repo.Delete(ctx, suite.ID))
	_, err = repo.Get(ctx, suite.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCatalogRepositories_Seeded(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	ctx := context.Background()

	services, err := NewServiceRepository(store).ListActive(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, services)

	discounts := NewDiscountRepository(store)
	first, err := discounts.Get(ctx, "disc-first")
	require.NoError(t, err)
	assert.Equal(t, domain.FirstReservationCode, first.Code)

	_, err = discounts.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDiscountNotFound)
	_, err = NewServiceRepository(store).Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}
