package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/storage/memory"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func hold(id, roomID, in, out string, now time.Time) domain.Reservation {
	lock := now.Add(15 * time.Minute)
	return domain.Reservation{
		ID:          id,
		UserID:      "user-1",
		RoomID:      roomID,
		CheckIn:     day(in),
		CheckOut:    day(out),
		Guests:      1,
		Status:      domain.ReservationStatusPendingPayment,
		LockedUntil: &lock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestReservationRepository_RejectsOverlappingHold(t *testing.T) {
	repo := memory.NewReservationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, hold("res-1", "room-1", "2025-01-10", "2025-01-13", now), nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := repo.Create(ctx, hold("res-2", "room-1", "2025-01-12", "2025-01-14", now), nil)
	if !errors.Is(err, domain.ErrRoomUnavailable) {
		t.Fatalf("expected ErrRoomUnavailable, got %v", err)
	}

	// Выезд в день заезда другой брони пересечением не считается.
	if err := repo.Create(ctx, hold("res-3", "room-1", "2025-01-13", "2025-01-15", now), nil); err != nil {
		t.Fatalf("adjacent stay must be allowed: %v", err)
	}
	if err := repo.Create(ctx, hold("res-4", "room-2", "2025-01-10", "2025-01-13", now), nil); err != nil {
		t.Fatalf("other room must be allowed: %v", err)
	}
}

func TestReservationRepository_ConcurrentHoldsOnlyOneWins(t *testing.T) {
	repo := memory.NewReservationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := hold(string(rune('a'+i)), "room-1", "2025-02-01", "2025-02-03", now)
			if err := repo.Create(ctx, res, nil); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one hold to win, got %d", success)
	}
}

func TestReservationRepository_ExpiredHoldFreesRoom(t *testing.T) {
	repo := memory.NewReservationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, hold("res-1", "room-1", "2025-01-10", "2025-01-13", now), nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	later := now.Add(20 * time.Minute)
	repo.SetClock(func() time.Time { return later })

	ok, err := repo.IsAvailable(ctx, "room-1", day("2025-01-11"), day("2025-01-12"))
	if err != nil || !ok {
		t.Fatalf("expired hold must not block the room: ok=%v err=%v", ok, err)
	}

	expired, err := repo.ListExpiredHolds(ctx, later, 10)
	if err != nil {
		t.Fatalf("list expired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "res-1" {
		t.Fatalf("unexpected expired holds: %+v", expired)
	}
}

func TestReservationRepository_NewHoldCancelsOverlappingExpiredHold(t *testing.T) {
	repo := memory.NewReservationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, res := range []domain.Reservation{
		hold("stale", "room-1", "2025-01-10", "2025-01-13", now),
		hold("elsewhere", "room-1", "2025-01-20", "2025-01-22", now),
	} {
		if err := repo.Create(ctx, res, nil); err != nil {
			t.Fatalf("create %s failed: %v", res.ID, err)
		}
	}

	later := now.Add(20 * time.Minute)
	repo.SetClock(func() time.Time { return later })
	if err := repo.Create(ctx, hold("fresh", "room-1", "2025-01-11", "2025-01-12", later), nil); err != nil {
		t.Fatalf("hold over expired one must succeed: %v", err)
	}

	stale, err := repo.Get(ctx, "stale")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stale.Status != domain.ReservationStatusCancelled || stale.LockedUntil != nil || stale.Version != 1 {
		t.Fatalf("stale hold must be cancelled: status=%s locked=%v version=%d", stale.Status, stale.LockedUntil, stale.Version)
	}

	elsewhere, err := repo.Get(ctx, "elsewhere")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if elsewhere.Status != domain.ReservationStatusPendingPayment {
		t.Fatalf("non-overlapping hold must stay untouched, got %s", elsewhere.Status)
	}
}

func TestReservationRepository_SaveOptimisticLocking(t *testing.T) {
	repo := memory.NewReservationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Create(ctx, hold("res-1", "room-1", "2025-01-10", "2025-01-13", now), nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repo.Get(ctx, "res-1")
	second, _ := repo.Get(ctx, "res-1")

	_ = first.Transition(domain.ReservationStatusConfirmed, now)
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	_ = second.Transition(domain.ReservationStatusCancelled, now)
	if err := repo.Save(ctx, second); !errors.Is(err, domain.ErrReservationVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, _ := repo.Get(ctx, "res-1")
	if stored.Status != domain.ReservationStatusConfirmed || stored.Version != 1 {
		t.Fatalf("unexpected stored reservation: %+v", stored)
	}
}

func TestReservationRepository_LinesDiscountsAndStats(t *testing.T) {
	repo := memory.NewReservationRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	lines := []domain.ReservationServiceLine{{ServiceID: "svc-breakfast", Quantity: 2, SubtotalMinor: 40}}
	if err := repo.Create(ctx, hold("res-1", "room-1", "2025-01-10", "2025-01-13", now), lines); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.AddDiscount(ctx, domain.ReservationDiscount{ReservationID: "res-1", DiscountID: "d-1", AmountMinor: 30}); err != nil {
		t.Fatalf("add discount failed: %v", err)
	}
	if err := repo.AddDiscount(ctx, domain.ReservationDiscount{ReservationID: "missing"}); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}

	gotLines, _ := repo.Services(ctx, "res-1")
	if len(gotLines) != 1 || gotLines[0].ReservationID != "res-1" || gotLines[0].ID == "" {
		t.Fatalf("unexpected lines: %+v", gotLines)
	}
	gotDiscounts, _ := repo.Discounts(ctx, "res-1")
	if len(gotDiscounts) != 1 || gotDiscounts[0].AmountMinor != 30 {
		t.Fatalf("unexpected discounts: %+v", gotDiscounts)
	}

	count, _ := repo.CountByUser(ctx, "user-1")
	if count != 1 {
		t.Fatalf("expected 1 reservation for user, got %d", count)
	}

	stats, _ := repo.Stats(ctx, now)
	if stats.TotalReservations != 1 || stats.PendingPayments != 1 || stats.ConfirmedToday != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
