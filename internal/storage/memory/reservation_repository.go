package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// ReservationRepository хранит брони в памяти и заодно отвечает на вопросы о доступности.
// Проверка пересечений и вставка выполняются под одной блокировкой, это аналог
// exclusion constraint в Postgres.
type ReservationRepository struct {
	mu        sync.RWMutex
	items     map[string]domain.Reservation
	lines     map[string][]domain.ReservationServiceLine
	discounts map[string][]domain.ReservationDiscount
	now       func() time.Time
}

// NewReservationRepository создаёт in-memory хранилище броней.
func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		items:     make(map[string]domain.Reservation),
		lines:     make(map[string][]domain.ReservationServiceLine),
		discounts: make(map[string][]domain.ReservationDiscount),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock подменяет источник времени (для тестов истечения удержаний).
func (r *ReservationRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// IsAvailable реализует AvailabilityOracle.
func (r *ReservationRepository) IsAvailable(_ context.Context, roomID string, checkIn, checkOut time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.availableLocked(roomID, checkIn, checkOut, r.now()), nil
}

func (r *ReservationRepository) availableLocked(roomID string, checkIn, checkOut, now time.Time) bool {
	for _, existing := range r.items {
		if existing.RoomID != roomID || !existing.Holds(now) {
			continue
		}
		if existing.Overlaps(checkIn, checkOut) {
			return false
		}
	}
	return true
}

// Create сохраняет бронь и её услуги, если комната всё ещё свободна.
func (r *ReservationRepository) Create(_ context.Context, res domain.Reservation, lines []domain.ReservationServiceLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[res.ID]; exists {
		return domain.ErrReservationVersionConflict
	}
	now := r.now()
	if res.Holds(now) {
		if !r.availableLocked(res.RoomID, res.CheckIn, res.CheckOut, now) {
			return domain.ErrRoomUnavailable
		}
		r.releaseExpiredLocked(res.RoomID, res.CheckIn, res.CheckOut, now)
	}

	r.items[res.ID] = cloneReservation(res)
	if len(lines) > 0 {
		stored := make([]domain.ReservationServiceLine, 0, len(lines))
		for _, line := range lines {
			if line.ID == "" {
				line.ID = uuid.NewString()
			}
			line.ReservationID = res.ID
			stored = append(stored, line)
		}
		r.lines[res.ID] = stored
	}
	return nil
}

// releaseExpiredLocked отменяет истёкшие удержания комнаты, пересекающие даты новой брони.
// Поздняя оплата такого удержания уже не сможет его подтвердить.
func (r *ReservationRepository) releaseExpiredLocked(roomID string, checkIn, checkOut, now time.Time) {
	for id, existing := range r.items {
		if existing.RoomID != roomID || existing.Status != domain.ReservationStatusPendingPayment {
			continue
		}
		if !existing.HoldExpired(now) || !existing.Overlaps(checkIn, checkOut) {
			continue
		}
		if err := existing.Transition(domain.ReservationStatusCancelled, now); err != nil {
			continue
		}
		existing.Version++
		r.items[id] = existing
	}
}

// Get возвращает бронь или ErrReservationNotFound.
func (r *ReservationRepository) Get(_ context.Context, id string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.items[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return cloneReservation(res), nil
}

// ListByUser возвращает брони пользователя, ограничивая выборку limit (если >0).
func (r *ReservationRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, res := range r.items {
		if res.UserID == userID {
			result = append(result, cloneReservation(res))
		}
	}
	return newestFirst(result, limit), nil
}

// List возвращает брони по фильтру.
func (r *ReservationRepository) List(_ context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0, len(r.items))
	for _, res := range r.items {
		if filter.Match(res) {
			result = append(result, cloneReservation(res))
		}
	}
	return newestFirst(result, filter.Limit), nil
}

// CountByUser считает брони пользователя в любом статусе.
func (r *ReservationRepository) CountByUser(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, res := range r.items {
		if res.UserID == userID {
			count++
		}
	}
	return count, nil
}

// Save перезаписывает бронь, проверяя версию (optimistic locking).
func (r *ReservationRepository) Save(_ context.Context, res domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[res.ID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if current.Version != res.Version {
		return domain.ErrReservationVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	res.Version++
	r.items[res.ID] = cloneReservation(res)
	return nil
}

// ListExpiredHolds возвращает истёкшие удержания, самые старые первыми.
func (r *ReservationRepository) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, res := range r.items {
		if res.Status == domain.ReservationStatusPendingPayment && res.HoldExpired(now) {
			result = append(result, cloneReservation(res))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LockedUntil.Before(*result[j].LockedUntil) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Services возвращает услуги брони.
func (r *ReservationRepository) Services(_ context.Context, reservationID string) ([]domain.ReservationServiceLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lines := r.lines[reservationID]
	result := make([]domain.ReservationServiceLine, len(lines))
	copy(result, lines)
	return result, nil
}

// AddDiscount сохраняет применённую скидку.
func (r *ReservationRepository) AddDiscount(_ context.Context, d domain.ReservationDiscount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[d.ReservationID]; !ok {
		return domain.ErrReservationNotFound
	}
	r.discounts[d.ReservationID] = append(r.discounts[d.ReservationID], d)
	return nil
}

// Discounts возвращает скидки брони.
func (r *ReservationRepository) Discounts(_ context.Context, reservationID string) ([]domain.ReservationDiscount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.discounts[reservationID]
	result := make([]domain.ReservationDiscount, len(items))
	copy(result, items)
	return result, nil
}

// Stats считает агрегаты для панели администратора.
func (r *ReservationRepository) Stats(_ context.Context, day time.Time) (domain.ReservationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	day = domain.CivilDate(day, nil)
	var stats domain.ReservationStats
	for _, res := range r.items {
		stats.TotalReservations++
		switch res.Status {
		case domain.ReservationStatusPendingPayment:
			stats.PendingPayments++
		case domain.ReservationStatusConfirmed:
			if domain.CivilDate(res.UpdatedAt, nil).Equal(day) {
				stats.ConfirmedToday++
			}
		}
	}
	return stats, nil
}

func newestFirst(items []domain.Reservation, limit int) []domain.Reservation {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func cloneReservation(src domain.Reservation) domain.Reservation {
	dst := src
	if src.LockedUntil != nil {
		lock := *src.LockedUntil
		dst.LockedUntil = &lock
	}
	dst.GuestDetails = append([]byte(nil), src.GuestDetails...)
	return dst
}

var (
	_ domain.ReservationRepository = (*ReservationRepository)(nil)
	_ domain.AvailabilityOracle    = (*ReservationRepository)(nil)
)
