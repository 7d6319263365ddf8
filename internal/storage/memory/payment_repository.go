package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// paymentRepositoryInMemory — in-memory реализация PaymentRepository.
type paymentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Payment
}

// NewPaymentRepository создаёт in-memory хранилище платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{items: make(map[string]domain.Payment)}
}

// Create сохраняет новый платёж; transaction ref должен быть уникальным.
func (r *paymentRepositoryInMemory) Create(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[p.ID]; exists {
		return domain.ErrStatusConflict
	}
	for _, existing := range r.items {
		if existing.TransactionRef == p.TransactionRef {
			return domain.ErrStatusConflict
		}
	}
	r.items[p.ID] = clonePayment(p)
	return nil
}

// Get возвращает платёж или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) Get(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

// FindRecentPending ищет самый свежий pending платёж брони не старше since.
func (r *paymentRepositoryInMemory) FindRecentPending(_ context.Context, reservationID string, since time.Time) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found domain.Payment
		ok    bool
	)
	for _, p := range r.items {
		if p.ReservationID != reservationID || p.Status != domain.PaymentStatusPending {
			continue
		}
		if p.CreatedAt.Before(since) {
			continue
		}
		if !ok || p.CreatedAt.After(found.CreatedAt) {
			found, ok = p, true
		}
	}
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(found), nil
}

// ListByReservation возвращает историю попыток, новые первыми.
func (r *paymentRepositoryInMemory) ListByReservation(_ context.Context, reservationID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, p := range r.items {
		if p.ReservationID == reservationID {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// HasSuccess сообщает, есть ли у брони успешный платёж.
func (r *paymentRepositoryInMemory) HasSuccess(_ context.Context, reservationID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hasSuccessLocked(reservationID, ""), nil
}

func (r *paymentRepositoryInMemory) hasSuccessLocked(reservationID, exceptID string) bool {
	for id, p := range r.items {
		if id != exceptID && p.ReservationID == reservationID && p.Status == domain.PaymentStatusSuccess {
			return true
		}
	}
	return false
}

// Transition меняет статус по принципу compare-and-swap.
func (r *paymentRepositoryInMemory) Transition(_ context.Context, id string, upd domain.PaymentUpdate) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if p.Status != upd.From {
		return clonePayment(p), domain.ErrStatusConflict
	}
	if upd.To == domain.PaymentStatusSuccess && r.hasSuccessLocked(p.ReservationID, id) {
		return clonePayment(p), domain.ErrAlreadyCompleted
	}

	p.Status = upd.To
	p.Metadata = domain.MergeMetadata(p.Metadata, upd.Metadata)
	p.UpdatedAt = upd.At
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	r.items[id] = p
	return clonePayment(p), nil
}

func clonePayment(src domain.Payment) domain.Payment {
	dst := src
	if src.Metadata != nil {
		dst.Metadata = domain.MergeMetadata(src.Metadata, nil)
	}
	return dst
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
