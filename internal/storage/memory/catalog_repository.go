package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// discountRepositoryInMemory хранит скидки в памяти.
type discountRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Discount
}

// NewDiscountRepository создаёт in-memory хранилище скидок.
func NewDiscountRepository() domain.DiscountRepository {
	return &discountRepositoryInMemory{items: make(map[string]domain.Discount)}
}

func (r *discountRepositoryInMemory) Create(_ context.Context, d domain.Discount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[d.ID] = d
	return nil
}

func (r *discountRepositoryInMemory) Get(_ context.Context, id string) (domain.Discount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.items[id]
	if !ok {
		return domain.Discount{}, domain.ErrDiscountNotFound
	}
	return d, nil
}

func (r *discountRepositoryInMemory) ListActive(_ context.Context) ([]domain.Discount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Discount, 0, len(r.items))
	for _, d := range r.items {
		if d.Active {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// serviceRepositoryInMemory хранит каталог дополнительных услуг.
type serviceRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Service
}

// NewServiceRepository создаёт in-memory каталог услуг.
func NewServiceRepository() domain.ServiceRepository {
	return &serviceRepositoryInMemory{items: make(map[string]domain.Service)}
}

func (r *serviceRepositoryInMemory) Create(_ context.Context, s domain.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[s.ID] = s
	return nil
}

func (r *serviceRepositoryInMemory) Get(_ context.Context, id string) (domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok || !s.Active {
		return domain.Service{}, domain.ErrServiceNotFound
	}
	return s, nil
}

func (r *serviceRepositoryInMemory) ListActive(_ context.Context) ([]domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Service, 0, len(r.items))
	for _, s := range r.items {
		if s.Active {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

var (
	_ domain.DiscountRepository = (*discountRepositoryInMemory)(nil)
	_ domain.ServiceRepository  = (*serviceRepositoryInMemory)(nil)
)
