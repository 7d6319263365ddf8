package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// roomRepositoryInMemory хранит комнаты в памяти.
type roomRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Room
}

// NewRoomRepository возвращает in-memory репозиторий комнат для локальной разработки и тестов.
func NewRoomRepository() domain.RoomRepository {
	return &roomRepositoryInMemory{
		items: make(map[string]domain.Room),
	}
}

// Create сохраняет комнату, если ID и код ещё не заняты.
func (r *roomRepositoryInMemory) Create(_ context.Context, room domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[room.ID]; exists {
		return domain.ErrRoomCodeTaken
	}
	for _, existing := range r.items {
		if strings.EqualFold(existing.Code, room.Code) {
			return domain.ErrRoomCodeTaken
		}
	}
	r.items[room.ID] = cloneRoom(room)
	return nil
}

// Get возвращает комнату или ErrRoomNotFound.
func (r *roomRepositoryInMemory) Get(_ context.Context, id string) (domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.items[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

// List возвращает комнаты по фильтру, дешёвые первыми.
func (r *roomRepositoryInMemory) List(_ context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Room, 0, len(r.items))
	for _, room := range r.items {
		if filter.Match(room) {
			result = append(result, cloneRoom(room))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PriceMinor != result[j].PriceMinor {
			return result[i].PriceMinor < result[j].PriceMinor
		}
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// ListByCode возвращает все комнаты в порядке кода.
func (r *roomRepositoryInMemory) ListByCode(_ context.Context) ([]domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Room, 0, len(r.items))
	for _, room := range r.items {
		result = append(result, cloneRoom(room))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// Update перезаписывает комнату; код должен остаться уникальным.
func (r *roomRepositoryInMemory) Update(_ context.Context, room domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[room.ID]; !ok {
		return domain.ErrRoomNotFound
	}
	for id, existing := range r.items {
		if id != room.ID && strings.EqualFold(existing.Code, room.Code) {
			return domain.ErrRoomCodeTaken
		}
	}
	r.items[room.ID] = cloneRoom(room)
	return nil
}

// Delete удаляет комнату.
func (r *roomRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(r.items, id)
	return nil
}

func cloneRoom(src domain.Room) domain.Room {
	dst := src
	if src.Amenities != nil {
		dst.Amenities = make(map[string]bool, len(src.Amenities))
		for k, v := range src.Amenities {
			dst.Amenities[k] = v
		}
	}
	return dst
}

var _ domain.RoomRepository = (*roomRepositoryInMemory)(nil)
