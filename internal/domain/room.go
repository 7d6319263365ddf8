package domain

import (
	"sort"
	"time"
)

// RoomStatus описывает эксплуатационное состояние комнаты.
type RoomStatus string

const (
	// Комната доступна для бронирования.
	RoomStatusAvailable RoomStatus = "available"
	// Комната занята гостями.
	RoomStatusOccupied RoomStatus = "occupied"
	// Комната на ремонте.
	RoomStatusMaintenance RoomStatus = "maintenance"
	// Комната на уборке.
	RoomStatusCleaning RoomStatus = "cleaning"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusAvailable, RoomStatusOccupied, RoomStatusMaintenance, RoomStatusCleaning:
		return true
	default:
		return false
	}
}

// Room — номер отеля. Бронирование не меняет его статус.
type Room struct {
	ID          string
	Code        string
	Type        string
	Description string
	// Цена за ночь в минимальных денежных единицах.
	PriceMinor int64
	Capacity   int32
	Status     RoomStatus
	// Флаги удобств (wifi, tv, minibar ...).
	Amenities map[string]bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет обязательные поля комнаты.
func (r *Room) Validate() []error {
	var errs []error

	if r.Code == "" {
		errs = append(errs, ErrRoomCodeRequired)
	}
	if r.PriceMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if r.Capacity <= 0 {
		errs = append(errs, ErrGuestsInvalid)
	}
	if !r.Status.Valid() {
		errs = append(errs, ErrRoomStatusInvalid)
	}

	return errs
}

// HasAmenities сообщает, что у комнаты включены все перечисленные удобства.
func (r *Room) HasAmenities(names ...string) bool {
	for _, name := range names {
		if !r.Amenities[name] {
			return false
		}
	}
	return true
}

// AmenityList возвращает включённые удобства в алфавитном порядке.
func (r *Room) AmenityList() []string {
	out := make([]string, 0, len(r.Amenities))
	for name, on := range r.Amenities {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RoomFilter задаёт условия поиска комнат.
type RoomFilter struct {
	Type          string
	MinPriceMinor int64
	MaxPriceMinor int64
	Amenities     []string
	// OnlyAvailable ограничивает выборку комнатами в статусе available.
	OnlyAvailable bool
}

// Match проверяет комнату на соответствие фильтру (без учёта дат).
func (f RoomFilter) Match(r Room) bool {
	if f.OnlyAvailable && r.Status != RoomStatusAvailable {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.MinPriceMinor > 0 && r.PriceMinor < f.MinPriceMinor {
		return false
	}
	if f.MaxPriceMinor > 0 && r.PriceMinor > f.MaxPriceMinor {
		return false
	}
	return r.HasAmenities(f.Amenities...)
}
