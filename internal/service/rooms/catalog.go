// Package rooms ведёт каталог комнат: поиск, проверку доступности и администрирование.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// StatsSource отдаёт агрегаты по броням.
type StatsSource interface {
	Stats(ctx context.Context, day time.Time) (domain.ReservationStats, error)
}

// SearchInput задаёт параметры поиска комнат. Даты задаются парой или не задаются вовсе.
type SearchInput struct {
	Filter   domain.RoomFilter
	CheckIn  time.Time
	CheckOut time.Time
}

// RoomInput содержит поля новой или изменяемой комнаты.
type RoomInput struct {
	Code        string
	Type        string
	Description string
	PriceMinor  int64
	Capacity    int32
	Status      domain.RoomStatus
	Amenities   map[string]bool
}

// Dashboard — сводка для панели персонала.
type Dashboard struct {
	domain.ReservationStats
	TotalRooms     int
	AvailableRooms int
}

// Option настраивает Catalog.
type Option func(*Catalog)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation задаёт часовой пояс отеля для «сегодня» в сводке.
func WithLocation(loc *time.Location) Option {
	return func(c *Catalog) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Catalog обслуживает чтение комнат для гостей и изменения для персонала.
type Catalog struct {
	rooms  domain.RoomRepository
	oracle domain.AvailabilityOracle
	stats  StatsSource
	now    func() time.Time
	loc    *time.Location
	logger *log.Entry
}

// NewCatalog создаёт каталог.
func NewCatalog(rooms domain.RoomRepository, oracle domain.AvailabilityOracle, stats StatsSource, opts ...Option) *Catalog {
	c := &Catalog{
		rooms:  rooms,
		oracle: oracle,
		stats:  stats,
		now:    func() time.Time { return time.Now().UTC() },
		loc:    time.UTC,
		logger: log.WithField("component", "room-catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search возвращает комнаты по фильтру; с датами оставляет только свободные на весь период.
func (c *Catalog) Search(ctx context.Context, in SearchInput) ([]domain.Room, error) {
	withDates := !in.CheckIn.IsZero() || !in.CheckOut.IsZero()
	if withDates && domain.NightsIn(in.CheckIn, in.CheckOut, c.loc) <= 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrDatesInvalid)
	}
	if in.Filter.MinPriceMinor < 0 || in.Filter.MaxPriceMinor < 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrAmountNegative)
	}

	rooms, err := c.rooms.List(ctx, in.Filter)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if !withDates {
		return rooms, nil
	}

	free := rooms[:0]
	for _, room := range rooms {
		ok, err := c.oracle.IsAvailable(ctx, room.ID, in.CheckIn, in.CheckOut)
		if err != nil {
			return nil, fmt.Errorf("check availability: %w", err)
		}
		if ok {
			free = append(free, room)
		}
	}
	return free, nil
}

// Get возвращает комнату.
func (c *Catalog) Get(ctx context.Context, id string) (domain.Room, error) {
	return c.rooms.Get(ctx, id)
}

// CheckAvailability сообщает, свободна ли комната на период.
func (c *Catalog) CheckAvailability(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error) {
	if domain.NightsIn(checkIn, checkOut, c.loc) <= 0 {
		return false, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrDatesInvalid)
	}
	if _, err := c.rooms.Get(ctx, roomID); err != nil {
		return false, err
	}
	return c.oracle.IsAvailable(ctx, roomID, checkIn, checkOut)
}

// ListByCode возвращает все комнаты по порядку кодов (для персонала).
func (c *Catalog) ListByCode(ctx context.Context, actor domain.Actor) ([]domain.Room, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	return c.rooms.ListByCode(ctx)
}

// Create добавляет комнату. По умолчанию статус available.
func (c *Catalog) Create(ctx context.Context, actor domain.Actor, in RoomInput) (domain.Room, error) {
	if !actor.IsStaff() {
		return domain.Room{}, domain.ErrForbidden
	}
	if in.Status == "" {
		in.Status = domain.RoomStatusAvailable
	}

	now := c.now()
	room := domain.Room{
		ID:          uuid.NewString(),
		Code:        strings.TrimSpace(in.Code),
		Type:        strings.TrimSpace(in.Type),
		Description: in.Description,
		PriceMinor:  in.PriceMinor,
		Capacity:    in.Capacity,
		Status:      in.Status,
		Amenities:   in.Amenities,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateRoom(room); err != nil {
		return domain.Room{}, err
	}
	if err := c.rooms.Create(ctx, room); err != nil {
		return domain.Room{}, err
	}

	c.logger.WithFields(log.Fields{"room_id": room.ID, "code": room.Code, "by": actor.UserID}).Info("room created")
	return room, nil
}

// Update перезаписывает редактируемые поля комнаты.
func (c *Catalog) Update(ctx context.Context, actor domain.Actor, id string, in RoomInput) (domain.Room, error) {
	if !actor.IsStaff() {
		return domain.Room{}, domain.ErrForbidden
	}
	room, err := c.rooms.Get(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}

	room.Code = strings.TrimSpace(in.Code)
	room.Type = strings.TrimSpace(in.Type)
	room.Description = in.Description
	room.PriceMinor = in.PriceMinor
	room.Capacity = in.Capacity
	room.Amenities = in.Amenities
	if in.Status != "" {
		room.Status = in.Status
	}
	room.UpdatedAt = c.now()

	if err := validateRoom(room); err != nil {
		return domain.Room{}, err
	}
	if err := c.rooms.Update(ctx, room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// UpdateStatus меняет эксплуатационный статус комнаты.
func (c *Catalog) UpdateStatus(ctx context.Context, actor domain.Actor, id string, status domain.RoomStatus) (domain.Room, error) {
	if !actor.IsStaff() {
		return domain.Room{}, domain.ErrForbidden
	}
	if !status.Valid() {
		return domain.Room{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, domain.ErrRoomStatusInvalid)
	}
	room, err := c.rooms.Get(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	room.Status = status
	room.UpdatedAt = c.now()
	if err := c.rooms.Update(ctx, room); err != nil {
		return domain.Room{}, err
	}

	c.logger.WithFields(log.Fields{"room_id": id, "status": status, "by": actor.UserID}).Info("room status updated")
	return room, nil
}

// Delete удаляет комнату.
func (c *Catalog) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.IsStaff() {
		return domain.ErrForbidden
	}
	if err := c.rooms.Delete(ctx, id); err != nil {
		return err
	}
	c.logger.WithFields(log.Fields{"room_id": id, "by": actor.UserID}).Info("room deleted")
	return nil
}

// Dashboard собирает сводку по броням и комнатам.
func (c *Catalog) Dashboard(ctx context.Context, actor domain.Actor) (Dashboard, error) {
	if !actor.IsStaff() {
		return Dashboard{}, domain.ErrForbidden
	}

	stats, err := c.stats.Stats(ctx, domain.CivilDate(c.now(), c.loc))
	if err != nil {
		return Dashboard{}, fmt.Errorf("reservation stats: %w", err)
	}
	rooms, err := c.rooms.ListByCode(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list rooms: %w", err)
	}

	d := Dashboard{ReservationStats: stats, TotalRooms: len(rooms)}
	for _, r := range rooms {
		if r.Status == domain.RoomStatusAvailable {
			d.AvailableRooms++
		}
	}
	return d, nil
}

func validateRoom(room domain.Room) error {
	if errs := room.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}
