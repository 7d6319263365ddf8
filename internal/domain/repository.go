package domain

import (
	"context"
	"time"
)

// RoomRepository описывает требования к хранилищу комнат.
type RoomRepository interface {
	// Create сохраняет комнату; при занятом коде возвращает ErrRoomCodeTaken.
	Create(ctx context.Context, room Room) error
	// Get возвращает комнату по идентификатору или ErrRoomNotFound.
	Get(ctx context.Context, id string) (Room, error)
	// List возвращает комнаты по фильтру, отсортированные по цене за ночь.
	List(ctx context.Context, filter RoomFilter) ([]Room, error)
	// ListByCode возвращает все комнаты, отсортированные по коду.
	ListByCode(ctx context.Context) ([]Room, error)
	// Update перезаписывает поля комнаты.
	Update(ctx context.Context, room Room) error
	// Delete удаляет комнату.
	Delete(ctx context.Context, id string) error
}

// AvailabilityOracle отвечает, свободна ли комната на диапазон дат.
// Учитывает подтверждённые брони и неистёкшие удержания.
type AvailabilityOracle interface {
	IsAvailable(ctx context.Context, roomID string, checkIn, checkOut time.Time) (bool, error)
}

// ReservationStats содержит агрегаты для панели администратора.
type ReservationStats struct {
	TotalReservations int
	PendingPayments   int
	ConfirmedToday    int
}

// ReservationRepository описывает требования к хранилищу броней.
type ReservationRepository interface {
	// Create сохраняет бронь вместе с услугами. При пересечении с активной бронью
	// той же комнаты возвращает ErrRoomUnavailable.
	Create(ctx context.Context, r Reservation, lines []ReservationServiceLine) error
	// Get возвращает бронь или ErrReservationNotFound.
	Get(ctx context.Context, id string) (Reservation, error)
	// ListByUser возвращает брони пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]Reservation, error)
	// List возвращает брони по фильтру, новые первыми.
	List(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	// CountByUser считает все брони пользователя.
	CountByUser(ctx context.Context, userID string) (int, error)
	// Save применяет изменения с учётом optimistic locking по Version.
	Save(ctx context.Context, r Reservation) error
	// ListExpiredHolds возвращает pending_payment брони с LockedUntil раньше now.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	// Services возвращает услуги брони.
	Services(ctx context.Context, reservationID string) ([]ReservationServiceLine, error)
	// AddDiscount сохраняет применённую скидку.
	AddDiscount(ctx context.Context, d ReservationDiscount) error
	// Discounts возвращает скидки брони.
	Discounts(ctx context.Context, reservationID string) ([]ReservationDiscount, error)
	// Stats считает агрегаты на календарную дату day.
	Stats(ctx context.Context, day time.Time) (ReservationStats, error)
}

// PaymentRepository описывает требования к хранилищу платежей.
type PaymentRepository interface {
	// Create сохраняет новый платёж.
	Create(ctx context.Context, p Payment) error
	// Get возвращает платёж или ErrPaymentNotFound.
	Get(ctx context.Context, id string) (Payment, error)
	// FindRecentPending ищет самый свежий pending платёж брони, созданный не раньше since.
	// Если такого нет, возвращает ErrPaymentNotFound.
	FindRecentPending(ctx context.Context, reservationID string, since time.Time) (Payment, error)
	// ListByReservation возвращает все попытки оплаты брони, новые первыми.
	ListByReservation(ctx context.Context, reservationID string) ([]Payment, error)
	// HasSuccess сообщает, есть ли у брони успешный платёж.
	HasSuccess(ctx context.Context, reservationID string) (bool, error)
	// Transition атомарно меняет статус, только если текущий равен upd.From.
	// Возвращает ErrStatusConflict, если статус уже другой, и ErrAlreadyCompleted,
	// если у брони уже есть другой успешный платёж.
	Transition(ctx context.Context, id string, upd PaymentUpdate) (Payment, error)
}

// DiscountRepository описывает требования к хранилищу скидок.
type DiscountRepository interface {
	Create(ctx context.Context, d Discount) error
	// Get возвращает скидку или ErrDiscountNotFound.
	Get(ctx context.Context, id string) (Discount, error)
	// ListActive возвращает активные скидки.
	ListActive(ctx context.Context) ([]Discount, error)
}

// ServiceRepository описывает каталог дополнительных услуг.
type ServiceRepository interface {
	Create(ctx context.Context, s Service) error
	// Get возвращает услугу или ErrServiceNotFound.
	Get(ctx context.Context, id string) (Service, error)
	// ListActive возвращает активные услуги, отсортированные по имени.
	ListActive(ctx context.Context) ([]Service, error)
}
