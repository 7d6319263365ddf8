package domain

import "errors"

var (
	// Ошибка некорректных или отсутствующих полей запроса.
	ErrInvalidInput = errors.New("invalid input")
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора комнаты.
	ErrRoomRequired = errors.New("room_id is required")
	// Ошибка, если дата выезда не позже даты заезда.
	ErrDatesInvalid = errors.New("check_out must be after check_in")
	// Ошибка количества гостей вне допустимого диапазона.
	ErrGuestsInvalid = errors.New("guests must be between 1 and room capacity")
	// Ошибка отрицательной суммы.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка отсутствующего кода комнаты.
	ErrRoomCodeRequired = errors.New("room code is required")
	// Ошибка неизвестного статуса комнаты.
	ErrRoomStatusInvalid = errors.New("room status is invalid")
	// Ошибка, если способ оплаты не yape и не card.
	ErrPaymentMethodInvalid = errors.New("payment method must be yape or card")

	// ErrRoomNotFound возвращается, если комната не найдена.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomUnavailable возвращается, если комната занята на выбранные даты.
	ErrRoomUnavailable = errors.New("room unavailable for the selected dates")
	// ErrRoomCodeTaken возвращается при повторном коде комнаты.
	ErrRoomCodeTaken = errors.New("room code already exists")
	// ErrRoomInUse запрещает удаление комнаты с бронями.
	ErrRoomInUse = errors.New("room has reservations")
	// ErrDiscountNotFound возвращается, если скидка не найдена.
	ErrDiscountNotFound = errors.New("discount not found")
	// ErrDiscountIneligible: скидка найдена, но к брони не применима.
	ErrDiscountIneligible = errors.New("discount not applicable")
	// ErrServiceNotFound возвращается для отсутствующей или неактивной услуги.
	ErrServiceNotFound = errors.New("service not found")

	// ErrReservationNotFound возвращается, если бронь не найдена.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationNotOwned возвращается, если бронь принадлежит другому пользователю.
	ErrReservationNotOwned = errors.New("reservation does not belong to user")
	// ErrForbidden возвращается, если действие недоступно текущему пользователю.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyTerminal возвращается для уже отменённой или завершённой брони.
	ErrAlreadyTerminal = errors.New("reservation already cancelled or completed")
	// ErrInvalidStatus возвращается, если бронь не ожидает оплаты.
	ErrInvalidStatus = errors.New("reservation is not pending payment")
	// ErrInvalidTransition сигнализирует о запрещённом переходе статуса.
	ErrInvalidTransition = errors.New("reservation status transition not allowed")
	// ErrAlreadyCompleted возвращается, если по брони уже есть успешный платёж.
	ErrAlreadyCompleted = errors.New("reservation already paid")
	// ErrReservationExpired возвращается после истечения удержания.
	ErrReservationExpired = errors.New("reservation hold expired")
	// ErrReservationVersionConflict сигнализирует о конфликте версий при сохранении брони.
	ErrReservationVersionConflict = errors.New("reservation version conflict")

	// ErrPaymentNotFound возвращается, если платёж не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyProcessed возвращается для платежа не в статусе pending (повторный callback).
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	// ErrPaymentDeclined: провайдер отклонил платёж (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// Ошибка записи нового платежа.
	ErrPaymentCreationFailed = errors.New("payment creation failed")
	// Ошибка перевода платежа в success.
	ErrPaymentUpdateFailed = errors.New("payment update failed")
	// ErrReservationUpdateFailed: бронь не подтверждена, платёж откатан компенсацией.
	ErrReservationUpdateFailed = errors.New("reservation update failed")
	// ErrStatusConflict возвращается, если проигран compare-and-swap по статусу.
	ErrStatusConflict = errors.New("status conflict")

	// Ошибка повторной регистрации ключа идемпотентности.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound возвращается, если ключ не найден или истёк.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch сигнализирует о повторе ключа с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// Ошибка пустого ключа или хэша запроса.
	ErrIdempotencyKeyInvalid = errors.New("idempotency key is invalid")
	// ErrIdempotencyInProgress возвращается, пока запрос с тем же ключом обрабатывается.
	ErrIdempotencyInProgress = errors.New("request with the same idempotency key is already processing")

	// Ошибка публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrLockNotAcquired возвращается, если блокировку по ключу взять не удалось.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrReservationVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsNotFound сообщает, что ошибка означает отсутствие сущности.
func IsNotFound(err error) bool {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrDiscountNotFound),
		errors.Is(err, ErrServiceNotFound):
		return true
	default:
		return false
	}
}

// IsEligibility сообщает, что ошибка исправима пользователем (проверка перед оплатой).
func IsEligibility(err error) bool {
	switch {
	case errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrReservationNotOwned),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrReservationExpired):
		return true
	default:
		return false
	}
}

// IsWriteFailure сообщает о проблеме хранилища, которую стоит алертить.
func IsWriteFailure(err error) bool {
	return errors.Is(err, ErrPaymentCreationFailed) ||
		errors.Is(err, ErrPaymentUpdateFailed) ||
		errors.Is(err, ErrReservationUpdateFailed)
}
