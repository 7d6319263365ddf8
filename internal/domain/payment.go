package domain

import "time"

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// Платёж инициирован, ждём результат провайдера.
	PaymentStatusPending PaymentStatus = "pending"
	// Провайдер подтвердил списание.
	PaymentStatusSuccess PaymentStatus = "success"
	// Провайдер отклонил платёж или платёж откатан компенсацией.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// PaymentMethod задаёт способ оплаты.
type PaymentMethod string

const (
	// Оплата через кошелёк Yape.
	PaymentMethodYape PaymentMethod = "yape"
	// Оплата банковской картой.
	PaymentMethodCard PaymentMethod = "card"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodYape || m == PaymentMethodCard
}

// Ключи метаданных платежа.
const (
	MetaUserID               = "user_id"
	MetaInitiatedAt          = "initiated_at"
	MetaCardLast4            = "card_last4"
	MetaCardBrand            = "card_brand"
	MetaCardHolder           = "card_holder"
	MetaPhone                = "phone"
	MetaRoomCode             = "room_code"
	MetaRoomType             = "room_type"
	MetaAuthorizationCode    = "authorization_code"
	MetaCompletedAt          = "completed_at"
	MetaProcessingDurationMs = "processing_duration_ms"
	MetaErrorMessage         = "error_message"
	MetaFailedAt             = "failed_at"
	MetaRollbackReason       = "rollback_reason"
	MetaRolledBackAt         = "rolled_back_at"
)

// Payment — попытка оплаты брони. Платежи не удаляются и хранятся для аудита.
type Payment struct {
	ID             string
	ReservationID  string
	Method         PaymentMethod
	AmountMinor    int64
	Status         PaymentStatus
	TransactionRef string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	switch {
	case p.ReservationID == "":
		errs = append(errs, ErrInvalidInput)
	case !p.Method.Valid():
		errs = append(errs, ErrPaymentMethodInvalid)
	case p.AmountMinor < 0:
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}

// PaymentUpdate описывает переход платежа из одного статуса в другой.
// Metadata сливается с уже сохранёнными метаданными.
type PaymentUpdate struct {
	From     PaymentStatus
	To       PaymentStatus
	Metadata map[string]any
	At       time.Time
}

// MergeMetadata возвращает копию base, дополненную значениями patch.
func MergeMetadata(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
