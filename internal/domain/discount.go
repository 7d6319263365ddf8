package domain

import (
	"strings"
	"time"
)

// FirstReservationCode задаёт код скидки только для первой брони пользователя.
const FirstReservationCode = "PRIMERAVEZ"

// DiscountType задаёт способ расчёта скидки.
type DiscountType string

const (
	// Процент от подытога.
	DiscountTypePercentage DiscountType = "percentage"
	// Фиксированная сумма в минимальных единицах.
	DiscountTypeFixed DiscountType = "fixed"
)

// Discount описывает скидку, которую можно применить к брони.
type Discount struct {
	ID   string
	Code string
	Type DiscountType
	// Процент для percentage или сумма в минимальных единицах для fixed.
	Value      int64
	ValidFrom  time.Time
	ValidUntil *time.Time
	MinNights  int
	Active     bool
	CreatedAt  time.Time
}

// FirstReservationOnly сообщает, что скидка только для первой брони.
func (d *Discount) FirstReservationOnly() bool {
	return strings.EqualFold(d.Code, FirstReservationCode)
}

// Eligible проверяет активность, срок действия и минимальное число ночей.
// today возвращает календарную дату (полночь UTC).
func (d *Discount) Eligible(nights int, today time.Time, priorReservations int) bool {
	if !d.Active {
		return false
	}
	if d.ValidUntil != nil && CivilDate(*d.ValidUntil, nil).Before(today) {
		return false
	}
	if nights < d.MinNights {
		return false
	}
	if d.FirstReservationOnly() && priorReservations > 0 {
		return false
	}
	return true
}

// Amount считает размер скидки для подытога. Итог ограничивается нулём в Apply.
func (d *Discount) Amount(subtotalMinor int64) int64 {
	var amount int64
	switch d.Type {
	case DiscountTypePercentage:
		amount = subtotalMinor * d.Value / 100
	default:
		amount = d.Value
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Apply возвращает размер скидки и итог, не опускающийся ниже нуля.
func (d *Discount) Apply(subtotalMinor int64) (discountMinor, totalMinor int64) {
	discountMinor = d.Amount(subtotalMinor)
	totalMinor = subtotalMinor - discountMinor
	if totalMinor < 0 {
		totalMinor = 0
	}
	return discountMinor, totalMinor
}

// Service — дополнительная услуга из каталога (завтрак, трансфер ...).
type Service struct {
	ID          string
	Name        string
	Description string
	PriceMinor  int64
	Icon        string
	Active      bool
}
