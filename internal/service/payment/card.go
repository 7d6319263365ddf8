package payment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// CardDetails — данные карты из запроса. В метаданные платежа попадают
// только последние четыре цифры, бренд и держатель.
type CardDetails struct {
	Number string
	Holder string
	Expiry string
	CVV    string
}

func (c CardDetails) digits() string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, c.Number)
}

// Validate проверяет формат номера и наличие держателя.
func (c CardDetails) Validate() error {
	number := c.digits()
	if len(number) < 13 || len(number) > 19 {
		return fmt.Errorf("%w: card number must have 13-19 digits", domain.ErrInvalidInput)
	}
	for _, r := range number {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("%w: card number must contain digits only", domain.ErrInvalidInput)
		}
	}
	if strings.TrimSpace(c.Holder) == "" {
		return fmt.Errorf("%w: card holder is required", domain.ErrInvalidInput)
	}
	return nil
}

// Brand определяет платёжную систему по первым цифрам номера.
func (c CardDetails) Brand() string {
	number := c.digits()
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case strings.HasPrefix(number, "5"), strings.HasPrefix(number, "2"):
		return "mastercard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "amex"
	default:
		return "unknown"
	}
}

// metadata возвращает безопасный отпечаток карты.
func (c CardDetails) metadata() map[string]any {
	number := c.digits()
	last4 := number
	if len(number) > 4 {
		last4 = number[len(number)-4:]
	}
	return map[string]any{
		domain.MetaCardLast4:  last4,
		domain.MetaCardBrand:  c.Brand(),
		domain.MetaCardHolder: strings.TrimSpace(c.Holder),
	}
}
