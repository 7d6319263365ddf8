package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// IneligiblePolicy определяет реакцию на найденную, но неприменимую скидку.
type IneligiblePolicy string

const (
	// Скидка молча не применяется (поведение по умолчанию).
	IneligibleIgnore IneligiblePolicy = "ignore"
	// Запрос отклоняется с ErrDiscountIneligible.
	IneligibleReject IneligiblePolicy = "reject"
)

// Valid проверяет значение политики.
func (p IneligiblePolicy) Valid() bool {
	return p == IneligibleIgnore || p == IneligibleReject
}

// ReservationCounter считает прежние брони пользователя (для скидки на первую бронь).
type ReservationCounter interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

// ServiceCharge описывает строку дополнительной услуги с посчитанным подытогом.
type ServiceCharge struct {
	ServiceID     string
	Quantity      int32
	SubtotalMinor int64
}

// QuoteInput содержит данные для расчёта стоимости брони.
type QuoteInput struct {
	UserID       string
	NightlyMinor int64
	CheckIn      time.Time
	CheckOut     time.Time
	Services     []ServiceCharge
	DiscountID   string
}

// Quote — результат расчёта.
type Quote struct {
	Nights        int
	RoomMinor     int64
	ServicesMinor int64
	SubtotalMinor int64
	DiscountMinor int64
	TotalMinor    int64
	// Discount задан, только если скидка реально применена.
	Discount *domain.Discount
}

// Option настраивает Calculator.
type Option func(*Calculator)

// WithPolicy задаёт политику для неприменимых скидок.
func WithPolicy(policy IneligiblePolicy) Option {
	return func(c *Calculator) {
		if policy.Valid() {
			c.policy = policy
		}
	}
}

// WithLocation задаёт часовой пояс отеля для «сегодня» и подсчёта ночей.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger задаёт logger калькулятора.
func WithLogger(logger *log.Entry) Option {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Calculator считает стоимость брони и применяет не более одной скидки.
type Calculator struct {
	discounts    domain.DiscountRepository
	reservations ReservationCounter
	policy       IneligiblePolicy
	loc          *time.Location
	now          func() time.Time
	logger       *log.Entry
}

// NewCalculator создаёт калькулятор.
func NewCalculator(discounts domain.DiscountRepository, reservations ReservationCounter, opts ...Option) *Calculator {
	c := &Calculator{
		discounts:    discounts,
		reservations: reservations,
		policy:       IneligibleIgnore,
		loc:          time.UTC,
		now:          time.Now,
		logger:       log.WithField("component", "pricing"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location возвращает часовой пояс отеля.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Today возвращает текущую календарную дату отеля.
func (c *Calculator) Today() time.Time {
	return domain.CivilDate(c.now(), c.loc)
}

// Quote считает ночи, подытог, скидку и итог.
func (c *Calculator) Quote(ctx context.Context, in QuoteInput) (Quote, error) {
	nights := domain.NightsIn(in.CheckIn, in.CheckOut, c.loc)
	if nights <= 0 {
		return Quote{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, domain.ErrDatesInvalid)
	}
	if in.NightlyMinor < 0 {
		return Quote{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, domain.ErrAmountNegative)
	}

	q := Quote{
		Nights:    nights,
		RoomMinor: int64(nights) * in.NightlyMinor,
	}
	for _, s := range in.Services {
		q.ServicesMinor += s.SubtotalMinor
	}
	q.SubtotalMinor = q.RoomMinor + q.ServicesMinor
	q.TotalMinor = q.SubtotalMinor

	if in.DiscountID == "" {
		return q, nil
	}

	discount, err := c.discounts.Get(ctx, in.DiscountID)
	if err != nil {
		if errors.Is(err, domain.ErrDiscountNotFound) {
			return Quote{}, domain.ErrDiscountNotFound
		}
		return Quote{}, fmt.Errorf("load discount: %w", err)
	}

	prior := 0
	if discount.FirstReservationOnly() {
		prior, err = c.reservations.CountByUser(ctx, in.UserID)
		if err != nil {
			return Quote{}, fmt.Errorf("count reservations: %w", err)
		}
	}

	if !discount.Eligible(nights, c.Today(), prior) {
		if c.policy == IneligibleReject {
			return Quote{}, domain.ErrDiscountIneligible
		}
		c.logger.WithFields(log.Fields{
			"discount_id": discount.ID,
			"code":        discount.Code,
			"nights":      nights,
		}).Info("discount not applicable, ignored")
		return q, nil
	}

	q.DiscountMinor, q.TotalMinor = discount.Apply(q.SubtotalMinor)
	q.Discount = &discount
	return q, nil
}

// ApplicableDiscounts возвращает скидки, доступные пользователю при заданном числе ночей.
func (c *Calculator) ApplicableDiscounts(ctx context.Context, userID string, nights int) ([]domain.Discount, bool, error) {
	if nights <= 0 {
		return nil, false, fmt.Errorf("%w: nights must be positive", domain.ErrInvalidInput)
	}

	prior, err := c.reservations.CountByUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("count reservations: %w", err)
	}
	active, err := c.discounts.ListActive(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list discounts: %w", err)
	}

	today := c.Today()
	result := make([]domain.Discount, 0, len(active))
	for _, d := range active {
		if d.Eligible(nights, today, prior) {
			result = append(result, d)
		}
	}
	return result, prior == 0, nil
}

// ApplyDiscount считает скидку для произвольного подытога без проверки применимости.
func (c *Calculator) ApplyDiscount(ctx context.Context, discountID string, subtotalMinor int64) (domain.Discount, int64, int64, error) {
	if discountID == "" || subtotalMinor <= 0 {
		return domain.Discount{}, 0, 0, fmt.Errorf("%w: discount_id and subtotal are required", domain.ErrInvalidInput)
	}
	discount, err := c.discounts.Get(ctx, discountID)
	if err != nil {
		return domain.Discount{}, 0, 0, err
	}
	amount, total := discount.Apply(subtotalMinor)
	return discount, amount, total, nil
}
