package httpapi

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/pricing"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/rooms"
)

// currency — все суммы в минимальных единицах перуанского соля.
const currency = "PEN"

type roomView struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	PriceMinor  int64           `json:"price_per_night_minor"`
	Currency    string          `json:"currency"`
	Capacity    int32           `json:"capacity"`
	Status      string          `json:"status"`
	Amenities   map[string]bool `json:"amenities"`
}

func toRoomView(r domain.Room) roomView {
	amenities := r.Amenities
	if amenities == nil {
		amenities = map[string]bool{}
	}
	return roomView{
		ID:          r.ID,
		Code:        r.Code,
		Type:        r.Type,
		Description: r.Description,
		PriceMinor:  r.PriceMinor,
		Currency:    currency,
		Capacity:    r.Capacity,
		Status:      string(r.Status),
		Amenities:   amenities,
	}
}

func toRoomViews(list []domain.Room) []roomView {
	out := make([]roomView, 0, len(list))
	for _, r := range list {
		out = append(out, toRoomView(r))
	}
	return out
}

type reservationView struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	RoomID       string          `json:"room_id"`
	CheckIn      string          `json:"check_in"`
	CheckOut     string          `json:"check_out"`
	Nights       int             `json:"nights"`
	Guests       int32           `json:"guests"`
	GuestDetails json.RawMessage `json:"guest_details,omitempty"`
	TotalMinor   int64           `json:"total_minor"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	LockedUntil  *time.Time      `json:"locked_until,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toReservationView(r domain.Reservation) reservationView {
	v := reservationView{
		ID:          r.ID,
		UserID:      r.UserID,
		RoomID:      r.RoomID,
		CheckIn:     r.CheckIn.Format(time.DateOnly),
		CheckOut:    r.CheckOut.Format(time.DateOnly),
		Nights:      r.Nights(),
		Guests:      r.Guests,
		TotalMinor:  r.TotalMinor,
		Currency:    currency,
		Status:      string(r.Status),
		LockedUntil: r.LockedUntil,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if json.Valid(r.GuestDetails) {
		v.GuestDetails = json.RawMessage(r.GuestDetails)
	}
	return v
}

func toReservationViews(list []domain.Reservation) []reservationView {
	out := make([]reservationView, 0, len(list))
	for _, r := range list {
		out = append(out, toReservationView(r))
	}
	return out
}

type quoteView struct {
	Nights        int    `json:"nights"`
	RoomMinor     int64  `json:"room_minor"`
	ServicesMinor int64  `json:"services_minor"`
	SubtotalMinor int64  `json:"subtotal_minor"`
	DiscountMinor int64  `json:"discount_minor"`
	TotalMinor    int64  `json:"total_minor"`
	DiscountID    string `json:"discount_id,omitempty"`
}

func toQuoteView(q pricing.Quote) quoteView {
	v := quoteView{
		Nights:        q.Nights,
		RoomMinor:     q.RoomMinor,
		ServicesMinor: q.ServicesMinor,
		SubtotalMinor: q.SubtotalMinor,
		DiscountMinor: q.DiscountMinor,
		TotalMinor:    q.TotalMinor,
	}
	if q.Discount != nil {
		v.DiscountID = q.Discount.ID
	}
	return v
}

type serviceLineView struct {
	ServiceID     string `json:"service_id"`
	Quantity      int32  `json:"quantity"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

func toServiceLineViews(lines []domain.ReservationServiceLine) []serviceLineView {
	out := make([]serviceLineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, serviceLineView{ServiceID: l.ServiceID, Quantity: l.Quantity, SubtotalMinor: l.SubtotalMinor})
	}
	return out
}

type paymentView struct {
	ID             string         `json:"id"`
	ReservationID  string         `json:"reservation_id"`
	Method         string         `json:"method"`
	AmountMinor    int64          `json:"amount_minor"`
	Currency       string         `json:"currency"`
	Status         string         `json:"status"`
	TransactionRef string         `json:"transaction_ref"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func toPaymentView(p domain.Payment) paymentView {
	return paymentView{
		ID:             p.ID,
		ReservationID:  p.ReservationID,
		Method:         string(p.Method),
		AmountMinor:    p.AmountMinor,
		Currency:       currency,
		Status:         string(p.Status),
		TransactionRef: p.TransactionRef,
		Metadata:       p.Metadata,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type serviceView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceMinor  int64  `json:"price_minor"`
	Icon        string `json:"icon,omitempty"`
}

type discountView struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Value      int64      `json:"value"`
	MinNights  int        `json:"min_nights"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

func toDiscountView(d domain.Discount) discountView {
	return discountView{
		ID:         d.ID,
		Code:       d.Code,
		Type:       string(d.Type),
		Value:      d.Value,
		MinNights:  d.MinNights,
		ValidUntil: d.ValidUntil,
	}
}

type appliedDiscountView struct {
	DiscountID  string    `json:"discount_id"`
	AmountMinor int64     `json:"amount_minor"`
	CreatedAt   time.Time `json:"created_at"`
}

type timelineView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type dashboardView struct {
	TotalReservations int `json:"total_reservations"`
	PendingPayments   int `json:"pending_payments"`
	ConfirmedToday    int `json:"confirmed_today"`
	TotalRooms        int `json:"total_rooms"`
	AvailableRooms    int `json:"available_rooms"`
}

func toDashboardView(d rooms.Dashboard) dashboardView {
	return dashboardView{
		TotalReservations: d.TotalReservations,
		PendingPayments:   d.PendingPayments,
		ConfirmedToday:    d.ConfirmedToday,
		TotalRooms:        d.TotalRooms,
		AvailableRooms:    d.AvailableRooms,
	}
}
