package httpapi

import (
	"net/http"
	"strings"
)

func (a *api) listServices(w http.ResponseWriter, r *http.Request) {
	list, err := a.Services.ListActive(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]serviceView, 0, len(list))
	for _, s := range list {
		out = append(out, serviceView{ID: s.ID, Name: s.Name, Description: s.Description, PriceMinor: s.PriceMinor, Icon: s.Icon})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

type applicableDiscountsResponse struct {
	Nights           int64          `json:"nights"`
	FirstReservation bool           `json:"first_reservation"`
	Discounts        []discountView `json:"discounts"`
}

// applicableDiscounts отдаёт скидки, подходящие пользователю для ?nights ночей.
func (a *api) applicableDiscounts(w http.ResponseWriter, r *http.Request) {
	nights, err := queryInt64(r, "nights")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	list, first, err := a.Pricing.ApplicableDiscounts(r.Context(), actor(r).UserID, int(nights))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]discountView, 0, len(list))
	for _, d := range list {
		out = append(out, toDiscountView(d))
	}
	writeJSON(w, http.StatusOK, applicableDiscountsResponse{Nights: nights, FirstReservation: first, Discounts: out})
}

type calculateDiscountRequest struct {
	DiscountID    string `json:"discount_id"`
	SubtotalMinor int64  `json:"subtotal_minor"`
}

type calculateDiscountResponse struct {
	Discount      discountView `json:"discount"`
	SubtotalMinor int64        `json:"subtotal_minor"`
	DiscountMinor int64        `json:"discount_minor"`
	TotalMinor    int64        `json:"total_minor"`
	Currency      string       `json:"currency"`
}

func (a *api) calculateDiscount(w http.ResponseWriter, r *http.Request) {
	var req calculateDiscountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	d, amount, total, err := a.Pricing.ApplyDiscount(r.Context(), strings.TrimSpace(req.DiscountID), req.SubtotalMinor)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, calculateDiscountResponse{
		Discount:      toDiscountView(d),
		SubtotalMinor: req.SubtotalMinor,
		DiscountMinor: amount,
		TotalMinor:    total,
		Currency:      currency,
	})
}
