package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/payment"
)

type initiatePaymentRequest struct {
	ReservationID string `json:"reservation_id"`
	Method        string `json:"method"`
	Phone         string `json:"phone"`
	Card          *struct {
		Number string `json:"number"`
		Holder string `json:"holder"`
		Expiry string `json:"expiry"`
		CVV    string `json:"cvv"`
	} `json:"card"`
}

type initiatePaymentResponse struct {
	Payment paymentView `json:"payment"`
	Reused  bool        `json:"reused"`
}

// initiatePayment отвечает 201 на новый платёж и 200 на переиспользованный.
func (a *api) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}

	in := payment.InitiateInput{
		ReservationID: strings.TrimSpace(req.ReservationID),
		UserID:        actor(r).UserID,
		Method:        domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		Phone:         strings.TrimSpace(req.Phone),
	}
	if req.Card != nil {
		in.Card = &payment.CardDetails{
			Number: req.Card.Number,
			Holder: req.Card.Holder,
			Expiry: req.Card.Expiry,
			CVV:    req.Card.CVV,
		}
	}

	result, err := a.Payments.Initiate(r.Context(), in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, initiatePaymentResponse{Payment: toPaymentView(result.Payment), Reused: result.Reused})
}

type simulateResponse struct {
	Success           bool             `json:"success"`
	AuthorizationCode string           `json:"authorization_code,omitempty"`
	Payment           paymentView      `json:"payment"`
	Reservation       *reservationView `json:"reservation,omitempty"`
	Error             *errorDetail     `json:"error,omitempty"`
}

// simulatePayment прогоняет платёж через эмулятор провайдера; ?force=failed гарантирует отказ.
func (a *api) simulatePayment(w http.ResponseWriter, r *http.Request) {
	method := domain.PaymentMethod(chi.URLParam(r, "method"))
	if !method.Valid() {
		writeProblem(w, http.StatusBadRequest, "invalid_input", "unsupported payment method")
		return
	}
	paymentID := chi.URLParam(r, "payment_id")
	who := actor(r)

	if _, _, err := a.Payments.Status(r.Context(), paymentID, who); err != nil {
		writeError(w, a.logger, err)
		return
	}

	force := strings.EqualFold(r.URL.Query().Get("force"), "failed")
	result, outcome, err := a.Payments.Simulate(r.Context(), paymentID, method, force)
	switch {
	case err == nil:
		res := toReservationView(result.Reservation)
		writeJSON(w, http.StatusOK, simulateResponse{
			Success:           true,
			AuthorizationCode: outcome.AuthorizationCode,
			Payment:           toPaymentView(result.Payment),
			Reservation:       &res,
		})
	case errors.Is(err, domain.ErrPaymentDeclined):
		status, code, _ := classify(err)
		writeJSON(w, status, simulateResponse{
			Payment: toPaymentView(result.Payment),
			Error:   &errorDetail{Code: code, Message: outcome.ErrorMessage},
		})
	default:
		writeError(w, a.logger, err)
	}
}

type paymentStatusResponse struct {
	Payment     paymentView     `json:"payment"`
	Reservation reservationView `json:"reservation"`
}

func (a *api) getPayment(w http.ResponseWriter, r *http.Request) {
	p, res, err := a.Payments.Status(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentStatusResponse{Payment: toPaymentView(p), Reservation: toReservationView(res)})
}

func (a *api) paymentHistory(w http.ResponseWriter, r *http.Request) {
	list, err := a.Payments.History(r.Context(), chi.URLParam(r, "reservation_id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]paymentView, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

type eligibilityResponse struct {
	CanPay      bool             `json:"can_pay"`
	Reason      string           `json:"reason,omitempty"`
	Code        string           `json:"code,omitempty"`
	Reservation *reservationView `json:"reservation,omitempty"`
}

func (a *api) paymentEligibility(w http.ResponseWriter, r *http.Request) {
	who := actor(r)
	reservationID := chi.URLParam(r, "reservation_id")

	userID := who.UserID
	if who.IsStaff() {
		res, err := a.Reservations.Get(r.Context(), reservationID, who)
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		userID = res.UserID
	}

	el, err := a.Payments.Eligibility(r.Context(), reservationID, userID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	resp := eligibilityResponse{CanPay: el.CanPay}
	if el.Reason != nil {
		_, resp.Code, _ = classify(el.Reason)
		resp.Reason = el.Reason.Error()
	}
	if el.Reservation != nil {
		v := toReservationView(*el.Reservation)
		resp.Reservation = &v
	}
	writeJSON(w, http.StatusOK, resp)
}
