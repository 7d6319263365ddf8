package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/idempotency"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/reservation"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultListLimit = 50
	maxListLimit     = 200
)

type createReservationRequest struct {
	RoomID       string          `json:"room_id"`
	CheckIn      string          `json:"check_in"`
	CheckOut     string          `json:"check_out"`
	Guests       int32           `json:"guests"`
	GuestDetails json.RawMessage `json:"guest_details"`
	Services     []struct {
		ServiceID string `json:"service_id"`
		Quantity  int32  `json:"quantity"`
	} `json:"services"`
	DiscountID string `json:"discount_id"`
}

func (req createReservationRequest) input(userID string) (reservation.CreateInput, error) {
	checkIn, err := domain.ParseDate(req.CheckIn)
	if err != nil {
		return reservation.CreateInput{}, err
	}
	checkOut, err := domain.ParseDate(req.CheckOut)
	if err != nil {
		return reservation.CreateInput{}, err
	}

	in := reservation.CreateInput{
		UserID:       userID,
		RoomID:       strings.TrimSpace(req.RoomID),
		CheckIn:      checkIn,
		CheckOut:     checkOut,
		Guests:       req.Guests,
		GuestDetails: []byte(req.GuestDetails),
		DiscountID:   strings.TrimSpace(req.DiscountID),
	}
	for _, s := range req.Services {
		in.Services = append(in.Services, reservation.ServiceRequest{ServiceID: s.ServiceID, Quantity: s.Quantity})
	}
	return in, nil
}

type createReservationResponse struct {
	Reservation reservationView   `json:"reservation"`
	Room        roomView          `json:"room"`
	Quote       quoteView         `json:"quote"`
	Services    []serviceLineView `json:"services"`
}

// createReservation выполняет создание не более одного раза на Idempotency-Key пользователя.
func (a *api) createReservation(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	who := actor(r)
	run := func(ctx context.Context) idempotency.Response {
		return a.doCreateReservation(ctx, who, body)
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" || a.Idempotency == nil {
		writeStored(w, run(r.Context()))
		return
	}

	resp, err := a.Idempotency.Execute(r.Context(), "reservations:"+who.UserID, key, body, run)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if resp.Replayed {
		w.Header().Set(replayedHeader, "true")
	}
	writeStored(w, resp)
}

func (a *api) doCreateReservation(ctx context.Context, who domain.Actor, body []byte) idempotency.Response {
	var req createReservationRequest
	if err := decodeBody(body, &req); err != nil {
		return a.errorResponse(err)
	}
	in, err := req.input(who.UserID)
	if err != nil {
		return a.errorResponse(err)
	}

	res, err := a.Reservations.Create(ctx, in)
	if err != nil {
		return a.errorResponse(err)
	}
	return idempotency.Response{
		Status: http.StatusCreated,
		Body: encodeJSON(createReservationResponse{
			Reservation: toReservationView(res.Reservation),
			Room:        toRoomView(res.Room),
			Quote:       toQuoteView(res.Quote),
			Services:    toServiceLineViews(res.Services),
		}),
	}
}

func (a *api) errorResponse(err error) idempotency.Response {
	status, code, known := classify(err)
	message := err.Error()
	if !known {
		a.logger.WithError(err).Error("unhandled request error")
		message = "internal error"
	}
	return idempotency.Response{
		Status: status,
		Body:   encodeJSON(errorBody{Error: errorDetail{Code: code, Message: message}}),
	}
}

func writeStored(w http.ResponseWriter, resp idempotency.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// listMyReservations отдаёт брони текущего пользователя; персонал может указать user_id.
func (a *api) listMyReservations(w http.ResponseWriter, r *http.Request) {
	who := actor(r)
	userID := who.UserID
	if requested := strings.TrimSpace(r.URL.Query().Get("user_id")); requested != "" && requested != userID {
		if !who.IsStaff() {
			writeError(w, a.logger, domain.ErrForbidden)
			return
		}
		userID = requested
	}

	list, err := a.Reservations.ListByUser(r.Context(), userID, listLimit(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": toReservationViews(list), "count": len(list)})
}

func (a *api) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := a.Reservations.Get(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationView(res))
}

func (a *api) cancelReservation(w http.ResponseWriter, r *http.Request) {
	res, err := a.Reservations.Cancel(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationView(res))
}

func (a *api) completeReservation(w http.ResponseWriter, r *http.Request) {
	res, err := a.Reservations.Complete(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationView(res))
}

func (a *api) reservationServices(w http.ResponseWriter, r *http.Request) {
	lines, err := a.Reservations.Services(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": toServiceLineViews(lines)})
}

func (a *api) reservationDiscounts(w http.ResponseWriter, r *http.Request) {
	applied, err := a.Reservations.Discounts(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]appliedDiscountView, 0, len(applied))
	for _, d := range applied {
		out = append(out, appliedDiscountView{DiscountID: d.DiscountID, AmountMinor: d.AmountMinor, CreatedAt: d.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"discounts": out})
}

func (a *api) reservationTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := a.Reservations.Timeline(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]timelineView, 0, len(events))
	for _, e := range events {
		out = append(out, timelineView{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *api) listAllReservations(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	status := domain.ReservationStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		writeProblem(w, http.StatusBadRequest, "invalid_input", "unknown reservation status")
		return
	}

	list, err := a.Reservations.ListAll(r.Context(), actor(r), domain.ReservationFilter{
		Status: status,
		From:   from,
		To:     to,
		Limit:  listLimit(r),
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": toReservationViews(list), "count": len(list)})
}
