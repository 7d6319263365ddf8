package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/rooms"
)

func (a *api) searchRooms(w http.ResponseWriter, r *http.Request) {
	minPrice, err := queryInt64(r, "min_price")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	maxPrice, err := queryInt64(r, "max_price")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	checkIn, err := queryDate(r, "check_in")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	checkOut, err := queryDate(r, "check_out")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	onlyAvailable, _ := strconv.ParseBool(r.URL.Query().Get("only_available"))

	list, err := a.Rooms.Search(r.Context(), rooms.SearchInput{
		Filter: domain.RoomFilter{
			Type:          strings.TrimSpace(r.URL.Query().Get("type")),
			MinPriceMinor: minPrice,
			MaxPriceMinor: maxPrice,
			Amenities:     queryList(r, "amenities"),
			OnlyAvailable: onlyAvailable,
		},
		CheckIn:  checkIn,
		CheckOut: checkOut,
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": toRoomViews(list), "count": len(list)})
}

func (a *api) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.Rooms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomView(room))
}

func (a *api) checkAvailability(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	checkIn, err := queryDate(r, "check_in")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	checkOut, err := queryDate(r, "check_out")
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if roomID == "" || checkIn.IsZero() || checkOut.IsZero() {
		writeProblem(w, http.StatusBadRequest, "invalid_input", "room_id, check_in and check_out are required")
		return
	}

	available, err := a.Rooms.CheckAvailability(r.Context(), roomID, checkIn, checkOut)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":   roomID,
		"check_in":  checkIn.Format(time.DateOnly),
		"check_out": checkOut.Format(time.DateOnly),
		"available": available,
	})
}

type roomRequest struct {
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	PriceMinor  int64           `json:"price_per_night_minor"`
	Capacity    int32           `json:"capacity"`
	Status      string          `json:"status"`
	Amenities   map[string]bool `json:"amenities"`
}

func (req roomRequest) input() rooms.RoomInput {
	return rooms.RoomInput{
		Code:        strings.TrimSpace(req.Code),
		Type:        strings.TrimSpace(req.Type),
		Description: req.Description,
		PriceMinor:  req.PriceMinor,
		Capacity:    req.Capacity,
		Status:      domain.RoomStatus(req.Status),
		Amenities:   req.Amenities,
	}
}

func (a *api) listRoomsByCode(w http.ResponseWriter, r *http.Request) {
	list, err := a.Rooms.ListByCode(r.Context(), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": toRoomViews(list), "count": len(list)})
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, err := a.Rooms.Create(r.Context(), actor(r), req.input())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomView(room))
}

func (a *api) updateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, err := a.Rooms.Update(r.Context(), actor(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomView(room))
}

func (a *api) updateRoomStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	room, err := a.Rooms.UpdateStatus(r.Context(), actor(r), chi.URLParam(r, "id"), domain.RoomStatus(req.Status))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomView(room))
}

func (a *api) deleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := a.Rooms.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.Rooms.Dashboard(r.Context(), actor(r))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardView(d))
}
