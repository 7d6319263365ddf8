package httpapi

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

// errorMapping связывает доменную ошибку с HTTP-статусом и стабильным кодом.
type errorMapping struct {
	err    error
	status int
	code   string
}

// Порядок важен: ошибки с обёрткой ErrInvalidInput проверяются после более точных.
var errorMappings = []errorMapping{
	{domain.ErrIdempotencyHashMismatch, http.StatusUnprocessableEntity, "idempotency_key_reused"},
	{domain.ErrIdempotencyInProgress, http.StatusConflict, "idempotency_in_progress"},
	{domain.ErrIdempotencyKeyInvalid, http.StatusBadRequest, "idempotency_key_invalid"},

	{domain.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{domain.ErrReservationNotFound, http.StatusNotFound, "reservation_not_found"},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{domain.ErrDiscountNotFound, http.StatusNotFound, "discount_not_found"},
	{domain.ErrServiceNotFound, http.StatusNotFound, "service_not_found"},

	{domain.ErrReservationNotOwned, http.StatusForbidden, "reservation_not_owned"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},

	{domain.ErrRoomUnavailable, http.StatusConflict, "room_unavailable"},
	{domain.ErrRoomCodeTaken, http.StatusConflict, "room_code_taken"},
	{domain.ErrRoomInUse, http.StatusConflict, "room_in_use"},
	{domain.ErrInvalidStatus, http.StatusConflict, "invalid_status"},
	{domain.ErrAlreadyTerminal, http.StatusConflict, "already_terminal"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
	{domain.ErrReservationExpired, http.StatusGone, "reservation_expired"},
	{domain.ErrPaymentAlreadyProcessed, http.StatusConflict, "payment_already_processed"},
	{domain.ErrReservationVersionConflict, http.StatusConflict, "version_conflict"},
	{domain.ErrLockNotAcquired, http.StatusServiceUnavailable, "busy"},

	{domain.ErrPaymentDeclined, http.StatusPaymentRequired, "payment_declined"},
	{domain.ErrDiscountIneligible, http.StatusUnprocessableEntity, "discount_ineligible"},

	{domain.ErrPaymentCreationFailed, http.StatusInternalServerError, "payment_creation_failed"},
	{domain.ErrPaymentUpdateFailed, http.StatusInternalServerError, "payment_update_failed"},
	{domain.ErrReservationUpdateFailed, http.StatusInternalServerError, "reservation_update_failed"},

	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify возвращает статус и код для ошибки. Неизвестные ошибки дают 500/internal.
func classify(err error) (int, string, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, "internal", false
}

func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	status, code, known := classify(err)
	message := err.Error()
	if !known {
		logger.WithError(err).Error("unhandled request error")
		message = "internal error"
	} else if domain.IsWriteFailure(err) {
		logger.WithError(err).Error("storage write failure")
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
