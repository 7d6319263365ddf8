// Package httpapi реализует REST API отеля поверх chi: комнаты, брони, платежи,
// каталог услуг и скидок, панель персонала.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/idempotency"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/payment"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/pricing"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/reservation"
	"github.com/vladislavdragonenkov/hotel-booking/internal/service/rooms"
)

const defaultRequestTimeout = 30 * time.Second

// Deps перечисляет сервисы, которые обслуживает API.
type Deps struct {
	Rooms        *rooms.Catalog
	Reservations *reservation.Manager
	Payments     *payment.Manager
	Pricing      *pricing.Calculator
	Services     domain.ServiceRepository
	// Idempotency необязателен: без него Idempotency-Key игнорируется.
	Idempotency *idempotency.Guard
	Auth        *Authenticator
	Logger      *log.Entry
	// RequestTimeout ограничивает обработку одного запроса.
	RequestTimeout time.Duration
}

type api struct {
	Deps
	logger *log.Entry
}

// NewRouter собирает http.Handler с маршрутами /api/v1.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	a := &api{Deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", a.searchRooms)
			r.Get("/check-availability", a.checkAvailability)
			r.Get("/{id}", a.getRoom)
		})
		r.Get("/services", a.listServices)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Middleware)

			r.Get("/services/reservation/{id}", a.reservationServices)

			r.Route("/discounts", func(r chi.Router) {
				r.Get("/applicable", a.applicableDiscounts)
				r.Post("/calculate", a.calculateDiscount)
			})

			r.Route("/reservations", func(r chi.Router) {
				r.Post("/", a.createReservation)
				r.Get("/", a.listMyReservations)
				r.Get("/{id}", a.getReservation)
				r.Patch("/{id}", a.cancelReservation)
				r.Post("/{id}/cancel", a.cancelReservation)
				r.Get("/{id}/discounts", a.reservationDiscounts)
				r.Get("/{id}/timeline", a.reservationTimeline)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/initiate", a.initiatePayment)
				r.Post("/simulate/{method}/{payment_id}", a.simulatePayment)
				r.Get("/history/{reservation_id}", a.paymentHistory)
				r.Get("/check-eligibility/{reservation_id}", a.paymentEligibility)
				r.Get("/{id}", a.getPayment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireStaff)
				r.Get("/stats", a.dashboard)
				r.Get("/reservations", a.listAllReservations)
				r.Post("/reservations/{id}/complete", a.completeReservation)
				r.Get("/rooms", a.listRoomsByCode)
				r.Post("/rooms", a.createRoom)
				r.Put("/rooms/{id}", a.updateRoom)
				r.Patch("/rooms/{id}/status", a.updateRoomStatus)
				r.Delete("/rooms/{id}", a.deleteRoom)
			})
		})
	})

	return r
}

// actor возвращает пользователя запроса; маршруты без Middleware получают пустого актора.
func actor(r *http.Request) domain.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				entry.Warn("request failed")
			default:
				entry.Debug("request served")
			}
		})
	}
}
