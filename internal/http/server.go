// Package httpapi exposes the marketplace over HTTP. Every response uses
// the same JSON envelope: {"success": bool, ...payload} on success and
// {"success": false, "message": ...} on failure.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/chainride/internal/dispatch"
	"github.com/example/chainride/internal/events"
	"github.com/example/chainride/internal/identity"
	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/payments"
	"github.com/example/chainride/internal/ratings"
	"github.com/example/chainride/internal/rides"
	"github.com/example/chainride/internal/ridestate"
)

// ActivityReader serves the projected per-ride activity feed.
type ActivityReader interface {
	Recent(ctx context.Context, rideID uint64, limit int) ([]json.RawMessage, error)
}

// Deps wires the server. Activity may be nil when no feed is projected.
type Deps struct {
	Ledger    interface{ Ready() error }
	Registrar *identity.Registrar
	Profiles  *identity.Profiles
	Rides     *rides.Service
	State     *ridestate.Aggregator
	Payments  *payments.Reconciler
	Ratings   *ratings.Aggregator
	Watchers  *dispatch.WSRegistry
	Activity  ActivityReader
	Events    events.Publisher
	Origins   []string
	Logger    *slog.Logger
}

type Server struct {
	Deps
	mux     *mux.Router
	handler http.Handler
	logger  *slog.Logger
}

func NewServer(d Deps) *Server {
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	s := &Server{Deps: d, mux: mux.NewRouter(), logger: d.Logger.With("component", "http")}
	s.mux.Use(alice.New(s.recoverMiddleware, s.requestIDMiddleware, s.observabilityMiddleware).Then)
	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(s.mux)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	api := s.mux.PathPrefix("/api").Subrouter()

	api.HandleFunc("/driver-register", s.handleDriverRegister).Methods(http.MethodPost)
	api.HandleFunc("/drivers", s.handleDrivers).Methods(http.MethodGet)
	api.HandleFunc("/driver/update", s.handleDriverUpdate).Methods(http.MethodPut)
	api.HandleFunc("/driver/{driverId:[0-9]+}", s.handleDriver).Methods(http.MethodGet)
	api.HandleFunc("/driver-by-account/{account}", s.handleDriverByAccount).Methods(http.MethodGet)
	api.HandleFunc("/client-register", s.handleClientRegister).Methods(http.MethodPost)
	api.HandleFunc("/client/update", s.handleClientUpdate).Methods(http.MethodPut)
	api.HandleFunc("/client/{clientId:[0-9]+}", s.handleClient).Methods(http.MethodGet)
	api.HandleFunc("/client/{clientId:[0-9]+}/ride-requests", s.handleClientRequests).Methods(http.MethodGet)
	api.HandleFunc("/client-by-account/{account}", s.handleClientByAccount).Methods(http.MethodGet)

	api.HandleFunc("/rides", s.handleCreateRide).Methods(http.MethodPost)
	api.HandleFunc("/rides", s.handleActiveRides).Methods(http.MethodGet)
	api.HandleFunc("/rides/driver/{driverId:[0-9]+}", s.handleDriverRides).Methods(http.MethodGet)
	api.HandleFunc("/rides/client/{clientId:[0-9]+}", s.handleClientRides).Methods(http.MethodGet)
	api.HandleFunc("/client-rides", s.handleClientRidesByAccount).Methods(http.MethodGet)
	api.HandleFunc("/client-rides/{account}", s.handleClientRidesByAccount).Methods(http.MethodGet)
	api.HandleFunc("/rides/{rideId:[0-9]+}", s.handleRide).Methods(http.MethodGet)
	api.HandleFunc("/rides/{rideId:[0-9]+}/requests", s.handleRideRequests).Methods(http.MethodGet)
	api.HandleFunc("/rides/{rideId:[0-9]+}/passenger-count", s.handlePassengerCount).Methods(http.MethodGet)
	api.HandleFunc("/rides/{rideId:[0-9]+}/request-status/{clientId:[0-9]+}", s.handleRequestStatus).Methods(http.MethodGet)
	api.HandleFunc("/rides/{rideId:[0-9]+}/activity", s.handleActivity).Methods(http.MethodGet)

	api.HandleFunc("/rides/{rideId:[0-9]+}/request", s.handleRequestRide).Methods(http.MethodPost)
	api.HandleFunc("/ride-request", s.handleRequestRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/accept-request/{requestId:[0-9]+}", s.handleAcceptRequest).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/reject-request/{requestId:[0-9]+}", s.handleRejectRequest).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/cancel-request", s.handleCancelRequest).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/start", s.handleStartRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/complete", s.handleCompleteRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/complete-passenger/{passengerId:[0-9]+}", s.handleCompletePassenger).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/cancel", s.handleCancelRide).Methods(http.MethodPost)

	api.HandleFunc("/rides/{rideId:[0-9]+}/confirm", s.handleConfirmPayment).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/verify-payment/{account}", s.handleVerifyPayment).Methods(http.MethodGet)
	api.HandleFunc("/rides/{rideId:[0-9]+}/payment-status/{clientId:[0-9]+}", s.handlePaymentStatus).Methods(http.MethodGet)

	api.HandleFunc("/rides/{rideId:[0-9]+}/rate", s.handleRate).Methods(http.MethodPost)
	api.HandleFunc("/rides/{rideId:[0-9]+}/ratings", s.handleRideRatings).Methods(http.MethodGet)
	api.HandleFunc("/drivers/{driverId:[0-9]+}/rating", s.handleDriverRating).Methods(http.MethodGet)
	api.HandleFunc("/drivers/{driverId:[0-9]+}/ratings", s.handleDriverRatings).Methods(http.MethodGet)

	api.HandleFunc("/driver-stats/{driverId:[0-9]+}", s.handleDriverStats).Methods(http.MethodGet)
	api.HandleFunc("/nearby-drivers", s.handleNearbyDrivers).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)

	s.mux.HandleFunc("/ws/rides/{rideId:[0-9]+}", s.handleWatchRide)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "connected"
	if s.Ledger == nil || s.Ledger.Ready() != nil {
		state = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ledger": state})
}

// envelope is a success payload; respond adds the success flag.
type envelope map[string]any

func respond(w http.ResponseWriter, status int, body envelope) {
	if body == nil {
		body = envelope{}
	}
	body["success"] = true
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	var ce *ledger.CallError
	if errors.As(err, &ce) && ce.Reverted {
		msg = ledger.RevertReason(err)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "status", status, "error", err, "request_id", requestIDFromContext(r.Context()))
	} else {
		s.logger.Debug("request rejected", "route", routeTemplate(r), "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var ce *ledger.CallError
	switch {
	case errors.Is(err, models.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotAPassenger):
		return http.StatusForbidden
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrRideNotCompleted),
		errors.Is(err, models.ErrAlreadyPaid),
		errors.Is(err, models.ErrAlreadyRegistered):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		if ce.Reverted {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrPaymentFailed):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, models.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Validationf("invalid request body: %v", err)
	}
	return nil
}

// publish emits a lifecycle event. Failures are logged and never fail the
// request; the ledger mutation already happened.
func (s *Server) publish(r *http.Request, e events.Event) {
	if err := s.Events.Publish(context.WithoutCancel(r.Context()), e); err != nil {
		s.logger.Warn("event publish failed", "type", e.Type, "ride_id", e.RideID, "error", err)
	}
}

func idAttr(id uint64) string { return strconv.FormatUint(id, 10) }
