package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/events"
	"github.com/example/chainride/internal/models"
)

type createRideBody struct {
	DriverMetaAccount string          `json:"driverMetaAccount"`
	StartLocation     string          `json:"startLocation"`
	Destination       string          `json:"destination"`
	AvailableSeats    json.Number     `json:"availableSeats"`
	Price             decimal.Decimal `json:"price"`
	DepartureTime     json.RawMessage `json:"departureTime"`
}

// parseDeparture accepts RFC 3339 strings and unix seconds. Absent means now.
func parseDeparture(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var secs int64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return time.Time{}, models.Validationf("invalid departureTime")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, models.Validationf("invalid departureTime %q", s)
	}
	return t, nil
}

func parseCount(n json.Number, name string) (uint64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, models.Validationf("invalid %s %q", name, n)
	}
	return v, nil
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var body createRideBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	seats, err := parseCount(body.AvailableSeats, "availableSeats")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	departure, err := parseDeparture(body.DepartureTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.Rides.Create(r.Context(), models.RideDraft{
		DriverAccount:  body.DriverMetaAccount,
		StartLocation:  body.StartLocation,
		Destination:    body.Destination,
		AvailableSeats: seats,
		Price:          body.Price,
		DepartureTime:  departure,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, events.New(events.RideCreated, id, body.DriverMetaAccount, map[string]string{"price": body.Price.String()}))
	respond(w, http.StatusCreated, envelope{"rideId": id})
}

func (s *Server) handleActiveRides(w http.ResponseWriter, r *http.Request) {
	list, err := s.Rides.Active(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"rides": list})
}

func (s *Server) handleDriverRides(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driverId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.Rides.ForDriver(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"rides": list})
}

func (s *Server) handleClientRides(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "clientId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.Rides.ForClient(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"rides": list})
}

func (s *Server) handleClientRidesByAccount(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	if account == "" {
		account = r.URL.Query().Get("metaAccount")
	}
	if err := requireField(account, "metaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	clientID, list, err := s.Rides.ForClientAccount(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"clientId": clientID, "rides": list})
}

// handleRide returns the aggregated view; ?clientId= adds that client's
// membership and payment state.
func (s *Server) handleRide(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clientID, err := optionalClient(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.State.Aggregate(r.Context(), rideID, clientID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"ride": res.View, "degraded": res.Degraded()})
}

func optionalClient(r *http.Request) (*uint64, error) {
	raw := r.URL.Query().Get("clientId")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, models.Validationf("invalid clientId %q", raw)
	}
	return &id, nil
}

func (s *Server) handleRideRequests(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reqs, err := s.Rides.Requests(r.Context(), rideID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"requests": reqs})
}

func (s *Server) handlePassengerCount(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.Rides.PassengerCount(r.Context(), rideID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"rideId": rideID, "passengerCount": n})
}

func (s *Server) handleRequestStatus(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clientID, err := pathID(r, "clientId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.Rides.RequestStatus(r.Context(), rideID, clientID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !state.HasRequest {
		s.fail(w, r, models.ErrRequestNotFound)
		return
	}
	respond(w, http.StatusOK, envelope{
		"status":      state.RequestStatus,
		"requestId":   state.RequestID,
		"isPassenger": state.IsPassenger,
	})
}

type requestRideBody struct {
	RideID            json.Number `json:"rideId"`
	ClientMetaAccount string      `json:"clientMetaAccount"`
	MetaAccount       string      `json:"metaAccount"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var body requestRideBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	rideID, err := pathID(r, "rideId")
	if mux.Vars(r)["rideId"] == "" {
		rideID, err = parseCount(body.RideID, "rideId")
		if err == nil && rideID == 0 {
			err = models.Validationf("rideId is required")
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	account := body.ClientMetaAccount
	if account == "" {
		account = body.MetaAccount
	}
	if err := requireField(account, "clientMetaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.Rides.Request(r.Context(), rideID, account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if receipt.ClientRegistered {
		s.publish(r, events.New(events.ClientRegistered, 0, account, map[string]string{"clientId": idAttr(receipt.ClientID)}))
	}
	s.publish(r, events.New(events.RideRequested, rideID, account, map[string]string{"requestId": idAttr(receipt.RequestID)}))
	respond(w, http.StatusCreated, envelope{
		"requestId":        receipt.RequestID,
		"clientId":         receipt.ClientID,
		"clientRegistered": receipt.ClientRegistered,
	})
}

type accountBody struct {
	DriverMetaAccount string `json:"driverMetaAccount"`
	ClientMetaAccount string `json:"clientMetaAccount"`
}

// transition decodes the acting account, forwards one lifecycle call and
// publishes its event.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, client bool, eventType string, attrs map[string]string,
	fn func(ctx context.Context, account string, rideID uint64) error) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body accountBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	account, field := body.DriverMetaAccount, "driverMetaAccount"
	if client {
		account, field = body.ClientMetaAccount, "clientMetaAccount"
	}
	if err := requireField(account, field); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), account, rideID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, events.New(eventType, rideID, account, attrs))
	respond(w, http.StatusOK, envelope{"rideId": rideID})
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	reqID, err := pathID(r, "requestId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.transition(w, r, false, events.RequestAccepted, map[string]string{"requestId": idAttr(reqID)},
		func(ctx context.Context, account string, rideID uint64) error {
			return s.Rides.Accept(ctx, account, rideID, reqID)
		})
}

func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	reqID, err := pathID(r, "requestId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.transition(w, r, false, events.RequestRejected, map[string]string{"requestId": idAttr(reqID)},
		func(ctx context.Context, account string, rideID uint64) error {
			return s.Rides.Reject(ctx, account, rideID, reqID)
		})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, true, events.RequestCanceled, nil, s.Rides.CancelRequest)
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, false, events.RideStarted, nil, s.Rides.Start)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, false, events.RideCompleted, nil, s.Rides.Complete)
}

func (s *Server) handleCompletePassenger(w http.ResponseWriter, r *http.Request) {
	passengerID, err := pathID(r, "passengerId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.transition(w, r, false, events.PassengerDropped, map[string]string{"passengerId": idAttr(passengerID)},
		func(ctx context.Context, account string, rideID uint64) error {
			return s.Rides.CompleteForPassenger(ctx, account, rideID, passengerID)
		})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, false, events.RideCanceled, nil, s.Rides.Cancel)
}

func (s *Server) handleDriverStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driverId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.Rides.DriverStats(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"stats": stats})
}

func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		s.fail(w, r, models.Validationf("latitude is required"))
		return
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		s.fail(w, r, models.Validationf("longitude is required"))
		return
	}
	radius := uint64(5000)
	if raw := q.Get("radius"); raw != "" {
		if radius, err = strconv.ParseUint(raw, 10, 64); err != nil {
			s.fail(w, r, models.Validationf("invalid radius %q", raw))
			return
		}
	}
	drivers, err := s.Rides.NearbyDrivers(r.Context(), lat, lon, radius)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"drivers": drivers})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.Rides.Accounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"accounts": accounts})
}
