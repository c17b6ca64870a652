// Package ridestate rebuilds a ride's view from the ledger. The ledger has
// no single "is this client on this ride" query, so membership and payment
// state are derived by cross-referencing passenger and request records.
package ridestate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/observability"
)

// Payment status values.
const (
	StatusNotFound       = "not_found"
	StatusNotCompleted   = "not_completed"
	StatusNoPassengers   = "no_passengers"
	StatusNotPassenger   = "not_passenger"
	StatusPaid           = "paid"
	StatusPaymentPending = "payment_pending"
)

// Payment evidence sources.
const (
	SourceLedger = "ledger"
	SourceLocal  = "local"
)

// FallbackLookup reads local fallback payment records.
type FallbackLookup interface {
	Get(ctx context.Context, rideID, clientID uint64) (models.FallbackPayment, bool, error)
}

type PaymentStatus struct {
	Paid           bool   `json:"paid"`
	Status         string `json:"status"`
	Source         string `json:"source,omitempty"`
	TransactionRef string `json:"transactionRef,omitempty"`
}

// ClientState is the per-client derivation, present when a client id was
// supplied.
type ClientState struct {
	ClientID      uint64               `json:"clientId"`
	IsPassenger   bool                 `json:"isPassenger"`
	HasRequest    bool                 `json:"hasRequest"`
	RequestID     uint64               `json:"requestId,omitempty"`
	RequestStatus models.RequestStatus `json:"requestStatus,omitempty"`
	PaymentStatus PaymentStatus        `json:"paymentStatus"`
}

type RideView struct {
	models.Ride
	PassengerIDs []uint64             `json:"passengerIds"`
	Passengers   []models.Passenger   `json:"passengers"`
	Requests     []models.RideRequest `json:"requests"`
	Client       *ClientState         `json:"client,omitempty"`
}

// SkipError records a sub-item that could not be loaded.
type SkipError struct {
	Kind string
	ID   uint64
	Err  error
}

func (e SkipError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %d: %v", e.Kind, e.ID, e.Err)
}

func (e SkipError) Unwrap() error { return e.Err }

// Result is a view plus the sub-items skipped while building it.
type Result struct {
	View    RideView
	Skipped []SkipError
}

func (r Result) Degraded() bool { return len(r.Skipped) > 0 }

type Aggregator struct {
	rides    ledger.RideReader
	fallback FallbackLookup
	policy   PassengerPolicy
	logger   *slog.Logger
}

// NewAggregator builds an aggregator. A nil policy selects the lenient one;
// fallback may be nil when no local store is configured.
func NewAggregator(rides ledger.RideReader, fallback FallbackLookup, policy PassengerPolicy, logger *slog.Logger) *Aggregator {
	if policy == nil {
		policy = LenientPassengerPolicy
	}
	return &Aggregator{rides: rides, fallback: fallback, policy: policy, logger: logger.With("component", "ridestate")}
}

// Aggregate builds the view of rideID. When clientID is non-nil the view
// includes that client's membership, request and payment state.
func (a *Aggregator) Aggregate(ctx context.Context, rideID uint64, clientID *uint64) (Result, error) {
	if err := a.rides.Ready(); err != nil {
		return Result{}, err
	}
	ride, err := a.rides.Ride(ctx, rideID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Result{}, models.ErrRideNotFound
		}
		return Result{}, fmt.Errorf("load ride %d: %w", rideID, err)
	}
	if ride.ID == 0 {
		return Result{}, models.ErrRideNotFound
	}

	var res Result
	view := RideView{Ride: ride, PassengerIDs: []uint64{}, Passengers: []models.Passenger{}, Requests: []models.RideRequest{}}

	passengerIDs, err := a.rides.RidePassengerIDs(ctx, rideID)
	if err != nil {
		a.skip(&res, "passenger_ids", 0, err)
	}
	view.PassengerIDs = append(view.PassengerIDs, passengerIDs...)
	for _, pid := range passengerIDs {
		p, err := a.rides.Passenger(ctx, pid)
		if err != nil {
			a.skip(&res, "passenger", pid, err)
			continue
		}
		view.Passengers = append(view.Passengers, p)
	}

	requestIDs, err := a.rides.RideRequestIDs(ctx, rideID)
	if err != nil {
		a.skip(&res, "request_ids", 0, err)
	}
	for _, qid := range requestIDs {
		rq, err := a.rides.RideRequest(ctx, qid)
		if err != nil {
			a.skip(&res, "request", qid, err)
			continue
		}
		view.Requests = append(view.Requests, rq)
	}

	if ride.Status == models.RideCompleted {
		view.Passengers = mergeImplicitPassengers(rideID, view.Passengers, view.Requests)
	}

	if clientID != nil {
		state, err := a.clientState(ctx, view, *clientID)
		if err != nil {
			return Result{}, err
		}
		view.Client = &state
	}

	res.View = view
	return res, nil
}

// mergeImplicitPassengers adds clients with accepted requests that the
// ledger failed to record as passengers.
func mergeImplicitPassengers(rideID uint64, passengers []models.Passenger, requests []models.RideRequest) []models.Passenger {
	seen := make(map[uint64]bool, len(passengers))
	for _, p := range passengers {
		seen[p.ClientID] = true
	}
	for _, rq := range requests {
		if !rq.Status.Boarded() || seen[rq.ClientID] {
			continue
		}
		seen[rq.ClientID] = true
		passengers = append(passengers, models.Passenger{
			RideID:        rideID,
			ClientID:      rq.ClientID,
			WalletAddress: rq.ClientWalletAddress,
			Implicit:      true,
		})
	}
	return passengers
}

func (a *Aggregator) clientState(ctx context.Context, view RideView, clientID uint64) (ClientState, error) {
	state := ClientState{ClientID: clientID}
	state.IsPassenger = a.policy(Evidence{
		RideStatus:      view.Status,
		ClientID:        clientID,
		Passengers:      view.Passengers,
		RawPassengerIDs: view.PassengerIDs,
		Requests:        view.Requests,
	})
	for _, rq := range view.Requests {
		if rq.ClientID == clientID {
			state.HasRequest = true
			state.RequestID = rq.ID
			state.RequestStatus = rq.Status
			break
		}
	}
	ps, err := a.paymentStatus(ctx, view, clientID)
	if err != nil {
		return ClientState{}, err
	}
	state.PaymentStatus = ps
	return state, nil
}

func (a *Aggregator) paymentStatus(ctx context.Context, view RideView, clientID uint64) (PaymentStatus, error) {
	if view.Status != models.RideCompleted {
		return PaymentStatus{Status: StatusNotCompleted}, nil
	}
	if a.fallback != nil {
		rec, ok, err := a.fallback.Get(ctx, view.ID, clientID)
		if err != nil {
			return PaymentStatus{}, fmt.Errorf("read fallback payment: %w", err)
		}
		if ok {
			return PaymentStatus{Paid: true, Status: StatusPaid, Source: SourceLocal, TransactionRef: rec.TransactionRef}, nil
		}
	}
	if len(view.Passengers) == 0 {
		return PaymentStatus{Status: StatusNoPassengers}, nil
	}
	for _, p := range view.Passengers {
		if p.ClientID != clientID {
			continue
		}
		if p.Paid {
			return PaymentStatus{Paid: true, Status: StatusPaid, Source: SourceLedger}, nil
		}
		return PaymentStatus{Status: StatusPaymentPending}, nil
	}
	return PaymentStatus{Status: StatusNotPassenger}, nil
}

// PaymentStatus is the standalone payment check for (ride, client). A
// missing ride is reported as a status, not an error.
func (a *Aggregator) PaymentStatus(ctx context.Context, rideID, clientID uint64) (PaymentStatus, error) {
	res, err := a.Aggregate(ctx, rideID, &clientID)
	if errors.Is(err, models.ErrRideNotFound) {
		return PaymentStatus{Status: StatusNotFound}, nil
	}
	if err != nil {
		return PaymentStatus{}, err
	}
	return res.View.Client.PaymentStatus, nil
}

func (a *Aggregator) skip(res *Result, kind string, id uint64, err error) {
	observability.AggregationSkipped.WithLabelValues(kind).Inc()
	a.logger.Warn("skipping ride sub-item", "kind", kind, "id", id, "error", err)
	res.Skipped = append(res.Skipped, SkipError{Kind: kind, ID: id, Err: err})
}
