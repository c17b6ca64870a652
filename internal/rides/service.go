// Package rides forwards ride lifecycle transitions to the ledger and
// builds the ride listings the UI polls.
package rides

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/chainride/internal/identity"
	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/money"
	"github.com/example/chainride/internal/ridestate"
)

type Ledger interface {
	ledger.RideReader
	ledger.RideWriter
	ledger.Directory
}

type Resolver interface {
	Resolve(ctx context.Context, role models.Role, account string) (uint64, bool, error)
}

type Registrar interface {
	RegisterClient(ctx context.Context, account string, p models.ClientProfile) (identity.Registration, error)
}

type StateSource interface {
	Aggregate(ctx context.Context, rideID uint64, clientID *uint64) (ridestate.Result, error)
}

type Service struct {
	ledger    Ledger
	resolver  Resolver
	registrar Registrar
	state     StateSource
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(l Ledger, resolver Resolver, registrar Registrar, state StateSource, logger *slog.Logger) *Service {
	return &Service{
		ledger:    l,
		resolver:  resolver,
		registrar: registrar,
		state:     state,
		logger:    logger.With("component", "rides"),
		now:       time.Now,
	}
}

func requireAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return models.Validationf("account is required")
	}
	return nil
}

// Create validates a draft and forwards it. Seats default to 1 and the
// departure time to now.
func (s *Service) Create(ctx context.Context, d models.RideDraft) (uint64, error) {
	if err := requireAccount(d.DriverAccount); err != nil {
		return 0, err
	}
	if strings.TrimSpace(d.StartLocation) == "" || strings.TrimSpace(d.Destination) == "" {
		return 0, models.Validationf("start location and destination are required")
	}
	if err := money.Positive(d.Price); err != nil {
		return 0, err
	}
	wei, err := money.ToWei(d.Price)
	if err != nil {
		return 0, err
	}
	if d.AvailableSeats == 0 {
		d.AvailableSeats = 1
	}
	if d.DepartureTime.IsZero() {
		d.DepartureTime = s.now()
	}
	if err := s.ledger.Ready(); err != nil {
		return 0, err
	}
	id, err := s.ledger.CreateRide(ctx, d, wei)
	if err != nil {
		return 0, fmt.Errorf("create ride: %w", err)
	}
	s.logger.Info("ride created", "ride_id", id, "driver_account", d.DriverAccount)
	return id, nil
}

// RequestReceipt describes a submitted ride request.
type RequestReceipt struct {
	RequestID        uint64 `json:"requestId"`
	ClientID         uint64 `json:"clientId"`
	ClientRegistered bool   `json:"clientRegistered"`
}

// Request submits a ride request, registering the client first when the
// account is unknown.
func (s *Service) Request(ctx context.Context, rideID uint64, account string) (RequestReceipt, error) {
	if err := requireAccount(account); err != nil {
		return RequestReceipt{}, err
	}
	reg, err := s.registrar.RegisterClient(ctx, account, identity.AutoClientProfile(account))
	if err != nil {
		return RequestReceipt{}, err
	}
	reqID, err := s.ledger.RequestRide(ctx, account, rideID)
	if err != nil {
		return RequestReceipt{}, fmt.Errorf("request ride %d: %w", rideID, err)
	}
	return RequestReceipt{RequestID: reqID, ClientID: reg.ID, ClientRegistered: !reg.AlreadyRegistered}, nil
}

func (s *Service) forward(account string, fn func() error) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	if err := s.ledger.Ready(); err != nil {
		return err
	}
	return fn()
}

func (s *Service) Accept(ctx context.Context, account string, rideID, requestID uint64) error {
	return s.forward(account, func() error { return s.ledger.AcceptRequest(ctx, account, rideID, requestID) })
}

func (s *Service) Reject(ctx context.Context, account string, rideID, requestID uint64) error {
	return s.forward(account, func() error { return s.ledger.RejectRequest(ctx, account, rideID, requestID) })
}

// CancelRequest withdraws the pending request of the client behind account.
func (s *Service) CancelRequest(ctx context.Context, account string, rideID uint64) error {
	return s.forward(account, func() error {
		clientID, found, err := s.resolver.Resolve(ctx, models.RoleClient, account)
		if err != nil {
			return err
		}
		if !found {
			return models.ErrClientNotFound
		}
		return s.ledger.CancelRequest(ctx, account, rideID, clientID)
	})
}

func (s *Service) Start(ctx context.Context, account string, rideID uint64) error {
	return s.forward(account, func() error { return s.ledger.StartRide(ctx, account, rideID) })
}

func (s *Service) Complete(ctx context.Context, account string, rideID uint64) error {
	return s.forward(account, func() error { return s.ledger.CompleteRide(ctx, account, rideID) })
}

func (s *Service) CompleteForPassenger(ctx context.Context, account string, rideID, passengerID uint64) error {
	return s.forward(account, func() error {
		return s.ledger.CompleteRideForPassenger(ctx, account, rideID, passengerID)
	})
}

func (s *Service) Cancel(ctx context.Context, account string, rideID uint64) error {
	return s.forward(account, func() error { return s.ledger.CancelRide(ctx, account, rideID) })
}
