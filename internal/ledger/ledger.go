// Package ledger defines the contract surface the service consumes. The
// ledger is the authoritative store for every ride-sharing entity; this
// service only reads views from it and forwards mutations to it.
package ledger

import (
	"context"
	"math/big"

	"github.com/example/chainride/internal/models"
)

// Registry covers driver and client membership.
type Registry interface {
	Ready() error
	MemberCount(ctx context.Context, role models.Role) (uint64, error)
	// MemberIDByAccount is the direct indexed lookup. It returns 0 when the
	// account is unknown and ErrUnsupported when the contract has no index.
	MemberIDByAccount(ctx context.Context, role models.Role, account string) (uint64, error)
	Driver(ctx context.Context, id uint64) (models.Driver, error)
	Client(ctx context.Context, id uint64) (models.Client, error)
	RegisterDriver(ctx context.Context, account string, p models.DriverProfile) (uint64, error)
	RegisterClient(ctx context.Context, account string, p models.ClientProfile) (uint64, error)
	UpdateDriver(ctx context.Context, account string, p models.DriverProfile) error
	UpdateClient(ctx context.Context, account string, p models.ClientProfile) error
}

// RideReader covers ride, request and passenger reads.
type RideReader interface {
	Ready() error
	Ride(ctx context.Context, id uint64) (models.Ride, error)
	RideCount(ctx context.Context) (uint64, error)
	ActiveRideIDs(ctx context.Context) ([]uint64, error)
	DriverRideIDs(ctx context.Context, driverID uint64) ([]uint64, error)
	ClientRideIDs(ctx context.Context, clientID uint64) ([]uint64, error)
	RideRequestIDs(ctx context.Context, rideID uint64) ([]uint64, error)
	RidePassengerIDs(ctx context.Context, rideID uint64) ([]uint64, error)
	RideRequest(ctx context.Context, id uint64) (models.RideRequest, error)
	Passenger(ctx context.Context, id uint64) (models.Passenger, error)
}

// RideWriter forwards lifecycle transitions. The ledger enforces the
// status machine; callers never re-derive it.
type RideWriter interface {
	CreateRide(ctx context.Context, d models.RideDraft, priceWei *big.Int) (uint64, error)
	RequestRide(ctx context.Context, account string, rideID uint64) (uint64, error)
	AcceptRequest(ctx context.Context, account string, rideID, requestID uint64) error
	RejectRequest(ctx context.Context, account string, rideID, requestID uint64) error
	CancelRequest(ctx context.Context, account string, rideID, clientID uint64) error
	StartRide(ctx context.Context, account string, rideID uint64) error
	CompleteRide(ctx context.Context, account string, rideID uint64) error
	CompleteRideForPassenger(ctx context.Context, account string, rideID, passengerID uint64) error
	CancelRide(ctx context.Context, account string, rideID uint64) error
}

// Payer exposes the two known shapes of the payment call.
type Payer interface {
	Ready() error
	// PaymentInputs reports the declared parameter count of the payment
	// function, or ErrUnsupported when the contract does not declare one.
	PaymentInputs(ctx context.Context) (int, error)
	ConfirmByRide(ctx context.Context, account string, rideID uint64, value *big.Int) (string, error)
	ConfirmByClientAndRide(ctx context.Context, account string, clientID, rideID uint64, value *big.Int) (string, error)
}

type RatingBook interface {
	Ready() error
	RateDriver(ctx context.Context, account string, rideID uint64, score uint8) (uint64, error)
	Rating(ctx context.Context, id uint64) (models.Rating, error)
	DriverRatingIDs(ctx context.Context, driverID uint64) ([]uint64, error)
	RideRatingIDs(ctx context.Context, rideID uint64) ([]uint64, error)
	// DriverRatingTotals returns the raw (total, count) result, either as a
	// positional slice or a keyed map depending on the client decoding it.
	DriverRatingTotals(ctx context.Context, driverID uint64) (any, error)
}

type Directory interface {
	DriverStats(ctx context.Context, driverID uint64) (models.DriverStats, error)
	NearbyDrivers(ctx context.Context, lat, lon float64, radius uint64) ([]models.Driver, error)
	Accounts(ctx context.Context) ([]string, error)
}

// Ledger is the full collaborator surface.
type Ledger interface {
	Registry
	RideReader
	RideWriter
	Payer
	RatingBook
	Directory
}
