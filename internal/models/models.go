package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Role selects which membership registry an account is looked up in.
type Role string

const (
	RoleDriver Role = "driver"
	RoleClient Role = "client"
)

func (r Role) Valid() bool { return r == RoleDriver || r == RoleClient }

type Driver struct {
	ID            uint64    `json:"driverId"`
	WalletAddress string    `json:"walletAddress"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	CarModel      string    `json:"carModel"`
	LicensePlate  string    `json:"licensePlate"`
	CarColor      string    `json:"carColor"`
	IsActive      bool      `json:"isActive"`
	Timestamp     time.Time `json:"timestamp"`
}

// DriverProfile holds the mutable profile fields forwarded on register and update.
type DriverProfile struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	CarModel     string `json:"carModel"`
	LicensePlate string `json:"licensePlate"`
	CarColor     string `json:"carColor"`
}

type Client struct {
	ID            uint64    `json:"clientId"`
	WalletAddress string    `json:"walletAddress"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	IsActive      bool      `json:"isActive"`
	Timestamp     time.Time `json:"timestamp"`
}

type ClientProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type RideStatus string

const (
	RideActive     RideStatus = "active"
	RideInProgress RideStatus = "in_progress"
	RideCompleted  RideStatus = "completed"
	RideCanceled   RideStatus = "canceled"
)

// Ride mirrors the ledger record. Price is the display unit, PriceWei the
// ledger base unit; both are populated by the ledger adapter.
type Ride struct {
	ID                  uint64          `json:"rideId"`
	DriverID            uint64          `json:"driverId"`
	DriverWalletAddress string          `json:"driverWalletAddress"`
	StartLocation       string          `json:"startLocation"`
	Destination         string          `json:"destination"`
	AvailableSeats      uint64          `json:"availableSeats"`
	Price               decimal.Decimal `json:"price"`
	PriceWei            *big.Int        `json:"-"`
	Status              RideStatus      `json:"status"`
	CreatedAt           time.Time       `json:"createdAt"`
	DepartureTime       time.Time       `json:"departureTime"`
}

// RideDraft is the input for creating a ride.
type RideDraft struct {
	DriverAccount  string
	StartLocation  string
	Destination    string
	AvailableSeats uint64
	Price          decimal.Decimal
	DepartureTime  time.Time
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	// RequestCompleted is reported by some contract revisions once the ride ends.
	RequestCompleted RequestStatus = "completed"
	RequestCanceled  RequestStatus = "canceled"
)

// Boarded reports whether the request put its client on the ride.
func (s RequestStatus) Boarded() bool { return s == RequestAccepted || s == RequestCompleted }

type RideRequest struct {
	ID                  uint64        `json:"requestId"`
	RideID              uint64        `json:"rideId"`
	ClientID            uint64        `json:"clientId"`
	ClientWalletAddress string        `json:"clientWalletAddress"`
	Status              RequestStatus `json:"status"`
	RequestedAt         time.Time     `json:"requestedAt"`
}

type Passenger struct {
	ID            uint64 `json:"passengerId"`
	RideID        uint64 `json:"rideId"`
	ClientID      uint64 `json:"clientId"`
	WalletAddress string `json:"walletAddress"`
	Paid          bool   `json:"paid"`
	// Implicit marks a passenger derived from an accepted request rather
	// than read from the ledger's passenger set.
	Implicit bool `json:"implicit,omitempty"`
}

type Rating struct {
	ID        uint64    `json:"id"`
	RideID    uint64    `json:"rideId"`
	DriverID  uint64    `json:"driverId"`
	ClientID  uint64    `json:"clientId"`
	Score     uint8     `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type DriverStats struct {
	DriverID       uint64          `json:"driverId"`
	CompletedRides uint64          `json:"completedRides"`
	ActiveRides    uint64          `json:"activeRides"`
	TotalEarnings  decimal.Decimal `json:"totalEarnings"`
}

// FallbackPayment is the local evidence of a payment that could not be
// settled on the ledger. Records are keyed by ride with one entry per payer.
type FallbackPayment struct {
	RideID         uint64          `json:"rideId"`
	ClientID       uint64          `json:"clientId"`
	PayerAccount   string          `json:"payerAccount"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionRef string          `json:"transactionRef"`
	RecordedAt     time.Time       `json:"recordedAt"`
}
