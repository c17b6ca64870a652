package eth

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/money"
)

// record is a named tuple returned by a struct getter.
type record map[string]any

// first returns the value of the first present key.
func (r record) first(keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			return v
		}
	}
	return nil
}

func (r record) num(keys ...string) uint64   { return toUint64(r.first(keys...)) }
func (r record) str(keys ...string) string   { return toString(r.first(keys...)) }
func (r record) at(keys ...string) time.Time { return toTime(r.first(keys...)) }

func (r record) flag(keys ...string) bool {
	b, _ := r.first(keys...).(bool)
	return b
}

func (r record) wei(keys ...string) *big.Int {
	switch v := r.first(keys...).(type) {
	case *big.Int:
		return v
	case nil:
		return new(big.Int)
	default:
		return new(big.Int).SetUint64(toUint64(v))
	}
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0
		}
		return n.Uint64()
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	default:
		return 0
	}
}

func toUint64s(v any) []uint64 {
	switch ids := v.(type) {
	case []*big.Int:
		out := make([]uint64, 0, len(ids))
		for _, id := range ids {
			out = append(out, toUint64(id))
		}
		return out
	case []uint64:
		return ids
	default:
		return nil
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case common.Address:
		return s.Hex()
	default:
		return ""
	}
}

func toTime(v any) time.Time {
	secs := toUint64(v)
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

var rideStatuses = []models.RideStatus{models.RideActive, models.RideInProgress, models.RideCompleted, models.RideCanceled}

var requestStatuses = []models.RequestStatus{models.RequestPending, models.RequestAccepted, models.RequestRejected, models.RequestCompleted, models.RequestCanceled}

// normalizeStatus accepts both string statuses and enum ordinals.
func normalizeStatus(v any) (string, int) {
	if s, ok := v.(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "inprogress", "in progress", "in-progress":
			s = string(models.RideInProgress)
		case "cancelled":
			s = string(models.RideCanceled)
		}
		return s, -1
	}
	return "", int(toUint64(v))
}

func rideStatus(v any) models.RideStatus {
	s, i := normalizeStatus(v)
	if i < 0 {
		return models.RideStatus(s)
	}
	if i < len(rideStatuses) {
		return rideStatuses[i]
	}
	return models.RideStatus("unknown")
}

func requestStatus(v any) models.RequestStatus {
	s, i := normalizeStatus(v)
	if i < 0 {
		return models.RequestStatus(s)
	}
	if i < len(requestStatuses) {
		return requestStatuses[i]
	}
	return models.RequestStatus("unknown")
}

func driverFrom(r record) models.Driver {
	return models.Driver{
		ID:            r.num("id", "driverId"),
		WalletAddress: r.str("walletAddress", "driverAddress", "account"),
		Name:          r.str("name"),
		Email:         r.str("email"),
		Phone:         r.str("phone"),
		CarModel:      r.str("carModel"),
		LicensePlate:  r.str("licensePlate"),
		CarColor:      r.str("carColor"),
		IsActive:      r.flag("isActive", "active"),
		Timestamp:     r.at("timestamp", "registeredAt"),
	}
}

func clientFrom(r record) models.Client {
	return models.Client{
		ID:            r.num("id", "clientId"),
		WalletAddress: r.str("walletAddress", "clientAddress", "account"),
		Name:          r.str("name"),
		Email:         r.str("email"),
		Phone:         r.str("phone"),
		IsActive:      r.flag("isActive", "active"),
		Timestamp:     r.at("timestamp", "registeredAt"),
	}
}

func rideFrom(r record) models.Ride {
	wei := r.wei("price")
	return models.Ride{
		ID:                  r.num("id", "rideId"),
		DriverID:            r.num("driverId"),
		DriverWalletAddress: r.str("driverWalletAddress", "driverAddress"),
		StartLocation:       r.str("startLocation"),
		Destination:         r.str("destination"),
		AvailableSeats:      r.num("availableSeats"),
		Price:               money.FromWei(wei),
		PriceWei:            wei,
		Status:              rideStatus(r.first("status")),
		CreatedAt:           r.at("createdAt", "timestamp"),
		DepartureTime:       r.at("departureTime"),
	}
}

func requestFrom(r record) models.RideRequest {
	return models.RideRequest{
		ID:                  r.num("id", "requestId"),
		RideID:              r.num("rideId"),
		ClientID:            r.num("clientId"),
		ClientWalletAddress: r.str("clientWalletAddress", "clientAddress"),
		Status:              requestStatus(r.first("status")),
		RequestedAt:         r.at("requestedAt", "timestamp"),
	}
}

func passengerFrom(r record) models.Passenger {
	return models.Passenger{
		ID:            r.num("id", "passengerId"),
		RideID:        r.num("rideId"),
		ClientID:      r.num("clientId"),
		WalletAddress: r.str("walletAddress", "clientAddress"),
		Paid:          r.flag("paid", "hasPaid"),
	}
}

func ratingFrom(r record) models.Rating {
	return models.Rating{
		ID:        r.num("id", "ratingId"),
		RideID:    r.num("rideId"),
		DriverID:  r.num("driverId"),
		ClientID:  r.num("clientId"),
		Score:     uint8(r.num("score")),
		Timestamp: r.at("timestamp"),
	}
}
