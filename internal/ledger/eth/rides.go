package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/money"
)

func (c *Client) Ride(ctx context.Context, id uint64) (models.Ride, error) {
	r, err := c.callRecord(ctx, "rides", id)
	if err != nil {
		return models.Ride{}, err
	}
	ride := rideFrom(r)
	if ride.ID == 0 {
		return models.Ride{}, fmt.Errorf("ride %d: %w", id, models.ErrRideNotFound)
	}
	if ride.DriverWalletAddress == "" && ride.DriverID != 0 {
		if d, err := c.Driver(ctx, ride.DriverID); err == nil {
			ride.DriverWalletAddress = d.WalletAddress
		}
	}
	return ride, nil
}

func (c *Client) RideCount(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "getRideCount")
}

func (c *Client) ActiveRideIDs(ctx context.Context) ([]uint64, error) {
	return c.callIDs(ctx, "getActiveRides")
}

func (c *Client) DriverRideIDs(ctx context.Context, driverID uint64) ([]uint64, error) {
	return c.callIDs(ctx, "getDriverRides", driverID)
}

func (c *Client) ClientRideIDs(ctx context.Context, clientID uint64) ([]uint64, error) {
	return c.callIDs(ctx, "getClientRides", clientID)
}

func (c *Client) RideRequestIDs(ctx context.Context, rideID uint64) ([]uint64, error) {
	return c.callIDs(ctx, "getRideRequests", rideID)
}

func (c *Client) RidePassengerIDs(ctx context.Context, rideID uint64) ([]uint64, error) {
	return c.callIDs(ctx, "getRidePassengers", rideID)
}

func (c *Client) RideRequest(ctx context.Context, id uint64) (models.RideRequest, error) {
	r, err := c.callRecord(ctx, "rideRequests", id)
	if err != nil {
		return models.RideRequest{}, err
	}
	req := requestFrom(r)
	if req.ID == 0 && req.RideID == 0 {
		return models.RideRequest{}, fmt.Errorf("request %d: %w", id, models.ErrRequestNotFound)
	}
	if req.ID == 0 {
		req.ID = id
	}
	return req, nil
}

func (c *Client) Passenger(ctx context.Context, id uint64) (models.Passenger, error) {
	r, err := c.callRecord(ctx, "passengers", id)
	if err != nil {
		return models.Passenger{}, err
	}
	p := passengerFrom(r)
	if p.ClientID == 0 {
		return models.Passenger{}, fmt.Errorf("passenger %d: %w", id, models.ErrPassengerNotFound)
	}
	if p.ID == 0 {
		p.ID = id
	}
	return p, nil
}

func (c *Client) CreateRide(ctx context.Context, d models.RideDraft, priceWei *big.Int) (uint64, error) {
	receipt, err := c.transact(ctx, d.DriverAccount, c.cfg.RideGas, nil, "createRide",
		d.StartLocation, d.Destination, d.AvailableSeats, priceWei, uint64(d.DepartureTime.Unix()))
	if err != nil {
		return 0, err
	}
	return c.emitted(receipt, "RideCreated", "rideId")
}

func (c *Client) RequestRide(ctx context.Context, account string, rideID uint64) (uint64, error) {
	receipt, err := c.transact(ctx, account, c.cfg.TxGas, nil, "requestRide", rideID)
	if err != nil {
		return 0, err
	}
	return c.emitted(receipt, "RideRequested", "requestId")
}

func (c *Client) AcceptRequest(ctx context.Context, account string, rideID, requestID uint64) error {
	return c.send(ctx, account, "acceptRideRequest", rideID, requestID)
}

func (c *Client) RejectRequest(ctx context.Context, account string, rideID, requestID uint64) error {
	return c.send(ctx, account, "rejectRideRequest", rideID, requestID)
}

func (c *Client) CancelRequest(ctx context.Context, account string, rideID, clientID uint64) error {
	return c.send(ctx, account, "cancelRideRequest", rideID, clientID)
}

func (c *Client) StartRide(ctx context.Context, account string, rideID uint64) error {
	return c.send(ctx, account, "startRide", rideID)
}

func (c *Client) CompleteRide(ctx context.Context, account string, rideID uint64) error {
	return c.send(ctx, account, "completeRide", rideID)
}

func (c *Client) CompleteRideForPassenger(ctx context.Context, account string, rideID, passengerID uint64) error {
	return c.send(ctx, account, "completeRideForPassenger", rideID, passengerID)
}

func (c *Client) CancelRide(ctx context.Context, account string, rideID uint64) error {
	return c.send(ctx, account, "cancelRide", rideID)
}

func (c *Client) send(ctx context.Context, account, method string, args ...any) error {
	_, err := c.transact(ctx, account, c.cfg.TxGas, nil, method, args...)
	return err
}

func (c *Client) emitted(receipt *types.Receipt, event, field string) (uint64, error) {
	b, err := c.bound()
	if err != nil {
		return 0, err
	}
	return eventUint(b.abi, b.address, receipt, event, field)
}

// positional returns the unnamed outputs of a getter in declaration order,
// or nil when the outputs are named.
func positional(r record) []any {
	var vals []any
	for i := 0; ; i++ {
		v, ok := r[fmt.Sprint(i)]
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	return vals
}

func weiDecimal(v any) decimal.Decimal {
	if b, ok := v.(*big.Int); ok {
		return money.FromWei(b)
	}
	return decimal.Zero
}
