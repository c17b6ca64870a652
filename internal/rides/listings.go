package rides

import (
	"context"
	"errors"

	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/ridestate"
)

// ClientRide is a ride annotated with one client's relation to it.
type ClientRide struct {
	models.Ride
	ridestate.ClientState
	PassengerCount int  `json:"passengerCount"`
	PaymentPending bool `json:"paymentPending"`
	IsPaid         bool `json:"isPaid"`
}

func (s *Service) Get(ctx context.Context, rideID uint64) (models.Ride, error) {
	if err := s.ledger.Ready(); err != nil {
		return models.Ride{}, err
	}
	r, err := s.ledger.Ride(ctx, rideID)
	if err != nil {
		return models.Ride{}, err
	}
	if r.ID == 0 {
		return models.Ride{}, models.ErrRideNotFound
	}
	return r, nil
}

func (s *Service) loadRides(ctx context.Context, ids []uint64) []models.Ride {
	out := make([]models.Ride, 0, len(ids))
	for _, id := range ids {
		r, err := s.ledger.Ride(ctx, id)
		if err != nil {
			s.logger.Warn("skipping ride", "ride_id", id, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Service) Active(ctx context.Context) ([]models.Ride, error) {
	if err := s.ledger.Ready(); err != nil {
		return nil, err
	}
	ids, err := s.ledger.ActiveRideIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadRides(ctx, ids), nil
}

func (s *Service) ForDriver(ctx context.Context, driverID uint64) ([]models.Ride, error) {
	if err := s.ledger.Ready(); err != nil {
		return nil, err
	}
	ids, err := s.ledger.DriverRideIDs(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return s.loadRides(ctx, ids), nil
}

// ForClient lists the rides a client requested, each with the client's
// membership, request and payment state.
func (s *Service) ForClient(ctx context.Context, clientID uint64) ([]ClientRide, error) {
	if err := s.ledger.Ready(); err != nil {
		return nil, err
	}
	ids, err := s.ledger.ClientRideIDs(ctx, clientID)
	if err != nil {
		return nil, err
	}
	out := make([]ClientRide, 0, len(ids))
	for _, id := range ids {
		res, err := s.state.Aggregate(ctx, id, &clientID)
		if err != nil {
			if errors.Is(err, models.ErrNotInitialized) {
				return nil, err
			}
			s.logger.Warn("skipping client ride", "ride_id", id, "client_id", clientID, "error", err)
			continue
		}
		v := res.View
		ps := v.Client.PaymentStatus
		out = append(out, ClientRide{
			Ride:           v.Ride,
			ClientState:    *v.Client,
			PassengerCount: len(v.Passengers),
			PaymentPending: v.Status == models.RideCompleted && v.Client.IsPassenger && !ps.Paid,
			IsPaid:         ps.Paid,
		})
	}
	return out, nil
}

// ForClientAccount resolves the account and lists its rides.
func (s *Service) ForClientAccount(ctx context.Context, account string) (uint64, []ClientRide, error) {
	clientID, found, err := s.resolver.Resolve(ctx, models.RoleClient, account)
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, models.ErrClientNotFound
	}
	rides, err := s.ForClient(ctx, clientID)
	return clientID, rides, err
}

func (s *Service) Requests(ctx context.Context, rideID uint64) ([]models.RideRequest, error) {
	res, err := s.state.Aggregate(ctx, rideID, nil)
	if err != nil {
		return nil, err
	}
	return res.View.Requests, nil
}

// RequestStatus reports the client's first request on the ride.
func (s *Service) RequestStatus(ctx context.Context, rideID, clientID uint64) (ridestate.ClientState, error) {
	res, err := s.state.Aggregate(ctx, rideID, &clientID)
	if err != nil {
		return ridestate.ClientState{}, err
	}
	return *res.View.Client, nil
}

// ClientRequests scans every ride for requests made by clientID. Rides that
// fail to load are skipped.
func (s *Service) ClientRequests(ctx context.Context, clientID uint64) ([]models.RideRequest, error) {
	if err := s.ledger.Ready(); err != nil {
		return nil, err
	}
	count, err := s.ledger.RideCount(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.RideRequest
	for rideID := uint64(1); rideID <= count; rideID++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := s.ledger.RideRequestIDs(ctx, rideID)
		if err != nil {
			s.logger.Warn("skipping ride requests", "ride_id", rideID, "error", err)
			continue
		}
		for _, id := range ids {
			rq, err := s.ledger.RideRequest(ctx, id)
			if err != nil {
				s.logger.Warn("skipping request", "request_id", id, "error", err)
				continue
			}
			if rq.ClientID == clientID {
				out = append(out, rq)
			}
		}
	}
	return out, nil
}

func (s *Service) PassengerCount(ctx context.Context, rideID uint64) (int, error) {
	res, err := s.state.Aggregate(ctx, rideID, nil)
	if err != nil {
		return 0, err
	}
	return len(res.View.Passengers), nil
}

func (s *Service) DriverStats(ctx context.Context, driverID uint64) (models.DriverStats, error) {
	if err := s.ledger.Ready(); err != nil {
		return models.DriverStats{}, err
	}
	return s.ledger.DriverStats(ctx, driverID)
}

func (s *Service) NearbyDrivers(ctx context.Context, lat, lon float64, radius uint64) ([]models.Driver, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, models.Validationf("coordinates out of range")
	}
	if err := s.ledger.Ready(); err != nil {
		return nil, err
	}
	return s.ledger.NearbyDrivers(ctx, lat, lon, radius)
}

func (s *Service) Accounts(ctx context.Context) ([]string, error) {
	if err := s.ledger.Ready(); err != nil {
		return nil, err
	}
	return s.ledger.Accounts(ctx)
}
