package eth

import (
	"context"
	"fmt"

	"github.com/example/chainride/internal/models"
)

func (c *Client) RateDriver(ctx context.Context, account string, rideID uint64, score uint8) (uint64, error) {
	receipt, err := c.transact(ctx, account, c.cfg.TxGas, nil, "rateDriver", rideID, score)
	if err != nil {
		return 0, err
	}
	return c.emitted(receipt, "RatingSubmitted", "ratingId")
}

func (c *Client) Rating(ctx context.Context, id uint64) (models.Rating, error) {
	r, err := c.callRecord(ctx, "ratings", id)
	if err != nil {
		return models.Rating{}, err
	}
	rt := ratingFrom(r)
	if rt.ID == 0 {
		return models.Rating{}, fmt.Errorf("rating %d: %w", id, models.ErrRatingNotFound)
	}
	return rt, nil
}

func (c *Client) DriverRatingIDs(ctx context.Context, driverID uint64) ([]uint64, error) {
	return c.callIDs(ctx, "getDriverRatings", driverID)
}

func (c *Client) RideRatingIDs(ctx context.Context, rideID uint64) ([]uint64, error) {
	return c.callIDs(ctx, "getRideRatings", rideID)
}

// DriverRatingTotals returns the positional (total, count) pair.
func (c *Client) DriverRatingTotals(ctx context.Context, driverID uint64) (any, error) {
	return c.call(ctx, "getDriverRating", driverID)
}
