// Package ratings submits driver ratings and summarizes them.
package ratings

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
)

type Summary struct {
	DriverID uint64  `json:"driverId"`
	Average  float64 `json:"averageRating"`
	Count    uint64  `json:"ratingCount"`
}

type Aggregator struct {
	book   ledger.RatingBook
	logger *slog.Logger
}

func NewAggregator(book ledger.RatingBook, logger *slog.Logger) *Aggregator {
	return &Aggregator{book: book, logger: logger.With("component", "ratings")}
}

// ValidScore reports whether score is an integer in [1, 5].
func ValidScore(score int) bool { return score >= 1 && score <= 5 }

// Submit rates the driver of rideID. The score is validated before any
// ledger call; uniqueness per (ride, client) is enforced by the ledger.
func (a *Aggregator) Submit(ctx context.Context, account string, rideID uint64, score int) (uint64, error) {
	if !ValidScore(score) {
		return 0, models.ErrInvalidScore
	}
	if account == "" {
		return 0, models.Validationf("client account is required")
	}
	if err := a.book.Ready(); err != nil {
		return 0, err
	}
	id, err := a.book.RateDriver(ctx, account, rideID, uint8(score))
	if err != nil {
		return 0, err
	}
	a.logger.Info("rating submitted", "ride_id", rideID, "rating_id", id, "score", score)
	return id, nil
}

// AverageFor returns the driver's mean score rounded to one decimal. A
// driver without ratings yields (0, 0).
func (a *Aggregator) AverageFor(ctx context.Context, driverID uint64) (Summary, error) {
	if err := a.book.Ready(); err != nil {
		return Summary{}, err
	}
	raw, err := a.book.DriverRatingTotals(ctx, driverID)
	if err == nil {
		if total, count, ok := normalizeTotals(raw); ok {
			return summarize(driverID, total, count), nil
		}
		a.logger.Warn("unrecognized rating totals shape, summing records", "driver_id", driverID)
	} else if !errors.Is(err, ledger.ErrUnsupported) {
		a.logger.Warn("rating totals unavailable, summing records", "driver_id", driverID, "error", err)
	}

	list, err := a.ForDriver(ctx, driverID)
	if err != nil {
		return Summary{}, err
	}
	var total uint64
	for _, r := range list {
		total += uint64(r.Score)
	}
	return summarize(driverID, total, uint64(len(list))), nil
}

func summarize(driverID, total, count uint64) Summary {
	s := Summary{DriverID: driverID, Count: count}
	if count == 0 {
		return s
	}
	avg := decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(int64(count))).Round(1)
	s.Average = avg.InexactFloat64()
	return s
}

func (a *Aggregator) ForDriver(ctx context.Context, driverID uint64) ([]models.Rating, error) {
	if err := a.book.Ready(); err != nil {
		return nil, err
	}
	ids, err := a.book.DriverRatingIDs(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return a.load(ctx, ids), nil
}

func (a *Aggregator) ForRide(ctx context.Context, rideID uint64) ([]models.Rating, error) {
	if err := a.book.Ready(); err != nil {
		return nil, err
	}
	ids, err := a.book.RideRatingIDs(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return a.load(ctx, ids), nil
}

func (a *Aggregator) load(ctx context.Context, ids []uint64) []models.Rating {
	out := make([]models.Rating, 0, len(ids))
	for _, id := range ids {
		r, err := a.book.Rating(ctx, id)
		if err != nil {
			a.logger.Warn("skipping rating", "rating_id", id, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out
}

// normalizeTotals accepts the (total, count) pair either positionally or
// keyed by "0"/"1" (or "total"/"count").
func normalizeTotals(raw any) (total, count uint64, ok bool) {
	var t, c any
	switch v := raw.(type) {
	case []any:
		if len(v) < 2 {
			return 0, 0, false
		}
		t, c = v[0], v[1]
	case []*big.Int:
		if len(v) < 2 {
			return 0, 0, false
		}
		t, c = v[0], v[1]
	case map[string]any:
		var hasT, hasC bool
		if t, hasT = v["0"]; !hasT {
			t, hasT = v["total"]
		}
		if c, hasC = v["1"]; !hasC {
			c, hasC = v["count"]
		}
		if !hasT || !hasC {
			return 0, 0, false
		}
	default:
		return 0, 0, false
	}
	total, okT := toUint(t)
	count, okC := toUint(c)
	return total, count, okT && okC
}

func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, false
		}
		return n.Uint64(), true
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case float64:
		return uint64(n), n >= 0
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		return u, err == nil
	default:
		return 0, false
	}
}
