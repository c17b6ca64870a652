package ratings

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/ledger/ledgertest"
	"github.com/example/chainride/internal/models"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seeded(t *testing.T, shape string, scores ...uint8) (*ledgertest.Ledger, uint64) {
	t.Helper()
	l := ledgertest.New()
	l.TotalsShape = shape
	driver := l.AddDriver("0xD", models.DriverProfile{})
	l.AddClient("0xC", models.ClientProfile{})
	ride := l.AddRide(driver, models.RideCompleted, "1")
	for _, s := range scores {
		l.AddRating(ride, 1, s)
	}
	return l, driver
}

func TestAverageFor(t *testing.T) {
	for _, shape := range []string{ledgertest.TotalsPair, ledgertest.TotalsKeyed} {
		t.Run(shape, func(t *testing.T) {
			l, driver := seeded(t, shape, 2, 4)
			s, err := NewAggregator(l, discard()).AverageFor(context.Background(), driver)
			require.NoError(t, err)
			assert.Equal(t, 3.0, s.Average)
			assert.Equal(t, uint64(2), s.Count)
		})
	}
}

func TestAverageForNoRatings(t *testing.T) {
	l, driver := seeded(t, ledgertest.TotalsPair)
	s, err := NewAggregator(l, discard()).AverageFor(context.Background(), driver)
	require.NoError(t, err)
	assert.Zero(t, s.Average)
	assert.Zero(t, s.Count)
}

func TestAverageRoundsToOneDecimal(t *testing.T) {
	l, driver := seeded(t, ledgertest.TotalsPair, 5, 4, 4)
	s, err := NewAggregator(l, discard()).AverageFor(context.Background(), driver)
	require.NoError(t, err)
	assert.Equal(t, 4.3, s.Average)
}

func TestAverageFallsBackToRecords(t *testing.T) {
	l, driver := seeded(t, ledgertest.TotalsPair, 1, 2)
	l.FailOn("DriverRatingTotals", driver, assert.AnError)

	s, err := NewAggregator(l, discard()).AverageFor(context.Background(), driver)
	require.NoError(t, err)
	assert.Equal(t, 1.5, s.Average)
	assert.Equal(t, uint64(2), s.Count)
}

func TestSubmitRejectsInvalidScore(t *testing.T) {
	l, _ := seeded(t, ledgertest.TotalsPair)
	agg := NewAggregator(l, discard())

	for _, score := range []int{0, 6, -1} {
		_, err := agg.Submit(context.Background(), "0xC", 1, score)
		assert.ErrorIs(t, err, models.ErrInvalidScore)
		assert.ErrorIs(t, err, models.ErrValidation)
	}
	assert.Zero(t, l.Calls("RateDriver"))
}

func TestSubmitAndList(t *testing.T) {
	l, driver := seeded(t, ledgertest.TotalsPair)
	agg := NewAggregator(l, discard())
	ctx := context.Background()

	id, err := agg.Submit(ctx, "0xC", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	byDriver, err := agg.ForDriver(ctx, driver)
	require.NoError(t, err)
	require.Len(t, byDriver, 1)
	assert.Equal(t, uint8(5), byDriver[0].Score)

	byRide, err := agg.ForRide(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, byRide, 1)
}

func TestNormalizeTotals(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		total uint64
		count uint64
		ok    bool
	}{
		{"pair", []any{big.NewInt(9), big.NewInt(3)}, 9, 3, true},
		{"big slice", []*big.Int{big.NewInt(4), big.NewInt(1)}, 4, 1, true},
		{"keyed", map[string]any{"0": "12", "1": "4"}, 12, 4, true},
		{"named", map[string]any{"total": 8.0, "count": 2.0}, 8, 2, true},
		{"short", []any{big.NewInt(1)}, 0, 0, false},
		{"garbage", "nope", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, count, ok := normalizeTotals(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.total, total)
			assert.Equal(t, tt.count, count)
		})
	}
}
