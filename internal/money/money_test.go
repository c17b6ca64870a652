package money

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/models"
)

func TestToWei(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{"0.000000000000000001", "1"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			wei, err := ToWei(decimal.RequireFromString(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, wei.String())
		})
	}
}

func TestToWeiRejectsSubWeiAndNegative(t *testing.T) {
	_, err := ToWei(decimal.RequireFromString("0.0000000000000000001"))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = ToWei(decimal.RequireFromString("-1"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestFromWei(t *testing.T) {
	wei, ok := new(big.Int).SetString("1250000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "1.25", FromWei(wei).String())
	assert.True(t, FromWei(nil).IsZero())
}

func TestParse(t *testing.T) {
	d, err := Parse("0.02")
	require.NoError(t, err)
	assert.Equal(t, "0.02", d.String())

	_, err = Parse("two")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, Positive(decimal.Zero), models.ErrValidation)
}
