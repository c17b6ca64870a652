package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/identity"
	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/ledger/ledgertest"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/ridestate"
	"github.com/example/chainride/internal/storage"
)

var fixedNow = time.UnixMilli(1700000000000).UTC()

type fixture struct {
	ledger *ledgertest.Ledger
	store  *storage.MemoryStore
	agg    *ridestate.Aggregator
	rec    *Reconciler
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newFixture seeds clients 1..3 and ride 42 owned by driver 1.
func newFixture(t *testing.T, status models.RideStatus, opts Options) fixture {
	t.Helper()
	l := ledgertest.New()
	driver := l.AddDriver("0xD", models.DriverProfile{})
	for _, acct := range []string{"0xC1", "0xC2", "0xC3"} {
		l.AddClient(acct, models.ClientProfile{})
	}
	l.PadRides(42)
	require.Equal(t, uint64(42), l.AddRide(driver, status, "1"))

	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	store := storage.NewMemoryStore()
	agg := ridestate.NewAggregator(l, store, nil, discard())
	res := identity.NewResolver(l, discard())
	return fixture{ledger: l, store: store, agg: agg, rec: NewReconciler(l, res, agg, store, opts, discard())}
}

func one() decimal.Decimal { return decimal.NewFromInt(1) }

func (f fixture) paymentCalls() int {
	return f.ledger.Calls("ConfirmByRide") + f.ledger.Calls("ConfirmByClientAndRide")
}

func TestPayRejectsRideNotCompleted(t *testing.T) {
	f := newFixture(t, models.RideActive, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)

	_, err := f.rec.Pay(context.Background(), 42, "0xC3", one())
	assert.ErrorIs(t, err, models.ErrRideNotCompleted)
	assert.Zero(t, f.paymentCalls())
	assert.Zero(t, f.ledger.Calls("PaymentInputs"))
}

func TestPayRetriesAlternateShapeOnArityMismatch(t *testing.T) {
	f := newFixture(t, models.RideActive, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)
	f.ledger.SetRideStatus(42, models.RideCompleted)
	f.ledger.DeclaredPaymentInputs = 1
	f.ledger.PaymentArity = 2
	ctx := context.Background()

	receipt, err := f.rec.Pay(ctx, 42, "0xC3", one())
	require.NoError(t, err)
	assert.Equal(t, PathAlternate, receipt.Path)
	assert.NotEmpty(t, receipt.TransactionRef)
	assert.Equal(t, 1, f.ledger.Calls("ConfirmByRide"))
	assert.Equal(t, 1, f.ledger.Calls("ConfirmByClientAndRide"))

	status, err := f.agg.PaymentStatus(ctx, 42, 3)
	require.NoError(t, err)
	assert.True(t, status.Paid)
	assert.Equal(t, ridestate.StatusPaid, status.Status)

	_, err = f.rec.Pay(ctx, 42, "0xC3", one())
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)
}

func TestPayCachesShapeAfterSuccess(t *testing.T) {
	f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)
	f.ledger.AddPassenger(42, 2, false)
	f.ledger.DeclaredPaymentInputs = 1
	f.ledger.PaymentArity = 2
	ctx := context.Background()

	_, err := f.rec.Pay(ctx, 42, "0xC3", one())
	require.NoError(t, err)
	receipt, err := f.rec.Pay(ctx, 42, "0xC2", one())
	require.NoError(t, err)

	assert.Equal(t, PathLedger, receipt.Path, "learned shape is tried first")
	assert.Equal(t, 1, f.ledger.Calls("PaymentInputs"))
	assert.Equal(t, 1, f.ledger.Calls("ConfirmByRide"))
}

func TestPayRecordsLocallyWhenFunctionMissing(t *testing.T) {
	f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)
	f.ledger.DeclaredPaymentInputs = 0
	ctx := context.Background()

	receipt, err := f.rec.Pay(ctx, 42, "0xC3", one())
	require.NoError(t, err)
	assert.Equal(t, PathLocal, receipt.Path)
	assert.Equal(t, "local-payment-1700000000000-42-3", receipt.TransactionRef)
	assert.Zero(t, f.paymentCalls())

	rec, ok, err := f.store.Get(ctx, 42, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0xc3", rec.PayerAccount)
	assert.True(t, rec.Amount.Equal(one()))

	status, err := f.agg.PaymentStatus(ctx, 42, 3)
	require.NoError(t, err)
	assert.Equal(t, ridestate.PaymentStatus{Paid: true, Status: ridestate.StatusPaid, Source: ridestate.SourceLocal, TransactionRef: receipt.TransactionRef}, status)

	_, err = f.rec.Pay(ctx, 42, "0xC3", one())
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)
}

func TestPayRecordsLocallyWhenBothShapesFail(t *testing.T) {
	f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)
	f.ledger.PaymentArity = 3

	receipt, err := f.rec.Pay(context.Background(), 42, "0xC3", one())
	require.NoError(t, err)
	assert.Equal(t, PathLocal, receipt.Path)
	assert.Equal(t, 2, f.paymentCalls())
	assert.False(t, f.ledger.PassengerPaid(42, 3))
}

func TestPayWithoutLocalFallbackFails(t *testing.T) {
	f := newFixture(t, models.RideCompleted, Options{LocalFallback: false})
	f.ledger.AddPassenger(42, 3, false)
	f.ledger.DeclaredPaymentInputs = 0

	_, err := f.rec.Pay(context.Background(), 42, "0xC3", one())
	assert.ErrorIs(t, err, models.ErrPaymentFailed)
	all, _ := f.store.List(context.Background())
	assert.Empty(t, all)
}

func TestPaySurfacesRevertReason(t *testing.T) {
	f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)
	f.ledger.FailOn("ConfirmByRide", 42, ledger.NewCallError("confirmRide",
		errors.New("VM Exception while processing transaction: revert Insufficient payment")))

	_, err := f.rec.Pay(context.Background(), 42, "0xC3", one())
	require.ErrorIs(t, err, models.ErrPaymentFailed)
	assert.Contains(t, err.Error(), "Insufficient payment")
	assert.Equal(t, 1, f.paymentCalls(), "non-arity failures are not retried")

	var ce *ledger.CallError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Reverted)
}

func TestPayPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("client not found", func(t *testing.T) {
		f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
		_, err := f.rec.Pay(ctx, 42, "0xnobody", one())
		assert.ErrorIs(t, err, models.ErrClientNotFound)
	})
	t.Run("ride not found", func(t *testing.T) {
		f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
		_, err := f.rec.Pay(ctx, 77, "0xC3", one())
		assert.ErrorIs(t, err, models.ErrRideNotFound)
	})
	t.Run("not a passenger", func(t *testing.T) {
		f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
		f.ledger.AddPassenger(42, 1, false)
		_, err := f.rec.Pay(ctx, 42, "0xC3", one())
		assert.ErrorIs(t, err, models.ErrNotAPassenger)
		assert.Zero(t, f.paymentCalls())
	})
	t.Run("invalid price", func(t *testing.T) {
		f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
		f.ledger.AddPassenger(42, 3, false)
		_, err := f.rec.Pay(ctx, 42, "0xC3", decimal.Zero)
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Zero(t, f.paymentCalls())
	})
	t.Run("ride state checked before price", func(t *testing.T) {
		f := newFixture(t, models.RideActive, Options{LocalFallback: true})
		f.ledger.AddPassenger(42, 3, false)
		_, err := f.rec.Pay(ctx, 42, "0xC3", decimal.Zero)
		assert.ErrorIs(t, err, models.ErrRideNotCompleted)
		assert.NotErrorIs(t, err, models.ErrValidation)
	})
}

func TestCheckEligibility(t *testing.T) {
	f := newFixture(t, models.RideCompleted, Options{LocalFallback: true})
	f.ledger.AddPassenger(42, 3, false)

	el, err := f.rec.CheckEligibility(context.Background(), 42, "0xc3")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), el.ClientID)
	assert.Equal(t, ridestate.StatusPaymentPending, el.PaymentStatus.Status)
	assert.Equal(t, "1", el.Ride.Price.String())
}
