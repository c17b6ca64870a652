package rides

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
	"github.com/example/chainride/internal/ledger/ledgertest"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/ridestate"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newService(l *ledgertest.Ledger) *Service {
	res := identity.NewResolver(l, discard())
	reg := identity.NewRegistrar(l, res, discard())
	agg := ridestate.NewAggregator(l, nil, nil, discard())
	return NewService(l, res, reg, agg, discard())
}

func TestCreateValidatesAndDefaults(t *testing.T) {
	l := ledgertest.New()
	l.AddDriver("0xD", models.DriverProfile{})
	svc := newService(l)
	now := time.Unix(1700001000, 0).UTC()
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := svc.Create(ctx, models.RideDraft{DriverAccount: "0xD", StartLocation: "A", Destination: "B"})
	assert.ErrorIs(t, err, models.ErrValidation, "price is required")
	assert.Zero(t, l.Calls("CreateRide"))

	id, err := svc.Create(ctx, models.RideDraft{
		DriverAccount: "0xD", StartLocation: "A", Destination: "B", Price: decimal.RequireFromString("0.05"),
	})
	require.NoError(t, err)

	r, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.AvailableSeats)
	assert.Equal(t, now, r.DepartureTime)
	assert.Equal(t, "50000000000000000", r.PriceWei.String())
}

func TestRequestAutoRegistersClient(t *testing.T) {
	l := ledgertest.New()
	driver := l.AddDriver("0xD", models.DriverProfile{})
	ride := l.AddRide(driver, models.RideActive, "1")
	svc := newService(l)
	ctx := context.Background()

	receipt, err := svc.Request(ctx, ride, "0xabcdef99")
	require.NoError(t, err)
	assert.True(t, receipt.ClientRegistered)
	assert.Equal(t, uint64(1), receipt.ClientID)

	c, err := l.Client(ctx, receipt.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Client 0xabcd", c.Name)

	again, err := svc.Request(ctx, ride, "0xABCDEF99")
	require.NoError(t, err)
	assert.False(t, again.ClientRegistered)
	assert.Equal(t, 1, l.Calls("RegisterClient"))
}

func TestLifecycle(t *testing.T) {
	l := ledgertest.New()
	driver := l.AddDriver("0xD", models.DriverProfile{})
	ride := l.AddRide(driver, models.RideActive, "1")
	svc := newService(l)
	ctx := context.Background()

	rq, err := svc.Request(ctx, ride, "0xC")
	require.NoError(t, err)
	require.NoError(t, svc.Accept(ctx, "0xD", ride, rq.RequestID))
	require.NoError(t, svc.Start(ctx, "0xD", ride))
	require.NoError(t, svc.Complete(ctx, "0xD", ride))

	count, err := svc.PassengerCount(ctx, ride)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	clientID, list, err := svc.ForClientAccount(ctx, "0xc")
	require.NoError(t, err)
	assert.Equal(t, rq.ClientID, clientID)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsPassenger)
	assert.True(t, list[0].PaymentPending)
	assert.False(t, list[0].IsPaid)
	assert.Equal(t, models.RequestAccepted, list[0].RequestStatus)

	err = svc.Cancel(ctx, "0xD", ride)
	assert.Error(t, err, "completed ride cannot be canceled")
	assert.ErrorIs(t, svc.Start(ctx, "", ride), models.ErrValidation)
}

func TestCancelRequestRequiresRegisteredClient(t *testing.T) {
	l := ledgertest.New()
	driver := l.AddDriver("0xD", models.DriverProfile{})
	ride := l.AddRide(driver, models.RideActive, "1")
	svc := newService(l)
	ctx := context.Background()

	assert.ErrorIs(t, svc.CancelRequest(ctx, "0xnobody", ride), models.ErrClientNotFound)

	_, err := svc.Request(ctx, ride, "0xC")
	require.NoError(t, err)
	require.NoError(t, svc.CancelRequest(ctx, "0xC", ride))

	state, err := svc.RequestStatus(ctx, ride, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCanceled, state.RequestStatus)
}

func TestClientRequestsToleratesFailingRides(t *testing.T) {
	l := ledgertest.New()
	driver := l.AddDriver("0xD", models.DriverProfile{})
	client := l.AddClient("0xC", models.ClientProfile{})
	other := l.AddClient("0xO", models.ClientProfile{})
	r1 := l.AddRide(driver, models.RideActive, "1")
	r2 := l.AddRide(driver, models.RideActive, "1")
	r3 := l.AddRide(driver, models.RideActive, "1")
	l.AddRequest(r1, client, models.RequestPending)
	l.AddRequest(r2, client, models.RequestPending)
	l.AddRequest(r3, other, models.RequestPending)
	l.AddRequest(r3, client, models.RequestRejected)
	l.FailOn("RideRequestIDs", r2, errors.New("timeout"))

	got, err := newService(l).ClientRequests(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, r1, got[0].RideID)
	assert.Equal(t, models.RequestRejected, got[1].Status)
}

func TestListingsAndDirectory(t *testing.T) {
	l := ledgertest.New()
	driver := l.AddDriver("0xD", models.DriverProfile{})
	l.AddRide(driver, models.RideActive, "1")
	l.AddRide(driver, models.RideCanceled, "1")
	svc := newService(l)
	ctx := context.Background()

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	mine, err := svc.ForDriver(ctx, driver)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	stats, err := svc.DriverStats(ctx, driver)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.ActiveRides)

	_, err = svc.NearbyDrivers(ctx, 91, 0, 5000)
	assert.ErrorIs(t, err, models.ErrValidation)

	l.NotReady = true
	_, err = svc.Active(ctx)
	assert.ErrorIs(t, err, models.ErrNotInitialized)
}
