package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/ledger/ledgertest"
	"github.com/example/chainride/internal/models"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRegistrar(l *ledgertest.Ledger) (*Resolver, *Registrar) {
	res := NewResolver(l, discard())
	return res, NewRegistrar(l, res, discard())
}

func TestResolveDirectLookup(t *testing.T) {
	l := ledgertest.New()
	id := l.AddDriver("0xDriver", models.DriverProfile{Name: "d"})

	res := NewResolver(l, discard())
	got, found, err := res.Resolve(context.Background(), models.RoleDriver, "0xdriver")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)
	assert.Zero(t, l.Calls("MemberCount"), "direct hit must not scan")
}

func TestResolveFallsBackToCaseInsensitiveScan(t *testing.T) {
	l := ledgertest.New()
	l.DirectLookup = false
	l.AddClient("0xaaa", models.ClientProfile{})
	want := l.AddClient("0xBbB", models.ClientProfile{})

	res := NewResolver(l, discard())
	got, found, err := res.Resolve(context.Background(), models.RoleClient, "0XBBB")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, l.Calls("MemberCount"))
}

func TestResolveScanSkipsFailingCandidate(t *testing.T) {
	l := ledgertest.New()
	l.DirectLookup = false
	l.AddClient("0x111", models.ClientProfile{})
	want := l.AddClient("0x222", models.ClientProfile{})
	l.FailOn("Client", 1, errors.New("rpc timeout"))

	got, found, err := NewResolver(l, discard()).Resolve(context.Background(), models.RoleClient, "0x222")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestResolveAbsentIsNotAnError(t *testing.T) {
	l := ledgertest.New()
	l.AddClient("0x111", models.ClientProfile{})

	id, found, err := NewResolver(l, discard()).Resolve(context.Background(), models.RoleClient, "0x999")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, id)
}

func TestResolveNotInitialized(t *testing.T) {
	l := ledgertest.New()
	l.NotReady = true

	_, _, err := NewResolver(l, discard()).Resolve(context.Background(), models.RoleClient, "0x1")
	assert.ErrorIs(t, err, models.ErrNotInitialized)
}

func TestRegisterTwiceReturnsSameID(t *testing.T) {
	l := ledgertest.New()
	for i := 0; i < 6; i++ {
		l.AddClient("0xfiller"+string(rune('a'+i)), models.ClientProfile{})
	}
	_, reg := newRegistrar(l)
	ctx := context.Background()

	first, err := reg.RegisterClient(ctx, "0xAAA", models.ClientProfile{Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), first.ID)
	assert.False(t, first.AlreadyRegistered)

	second, err := reg.RegisterClient(ctx, "0xAAA", models.ClientProfile{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), second.ID)
	assert.True(t, second.AlreadyRegistered)
	assert.Equal(t, 1, l.Calls("RegisterClient"))
}

func TestRegisterAppliesDefaults(t *testing.T) {
	l := ledgertest.New()
	_, reg := newRegistrar(l)

	r, err := reg.RegisterDriver(context.Background(), "0xD", models.DriverProfile{Name: "Dee"})
	require.NoError(t, err)

	d, err := l.Driver(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dee", d.Name)
	assert.Equal(t, "driver@example.com", d.Email)
	assert.Equal(t, DefaultPhone, d.Phone)
	assert.Equal(t, "Default Car", d.CarModel)
	assert.Equal(t, "ABC123", d.LicensePlate)
	assert.Equal(t, "Black", d.CarColor)
}

// raceLedger registers the account on behalf of a competing caller right
// before the create call fails.
type raceLedger struct {
	*ledgertest.Ledger
	lookups int
}

func (r *raceLedger) MemberIDByAccount(ctx context.Context, role models.Role, account string) (uint64, error) {
	r.lookups++
	if r.lookups == 1 {
		return 0, nil
	}
	return r.Ledger.MemberIDByAccount(ctx, role, account)
}

func (r *raceLedger) MemberCount(context.Context, models.Role) (uint64, error) { return 0, nil }

func (r *raceLedger) RegisterClient(ctx context.Context, account string, p models.ClientProfile) (uint64, error) {
	r.Ledger.AddClient(account, p)
	return 0, ledger.NewCallError("registerClient", errors.New("VM Exception while processing transaction: revert Client already registered"))
}

func TestRegisterRaceResolvesToExisting(t *testing.T) {
	l := &raceLedger{Ledger: ledgertest.New()}
	res := NewResolver(l, discard())
	reg := NewRegistrar(l, res, discard())

	r, err := reg.RegisterClient(context.Background(), "0xRace", models.ClientProfile{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.ID)
	assert.True(t, r.AlreadyRegistered)
}

type noEventLedger struct{ *ledgertest.Ledger }

func (noEventLedger) RegisterDriver(context.Context, string, models.DriverProfile) (uint64, error) {
	return 0, ledger.ErrEventMissing
}

func TestRegisterMissingEventFails(t *testing.T) {
	l := noEventLedger{ledgertest.New()}
	res := NewResolver(l, discard())

	_, err := NewRegistrar(l, res, discard()).RegisterDriver(context.Background(), "0xD", models.DriverProfile{})
	assert.ErrorIs(t, err, models.ErrRegistrationFailed)
}

func TestAutoClientProfile(t *testing.T) {
	p := AutoClientProfile("0xabcdef0123")
	assert.Equal(t, "Client 0xabcd", p.Name)
	assert.Equal(t, "client_0xabcd@example.com", p.Email)
}

func TestProfilesUpdateRequiresRegistration(t *testing.T) {
	l := ledgertest.New()
	res := NewResolver(l, discard())
	profiles := NewProfiles(l, res, discard())
	ctx := context.Background()

	_, err := profiles.UpdateClient(ctx, "0xnobody", models.ClientProfile{Name: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	l.AddClient("0xC", models.ClientProfile{Name: "old"})
	c, err := profiles.UpdateClient(ctx, "0xc", models.ClientProfile{Name: "new", Email: "n@e.com"})
	require.NoError(t, err)
	assert.Equal(t, "new", c.Name)
}

func TestProfilesDriversSkipsFailures(t *testing.T) {
	l := ledgertest.New()
	l.AddDriver("0x1", models.DriverProfile{})
	l.AddDriver("0x2", models.DriverProfile{})
	l.FailOn("Driver", 1, errors.New("boom"))

	drivers, err := NewProfiles(l, NewResolver(l, discard()), discard()).Drivers(context.Background())
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, uint64(2), drivers[0].ID)
}
