package eth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
)

const testABI = `[
  {"type":"function","name":"confirmRide","stateMutability":"payable","inputs":[{"name":"rideId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"rateDriver","inputs":[{"name":"rideId","type":"uint256"},{"name":"score","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"rides","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
    {"name":"id","type":"uint256"},{"name":"driverId","type":"uint256"},
    {"name":"startLocation","type":"string"},{"name":"destination","type":"string"},
    {"name":"availableSeats","type":"uint256"},{"name":"price","type":"uint256"},
    {"name":"status","type":"uint8"},{"name":"departureTime","type":"uint256"}]},
  {"type":"event","name":"RideCreated","anonymous":false,"inputs":[
    {"name":"rideId","type":"uint256","indexed":true},{"name":"driverId","type":"uint256","indexed":false}]}
]`

const contractHex = "0x00000000000000000000000000000000000000aa"

func testArtifact(t *testing.T) artifact {
	t.Helper()
	art, err := parseArtifact([]byte(`{"abi":` + testABI + `,"networks":{"5777":{"address":"` + contractHex + `"}}}`))
	require.NoError(t, err)
	return art
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestArtifactAddress(t *testing.T) {
	art := testArtifact(t)

	addr, err := art.address("5777", "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(contractHex), addr)

	addr, err = art.address("1", "0x00000000000000000000000000000000000000bb")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000bb"), addr)

	_, err = art.address("1", "")
	assert.ErrorContains(t, err, "not deployed on network 1")

	_, err = art.address("5777", "nope")
	assert.Error(t, err)
}

func TestParseArtifactRejectsMissingABI(t *testing.T) {
	_, err := parseArtifact([]byte(`{"networks":{}}`))
	assert.Error(t, err)
}

func TestPack(t *testing.T) {
	art := testArtifact(t)

	_, err := pack(art.ABI, "confirmRide", uint64(3))
	require.NoError(t, err)

	_, err = pack(art.ABI, "confirmRide", uint64(2), uint64(3))
	assert.ErrorIs(t, err, ledger.ErrArityMismatch)
	assert.True(t, ledger.IsArityMismatch(err))

	_, err = pack(art.ABI, "getNearbyDrivers", int64(1), int64(2), uint64(5000))
	assert.ErrorIs(t, err, ledger.ErrUnsupported)

	_, err = pack(art.ABI, "rateDriver", uint64(1), uint8(5))
	assert.NoError(t, err)
}

func TestCoerce(t *testing.T) {
	u8, _ := abi.NewType("uint8", "", nil)
	u256, _ := abi.NewType("uint256", "", nil)
	i256, _ := abi.NewType("int256", "", nil)

	v, err := coerce(u8, uint64(4))
	require.NoError(t, err)
	assert.Equal(t, uint8(4), v)

	v, err = coerce(u256, uint64(4))
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(4).Cmp(v.(*big.Int)))

	v, err = coerce(i256, int64(-37123456))
	require.NoError(t, err)
	assert.Equal(t, 0, big.NewInt(-37123456).Cmp(v.(*big.Int)))

	_, err = coerce(u8, new(big.Int).Lsh(big.NewInt(1), 70))
	assert.Error(t, err)
}

func TestRideRecordDecoding(t *testing.T) {
	art := testArtifact(t)
	price, _ := new(big.Int).SetString("500000000000000000", 10)
	out, err := art.ABI.Methods["rides"].Outputs.Pack(
		big.NewInt(42), big.NewInt(7), "Downtown", "Airport", big.NewInt(3), price, uint8(2), big.NewInt(1700000000))
	require.NoError(t, err)

	m := map[string]any{}
	require.NoError(t, art.ABI.UnpackIntoMap(m, "rides", out))
	ride := rideFrom(record(m))

	assert.Equal(t, uint64(42), ride.ID)
	assert.Equal(t, uint64(7), ride.DriverID)
	assert.Equal(t, "Airport", ride.Destination)
	assert.Equal(t, uint64(3), ride.AvailableSeats)
	assert.Equal(t, "0.5", ride.Price.String())
	assert.Equal(t, models.RideCompleted, ride.Status)
	assert.Equal(t, int64(1700000000), ride.DepartureTime.Unix())
}

func TestStatusDecoding(t *testing.T) {
	assert.Equal(t, models.RideCompleted, rideStatus("Completed"))
	assert.Equal(t, models.RideInProgress, rideStatus("InProgress"))
	assert.Equal(t, models.RideCanceled, rideStatus("cancelled"))
	assert.Equal(t, models.RideActive, rideStatus(uint8(0)))
	assert.Equal(t, models.RequestAccepted, requestStatus("accepted"))
	assert.Equal(t, models.RequestRejected, requestStatus(uint8(2)))
	assert.Equal(t, models.RequestStatus("unknown"), requestStatus(uint8(9)))
}

func TestEventUint(t *testing.T) {
	art := testArtifact(t)
	contract := common.HexToAddress(contractHex)
	ev := art.ABI.Events["RideCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(7))
	require.NoError(t, err)

	lg := &types.Log{
		Address: contract,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(42))},
		Data:    data,
	}
	foreign := &types.Log{Address: common.HexToAddress("0x01"), Topics: lg.Topics, Data: data}

	receipt := &types.Receipt{Logs: []*types.Log{foreign, lg}}
	id, err := eventUint(art.ABI, contract, receipt, "RideCreated", "rideId")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	driver, err := eventUint(art.ABI, contract, receipt, "RideCreated", "driverId")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), driver)

	_, err = eventUint(art.ABI, contract, &types.Receipt{Logs: []*types.Log{foreign}}, "RideCreated", "rideId")
	assert.ErrorIs(t, err, ledger.ErrEventMissing)

	_, err = eventUint(art.ABI, contract, receipt, "RatingSubmitted", "ratingId")
	assert.ErrorIs(t, err, ledger.ErrEventMissing)
}

type dataErr struct{ data string }

func (e dataErr) Error() string          { return "execution reverted" }
func (e dataErr) ErrorData() interface{} { return e.data }

func TestClassifyDecodesRevertData(t *testing.T) {
	strTy, _ := abi.NewType("string", "", nil)
	payload, err := abi.Arguments{{Type: strTy}}.Pack("Not a passenger")
	require.NoError(t, err)
	raw := append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)

	err = classify("confirmRide", dataErr{data: hexutil.Encode(raw)})
	var ce *ledger.CallError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Reverted)
	assert.Equal(t, "Not a passenger", ce.Reason)
	assert.Equal(t, "Not a passenger", ledger.RevertReason(err))
}

func TestClassifyGanacheMessage(t *testing.T) {
	err := classify("confirmRide", errors.New("VM Exception while processing transaction: revert Ride not completed"))
	assert.Equal(t, "Ride not completed", ledger.RevertReason(err))
}

func TestNotReadyUntilConnected(t *testing.T) {
	c := New(Config{ArtifactPath: filepath.Join(t.TempDir(), "missing.json"), ConnectAttempts: 2, ConnectBackoff: time.Millisecond}, discard())
	assert.ErrorIs(t, c.Ready(), models.ErrNotInitialized)

	err := c.Connect(context.Background())
	assert.ErrorContains(t, err, "giving up after 2 attempts")
	assert.ErrorIs(t, c.Ready(), models.ErrNotInitialized)

	_, err = c.Ride(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrNotInitialized)
	_, err = c.PaymentInputs(context.Background())
	assert.ErrorIs(t, err, models.ErrNotInitialized)
}

func TestPaymentInputsFromABI(t *testing.T) {
	art := testArtifact(t)
	c := New(Config{}, discard())
	c.state.Store(&binding{abi: art.ABI, address: common.HexToAddress(contractHex)})

	n, err := c.PaymentInputs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c.state.Store(&binding{abi: abi.ABI{Methods: map[string]abi.Method{}}})
	_, err = c.PaymentInputs(context.Background())
	assert.ErrorIs(t, err, ledger.ErrUnsupported)
}

func TestLoadArtifactFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ChainRideContract.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"abi":`+testABI+`,"networks":{}}`), 0o600))
	art, err := loadArtifact(path)
	require.NoError(t, err)
	assert.Contains(t, art.ABI.Methods, "rides")
	assert.Empty(t, art.Networks)
}
