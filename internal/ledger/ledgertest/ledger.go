// Package ledgertest provides an in-memory ledger for tests. It follows the
// contract's observable behaviour closely enough to exercise reconciliation
// paths, and lets tests inject failures per method and entity id.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/money"
)

// Totals shapes for DriverRatingTotals.
const (
	TotalsPair  = "pair"
	TotalsKeyed = "keyed"
)

var _ ledger.Ledger = (*Ledger)(nil)

type Ledger struct {
	mu sync.Mutex

	NotReady bool
	// DirectLookup enables the addressToId index. When false the lookup
	// reports ledger.ErrUnsupported.
	DirectLookup bool
	// DeclaredPaymentInputs is what PaymentInputs reports. Zero means the
	// payment function is absent.
	DeclaredPaymentInputs int
	// PaymentArity is the parameter count the payment call actually accepts.
	PaymentArity int
	TotalsShape  string
	Now          time.Time

	drivers    []models.Driver
	clients    []models.Client
	rides      []models.Ride
	requests   []models.RideRequest
	passengers []models.Passenger
	ratings    []models.Rating

	ridePassengers map[uint64][]uint64
	rideRequests   map[uint64][]uint64

	errs  map[string]error
	calls map[string]int
	txSeq int
}

func New() *Ledger {
	return &Ledger{
		DirectLookup:          true,
		DeclaredPaymentInputs: 1,
		PaymentArity:          1,
		TotalsShape:           TotalsPair,
		Now:                   time.Unix(1700000000, 0).UTC(),
		ridePassengers:        map[uint64][]uint64{},
		rideRequests:          map[uint64][]uint64{},
		errs:                  map[string]error{},
		calls:                 map[string]int{},
	}
}

// FailOn makes method fail with err. A non-zero id limits the failure to
// that entity.
func (l *Ledger) FailOn(method string, id uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[failKey(method, id)] = err
}

// Calls returns how many times method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func failKey(method string, id uint64) string {
	if id == 0 {
		return method
	}
	return fmt.Sprintf("%s:%d", method, id)
}

// enter records the call and returns any injected failure. Callers hold mu.
func (l *Ledger) enter(method string, id uint64) error {
	l.calls[method]++
	if l.NotReady {
		return models.ErrNotInitialized
	}
	if err, ok := l.errs[failKey(method, id)]; ok {
		return err
	}
	if err, ok := l.errs[method]; ok {
		return err
	}
	return nil
}

func reverted(method, reason string) error {
	return ledger.NewCallError(method, errors.New("VM Exception while processing transaction: revert "+reason))
}

// Seeding helpers.

func (l *Ledger) AddDriver(account string, p models.DriverProfile) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addDriver(account, p)
}

func (l *Ledger) addDriver(account string, p models.DriverProfile) uint64 {
	id := uint64(len(l.drivers) + 1)
	l.drivers = append(l.drivers, models.Driver{
		ID: id, WalletAddress: account, Name: p.Name, Email: p.Email, Phone: p.Phone,
		CarModel: p.CarModel, LicensePlate: p.LicensePlate, CarColor: p.CarColor,
		IsActive: true, Timestamp: l.Now,
	})
	return id
}

func (l *Ledger) AddClient(account string, p models.ClientProfile) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addClient(account, p)
}

func (l *Ledger) addClient(account string, p models.ClientProfile) uint64 {
	id := uint64(len(l.clients) + 1)
	l.clients = append(l.clients, models.Client{
		ID: id, WalletAddress: account, Name: p.Name, Email: p.Email, Phone: p.Phone,
		IsActive: true, Timestamp: l.Now,
	})
	return id
}

// AddRide seeds a ride owned by driverID with the given status and price in ether.
func (l *Ledger) AddRide(driverID uint64, status models.RideStatus, price string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, _ := money.Parse(price)
	wei, _ := money.ToWei(d)
	var account string
	if driverID > 0 && int(driverID) <= len(l.drivers) {
		account = l.drivers[driverID-1].WalletAddress
	}
	id := uint64(len(l.rides) + 1)
	l.rides = append(l.rides, models.Ride{
		ID: id, DriverID: driverID, DriverWalletAddress: account,
		StartLocation: "A", Destination: "B", AvailableSeats: 3,
		Price: money.FromWei(wei), PriceWei: wei, Status: status,
		CreatedAt: l.Now, DepartureTime: l.Now.Add(time.Hour),
	})
	return id
}

// PadRides appends canceled filler rides until the next id is next.
func (l *Ledger) PadRides(next uint64) {
	for uint64(len(l.rides)+1) < next {
		l.AddRide(0, models.RideCanceled, "0")
	}
}

func (l *Ledger) SetRideStatus(rideID uint64, status models.RideStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rides[rideID-1].Status = status
}

func (l *Ledger) AddRequest(rideID, clientID uint64, status models.RequestStatus) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addRequest(rideID, clientID, status)
}

func (l *Ledger) addRequest(rideID, clientID uint64, status models.RequestStatus) uint64 {
	id := uint64(len(l.requests) + 1)
	var account string
	if clientID > 0 && int(clientID) <= len(l.clients) {
		account = l.clients[clientID-1].WalletAddress
	}
	l.requests = append(l.requests, models.RideRequest{
		ID: id, RideID: rideID, ClientID: clientID, ClientWalletAddress: account,
		Status: status, RequestedAt: l.Now,
	})
	l.rideRequests[rideID] = append(l.rideRequests[rideID], id)
	return id
}

func (l *Ledger) AddPassenger(rideID, clientID uint64, paid bool) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addPassenger(rideID, clientID, paid)
}

func (l *Ledger) addPassenger(rideID, clientID uint64, paid bool) uint64 {
	id := uint64(len(l.passengers) + 1)
	var account string
	if clientID > 0 && int(clientID) <= len(l.clients) {
		account = l.clients[clientID-1].WalletAddress
	}
	l.passengers = append(l.passengers, models.Passenger{
		ID: id, RideID: rideID, ClientID: clientID, WalletAddress: account, Paid: paid,
	})
	l.ridePassengers[rideID] = append(l.ridePassengers[rideID], id)
	return id
}

// AddRawPassengerID appends an id to a ride's passenger list without a
// backing record.
func (l *Ledger) AddRawPassengerID(rideID, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ridePassengers[rideID] = append(l.ridePassengers[rideID], id)
}

func (l *Ledger) AddRating(rideID, clientID uint64, score uint8) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addRating(rideID, clientID, score)
}

func (l *Ledger) addRating(rideID, clientID uint64, score uint8) uint64 {
	id := uint64(len(l.ratings) + 1)
	var driverID uint64
	if rideID > 0 && int(rideID) <= len(l.rides) {
		driverID = l.rides[rideID-1].DriverID
	}
	l.ratings = append(l.ratings, models.Rating{
		ID: id, RideID: rideID, DriverID: driverID, ClientID: clientID, Score: score, Timestamp: l.Now,
	})
	return id
}

// PassengerPaid reports the ledger-side paid flag for a client on a ride.
func (l *Ledger) PassengerPaid(rideID, clientID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pid := range l.ridePassengers[rideID] {
		if p, ok := l.passenger(pid); ok && p.ClientID == clientID {
			return p.Paid
		}
	}
	return false
}

func (l *Ledger) driverByAccount(account string) uint64 {
	for _, d := range l.drivers {
		if strings.EqualFold(d.WalletAddress, account) {
			return d.ID
		}
	}
	return 0
}

func (l *Ledger) clientByAccount(account string) uint64 {
	for _, c := range l.clients {
		if strings.EqualFold(c.WalletAddress, account) {
			return c.ID
		}
	}
	return 0
}

func (l *Ledger) passenger(id uint64) (models.Passenger, bool) {
	if id == 0 || int(id) > len(l.passengers) {
		return models.Passenger{}, false
	}
	return l.passengers[id-1], true
}

func (l *Ledger) ride(id uint64) (*models.Ride, error) {
	if id == 0 || int(id) > len(l.rides) {
		return nil, models.ErrRideNotFound
	}
	return &l.rides[id-1], nil
}

func (l *Ledger) nextTx() string {
	l.txSeq++
	return fmt.Sprintf("0x%064x", l.txSeq)
}

// Registry

func (l *Ledger) Ready() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.NotReady {
		return models.ErrNotInitialized
	}
	return nil
}

func (l *Ledger) MemberCount(_ context.Context, role models.Role) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("MemberCount", 0); err != nil {
		return 0, err
	}
	if role == models.RoleDriver {
		return uint64(len(l.drivers)), nil
	}
	return uint64(len(l.clients)), nil
}

func (l *Ledger) MemberIDByAccount(_ context.Context, role models.Role, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("MemberIDByAccount", 0); err != nil {
		return 0, err
	}
	if !l.DirectLookup {
		return 0, ledger.ErrUnsupported
	}
	if role == models.RoleDriver {
		return l.driverByAccount(account), nil
	}
	return l.clientByAccount(account), nil
}

func (l *Ledger) Driver(_ context.Context, id uint64) (models.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Driver", id); err != nil {
		return models.Driver{}, err
	}
	if id == 0 || int(id) > len(l.drivers) {
		return models.Driver{}, models.ErrDriverNotFound
	}
	return l.drivers[id-1], nil
}

func (l *Ledger) Client(_ context.Context, id uint64) (models.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Client", id); err != nil {
		return models.Client{}, err
	}
	if id == 0 || int(id) > len(l.clients) {
		return models.Client{}, models.ErrClientNotFound
	}
	return l.clients[id-1], nil
}

func (l *Ledger) RegisterDriver(_ context.Context, account string, p models.DriverProfile) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RegisterDriver", 0); err != nil {
		return 0, err
	}
	if l.driverByAccount(account) != 0 {
		return 0, reverted("registerDriver", "Driver already registered")
	}
	return l.addDriver(account, p), nil
}

func (l *Ledger) RegisterClient(_ context.Context, account string, p models.ClientProfile) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RegisterClient", 0); err != nil {
		return 0, err
	}
	if l.clientByAccount(account) != 0 {
		return 0, reverted("registerClient", "Client already registered")
	}
	return l.addClient(account, p), nil
}

func (l *Ledger) UpdateDriver(_ context.Context, account string, p models.DriverProfile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("UpdateDriver", 0); err != nil {
		return err
	}
	id := l.driverByAccount(account)
	if id == 0 {
		return reverted("updateDriver", "Driver not registered")
	}
	d := &l.drivers[id-1]
	d.Name, d.Email, d.Phone = p.Name, p.Email, p.Phone
	d.CarModel, d.LicensePlate, d.CarColor = p.CarModel, p.LicensePlate, p.CarColor
	return nil
}

func (l *Ledger) UpdateClient(_ context.Context, account string, p models.ClientProfile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("UpdateClient", 0); err != nil {
		return err
	}
	id := l.clientByAccount(account)
	if id == 0 {
		return reverted("updateClient", "Client not registered")
	}
	c := &l.clients[id-1]
	c.Name, c.Email, c.Phone = p.Name, p.Email, p.Phone
	return nil
}

// RideReader

func (l *Ledger) Ride(_ context.Context, id uint64) (models.Ride, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Ride", id); err != nil {
		return models.Ride{}, err
	}
	r, err := l.ride(id)
	if err != nil {
		return models.Ride{}, err
	}
	out := *r
	if r.PriceWei != nil {
		out.PriceWei = new(big.Int).Set(r.PriceWei)
	}
	return out, nil
}

func (l *Ledger) RideCount(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RideCount", 0); err != nil {
		return 0, err
	}
	return uint64(len(l.rides)), nil
}

func (l *Ledger) ridesWhere(keep func(models.Ride) bool) []uint64 {
	var ids []uint64
	for _, r := range l.rides {
		if keep(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (l *Ledger) ActiveRideIDs(context.Context) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("ActiveRideIDs", 0); err != nil {
		return nil, err
	}
	return l.ridesWhere(func(r models.Ride) bool { return r.Status == models.RideActive }), nil
}

func (l *Ledger) DriverRideIDs(_ context.Context, driverID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("DriverRideIDs", driverID); err != nil {
		return nil, err
	}
	return l.ridesWhere(func(r models.Ride) bool { return r.DriverID == driverID }), nil
}

func (l *Ledger) ClientRideIDs(_ context.Context, clientID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("ClientRideIDs", clientID); err != nil {
		return nil, err
	}
	seen := map[uint64]bool{}
	var ids []uint64
	for _, rq := range l.requests {
		if rq.ClientID == clientID && !seen[rq.RideID] {
			seen[rq.RideID] = true
			ids = append(ids, rq.RideID)
		}
	}
	return ids, nil
}

func (l *Ledger) RideRequestIDs(_ context.Context, rideID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RideRequestIDs", rideID); err != nil {
		return nil, err
	}
	return append([]uint64(nil), l.rideRequests[rideID]...), nil
}

func (l *Ledger) RidePassengerIDs(_ context.Context, rideID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RidePassengerIDs", rideID); err != nil {
		return nil, err
	}
	return append([]uint64(nil), l.ridePassengers[rideID]...), nil
}

func (l *Ledger) RideRequest(_ context.Context, id uint64) (models.RideRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RideRequest", id); err != nil {
		return models.RideRequest{}, err
	}
	if id == 0 || int(id) > len(l.requests) {
		return models.RideRequest{}, models.ErrRequestNotFound
	}
	return l.requests[id-1], nil
}

func (l *Ledger) Passenger(_ context.Context, id uint64) (models.Passenger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Passenger", id); err != nil {
		return models.Passenger{}, err
	}
	p, ok := l.passenger(id)
	if !ok {
		return models.Passenger{}, models.ErrPassengerNotFound
	}
	return p, nil
}

// RideWriter

func (l *Ledger) CreateRide(_ context.Context, d models.RideDraft, priceWei *big.Int) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("CreateRide", 0); err != nil {
		return 0, err
	}
	driverID := l.driverByAccount(d.DriverAccount)
	if driverID == 0 {
		return 0, reverted("createRide", "Driver not registered")
	}
	id := uint64(len(l.rides) + 1)
	l.rides = append(l.rides, models.Ride{
		ID: id, DriverID: driverID, DriverWalletAddress: d.DriverAccount,
		StartLocation: d.StartLocation, Destination: d.Destination, AvailableSeats: d.AvailableSeats,
		Price: money.FromWei(priceWei), PriceWei: new(big.Int).Set(priceWei), Status: models.RideActive,
		CreatedAt: l.Now, DepartureTime: d.DepartureTime,
	})
	return id, nil
}

func (l *Ledger) RequestRide(_ context.Context, account string, rideID uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RequestRide", rideID); err != nil {
		return 0, err
	}
	clientID := l.clientByAccount(account)
	if clientID == 0 {
		return 0, reverted("requestRide", "Client not registered")
	}
	r, err := l.ride(rideID)
	if err != nil || r.Status != models.RideActive {
		return 0, reverted("requestRide", "Ride not available")
	}
	return l.addRequest(rideID, clientID, models.RequestPending), nil
}

func (l *Ledger) pendingRequest(method string, rideID, requestID uint64) (*models.RideRequest, error) {
	if requestID == 0 || int(requestID) > len(l.requests) || l.requests[requestID-1].RideID != rideID {
		return nil, reverted(method, "Request not found")
	}
	rq := &l.requests[requestID-1]
	if rq.Status != models.RequestPending {
		return nil, reverted(method, "Request not pending")
	}
	return rq, nil
}

func (l *Ledger) AcceptRequest(_ context.Context, _ string, rideID, requestID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("AcceptRequest", requestID); err != nil {
		return err
	}
	rq, err := l.pendingRequest("acceptRideRequest", rideID, requestID)
	if err != nil {
		return err
	}
	r, err := l.ride(rideID)
	if err != nil || r.AvailableSeats == 0 {
		return reverted("acceptRideRequest", "No seats available")
	}
	rq.Status = models.RequestAccepted
	r.AvailableSeats--
	l.addPassenger(rideID, rq.ClientID, false)
	return nil
}

func (l *Ledger) RejectRequest(_ context.Context, _ string, rideID, requestID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RejectRequest", requestID); err != nil {
		return err
	}
	rq, err := l.pendingRequest("rejectRideRequest", rideID, requestID)
	if err != nil {
		return err
	}
	rq.Status = models.RequestRejected
	return nil
}

func (l *Ledger) CancelRequest(_ context.Context, _ string, rideID, clientID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("CancelRequest", rideID); err != nil {
		return err
	}
	for _, id := range l.rideRequests[rideID] {
		rq := &l.requests[id-1]
		if rq.ClientID == clientID && rq.Status == models.RequestPending {
			rq.Status = models.RequestCanceled
			return nil
		}
	}
	return reverted("cancelRideRequest", "No pending request")
}

func (l *Ledger) transition(method string, rideID uint64, from, to models.RideStatus) error {
	r, err := l.ride(rideID)
	if err != nil {
		return reverted(method, "Ride does not exist")
	}
	if r.Status != from {
		return reverted(method, fmt.Sprintf("Ride is %s", r.Status))
	}
	r.Status = to
	return nil
}

func (l *Ledger) StartRide(_ context.Context, _ string, rideID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("StartRide", rideID); err != nil {
		return err
	}
	return l.transition("startRide", rideID, models.RideActive, models.RideInProgress)
}

func (l *Ledger) CompleteRide(_ context.Context, _ string, rideID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("CompleteRide", rideID); err != nil {
		return err
	}
	return l.transition("completeRide", rideID, models.RideInProgress, models.RideCompleted)
}

func (l *Ledger) CompleteRideForPassenger(_ context.Context, _ string, rideID, passengerID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("CompleteRideForPassenger", rideID); err != nil {
		return err
	}
	p, ok := l.passenger(passengerID)
	if !ok || p.RideID != rideID {
		return reverted("completeRideForPassenger", "Passenger not on ride")
	}
	return nil
}

func (l *Ledger) CancelRide(_ context.Context, _ string, rideID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("CancelRide", rideID); err != nil {
		return err
	}
	return l.transition("cancelRide", rideID, models.RideActive, models.RideCanceled)
}

// Payer

func (l *Ledger) PaymentInputs(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("PaymentInputs", 0); err != nil {
		return 0, err
	}
	if l.DeclaredPaymentInputs == 0 {
		return 0, ledger.ErrUnsupported
	}
	return l.DeclaredPaymentInputs, nil
}

func (l *Ledger) settle(method string, clientID, rideID uint64, value *big.Int) (string, error) {
	r, err := l.ride(rideID)
	if err != nil {
		return "", reverted(method, "Ride does not exist")
	}
	if r.Status != models.RideCompleted {
		return "", reverted(method, "Ride not completed")
	}
	if value == nil || r.PriceWei == nil || value.Cmp(r.PriceWei) < 0 {
		return "", reverted(method, "Insufficient payment")
	}
	for _, pid := range l.ridePassengers[rideID] {
		if pid == 0 || int(pid) > len(l.passengers) {
			continue
		}
		p := &l.passengers[pid-1]
		if p.ClientID != clientID {
			continue
		}
		if p.Paid {
			return "", reverted(method, "Already paid")
		}
		p.Paid = true
		return l.nextTx(), nil
	}
	return "", reverted(method, "Not a passenger")
}

func (l *Ledger) ConfirmByRide(_ context.Context, account string, rideID uint64, value *big.Int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("ConfirmByRide", rideID); err != nil {
		return "", err
	}
	if l.PaymentArity == 0 {
		return "", ledger.ErrUnsupported
	}
	if l.PaymentArity != 1 {
		return "", fmt.Errorf("Invalid number of parameters for \"confirmRide\". Got 1 expected %d", l.PaymentArity)
	}
	return l.settle("confirmRide", l.clientByAccount(account), rideID, value)
}

func (l *Ledger) ConfirmByClientAndRide(_ context.Context, _ string, clientID, rideID uint64, value *big.Int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("ConfirmByClientAndRide", rideID); err != nil {
		return "", err
	}
	if l.PaymentArity == 0 {
		return "", ledger.ErrUnsupported
	}
	if l.PaymentArity != 2 {
		return "", fmt.Errorf("confirmRide: %w", ledger.ErrArityMismatch)
	}
	return l.settle("confirmRide", clientID, rideID, value)
}

// RatingBook

func (l *Ledger) RateDriver(_ context.Context, account string, rideID uint64, score uint8) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RateDriver", rideID); err != nil {
		return 0, err
	}
	if score < 1 || score > 5 {
		return 0, reverted("rateDriver", "Invalid score")
	}
	clientID := l.clientByAccount(account)
	if clientID == 0 {
		return 0, reverted("rateDriver", "Client not registered")
	}
	if _, err := l.ride(rideID); err != nil {
		return 0, reverted("rateDriver", "Ride does not exist")
	}
	return l.addRating(rideID, clientID, score), nil
}

func (l *Ledger) Rating(_ context.Context, id uint64) (models.Rating, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Rating", id); err != nil {
		return models.Rating{}, err
	}
	if id == 0 || int(id) > len(l.ratings) {
		return models.Rating{}, models.ErrRatingNotFound
	}
	return l.ratings[id-1], nil
}

func (l *Ledger) ratingsWhere(keep func(models.Rating) bool) []uint64 {
	var ids []uint64
	for _, r := range l.ratings {
		if keep(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func (l *Ledger) DriverRatingIDs(_ context.Context, driverID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("DriverRatingIDs", driverID); err != nil {
		return nil, err
	}
	return l.ratingsWhere(func(r models.Rating) bool { return r.DriverID == driverID }), nil
}

func (l *Ledger) RideRatingIDs(_ context.Context, rideID uint64) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("RideRatingIDs", rideID); err != nil {
		return nil, err
	}
	return l.ratingsWhere(func(r models.Rating) bool { return r.RideID == rideID }), nil
}

func (l *Ledger) DriverRatingTotals(_ context.Context, driverID uint64) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("DriverRatingTotals", driverID); err != nil {
		return nil, err
	}
	total, count := big.NewInt(0), big.NewInt(0)
	for _, r := range l.ratings {
		if r.DriverID == driverID {
			total.Add(total, big.NewInt(int64(r.Score)))
			count.Add(count, big.NewInt(1))
		}
	}
	if l.TotalsShape == TotalsKeyed {
		return map[string]any{"0": total, "1": count}, nil
	}
	return []any{total, count}, nil
}

// Directory

func (l *Ledger) DriverStats(_ context.Context, driverID uint64) (models.DriverStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("DriverStats", driverID); err != nil {
		return models.DriverStats{}, err
	}
	if driverID == 0 || int(driverID) > len(l.drivers) {
		return models.DriverStats{}, models.ErrDriverNotFound
	}
	stats := models.DriverStats{DriverID: driverID}
	earned := big.NewInt(0)
	for _, r := range l.rides {
		if r.DriverID != driverID {
			continue
		}
		switch r.Status {
		case models.RideCompleted:
			stats.CompletedRides++
			for _, pid := range l.ridePassengers[r.ID] {
				if p, ok := l.passenger(pid); ok && p.Paid && r.PriceWei != nil {
					earned.Add(earned, r.PriceWei)
				}
			}
		case models.RideActive, models.RideInProgress:
			stats.ActiveRides++
		}
	}
	stats.TotalEarnings = money.FromWei(earned)
	return stats, nil
}

func (l *Ledger) NearbyDrivers(context.Context, float64, float64, uint64) ([]models.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("NearbyDrivers", 0); err != nil {
		return nil, err
	}
	var out []models.Driver
	for _, d := range l.drivers {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (l *Ledger) Accounts(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("Accounts", 0); err != nil {
		return nil, err
	}
	var out []string
	for _, d := range l.drivers {
		out = append(out, d.WalletAddress)
	}
	for _, c := range l.clients {
		out = append(out, c.WalletAddress)
	}
	return out, nil
}
