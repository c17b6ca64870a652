// Package payments settles ride payments against the ledger. The payment
// function's parameter shape differs between contract revisions, so the
// reconciler discovers it, retries the other shape on an arity mismatch
// and, as a last resort, records the payment locally.
//
// A local record is evidence that the flow completed, not that funds moved.
// Such records are never replayed onto the ledger; operators audit them
// through the fallback audit job.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/money"
	"github.com/example/chainride/internal/observability"
	"github.com/example/chainride/internal/ridestate"
	"github.com/example/chainride/internal/storage"
)

// Settlement paths.
const (
	PathLedger    = "ledger"
	PathAlternate = "alternate"
	PathLocal     = "local"
)

type Resolver interface {
	Resolve(ctx context.Context, role models.Role, account string) (uint64, bool, error)
}

type StateSource interface {
	Aggregate(ctx context.Context, rideID uint64, clientID *uint64) (ridestate.Result, error)
}

type Receipt struct {
	TransactionRef string `json:"transactionHash"`
	Path           string `json:"path"`
	RideID         uint64 `json:"rideId"`
	ClientID       uint64 `json:"clientId"`
}

// Eligibility is the state checked before a payment is attempted.
type Eligibility struct {
	ClientID      uint64                  `json:"clientId"`
	Ride          models.Ride             `json:"ride"`
	PaymentStatus ridestate.PaymentStatus `json:"paymentStatus"`
}

type Options struct {
	// LocalFallback enables the local record path. Without it an exhausted
	// ledger path fails with models.ErrPaymentFailed.
	LocalFallback bool
	Now           func() time.Time
}

type Reconciler struct {
	payer    ledger.Payer
	resolver Resolver
	state    StateSource
	store    storage.PaymentStore
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	shape CallShape
}

func NewReconciler(payer ledger.Payer, resolver Resolver, state StateSource, store storage.PaymentStore, opts Options, logger *slog.Logger) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		payer:    payer,
		resolver: resolver,
		state:    state,
		store:    store,
		opts:     opts,
		logger:   logger.With("component", "payments"),
	}
}

// CheckEligibility runs the payment preconditions in order and returns the
// first that fails.
func (r *Reconciler) CheckEligibility(ctx context.Context, rideID uint64, account string) (Eligibility, error) {
	clientID, found, err := r.resolver.Resolve(ctx, models.RoleClient, account)
	if err != nil {
		return Eligibility{}, err
	}
	if !found {
		return Eligibility{}, models.ErrClientNotFound
	}

	res, err := r.state.Aggregate(ctx, rideID, &clientID)
	if err != nil {
		return Eligibility{ClientID: clientID}, err
	}
	view := res.View
	el := Eligibility{ClientID: clientID, Ride: view.Ride, PaymentStatus: view.Client.PaymentStatus}

	if view.Status != models.RideCompleted {
		return el, fmt.Errorf("%w: status is %s", models.ErrRideNotCompleted, view.Status)
	}
	if !view.Client.IsPassenger {
		return el, models.ErrNotAPassenger
	}
	if view.Client.PaymentStatus.Paid {
		return el, models.ErrAlreadyPaid
	}
	return el, nil
}

// Pay settles a completed ride for the client behind account. Ride
// preconditions are checked before the amount.
func (r *Reconciler) Pay(ctx context.Context, rideID uint64, account string, price decimal.Decimal) (Receipt, error) {
	el, err := r.CheckEligibility(ctx, rideID, account)
	if err != nil {
		return Receipt{}, err
	}
	if err := money.Positive(price); err != nil {
		return Receipt{}, err
	}
	wei, err := money.ToWei(price)
	if err != nil {
		return Receipt{}, err
	}

	c := call{account: account, clientID: el.ClientID, rideID: rideID, value: wei}
	shape := r.callShape(ctx)
	log := r.logger.With("ride_id", rideID, "client_id", el.ClientID)

	if shape == ShapeMissing {
		log.Warn("payment function not declared by contract, recording locally")
		return r.recordLocal(ctx, c, price, ledger.ErrUnsupported)
	}

	ref, err := shape.invoke(ctx, r.payer, c)
	if err == nil {
		return r.settled(log, c, ref, PathLedger, shape), nil
	}
	if !ledger.IsArityMismatch(err) {
		return Receipt{}, r.failed(log, err)
	}

	alt := shape.alternate()
	log.Info("payment call shape rejected, retrying", "shape", shape, "alternate", alt, "error", err)
	ref, altErr := alt.invoke(ctx, r.payer, c)
	if altErr == nil {
		return r.settled(log, c, ref, PathAlternate, alt), nil
	}
	if errors.Is(altErr, models.ErrNotInitialized) {
		return Receipt{}, r.failed(log, altErr)
	}
	log.Warn("both payment call shapes failed", "error", altErr)
	return r.recordLocal(ctx, c, price, errors.Join(err, altErr))
}

func (r *Reconciler) callShape(ctx context.Context) CallShape {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shape != ShapeUnresolved {
		return r.shape
	}
	shape, ok := resolveShape(ctx, r.payer)
	if ok {
		r.shape = shape
	}
	return shape
}

func (r *Reconciler) settled(log *slog.Logger, c call, ref, path string, shape CallShape) Receipt {
	r.mu.Lock()
	r.shape = shape
	r.mu.Unlock()
	observability.Payments.WithLabelValues(path).Inc()
	log.Info("payment settled", "path", path, "shape", shape, "tx", ref)
	return Receipt{TransactionRef: ref, Path: path, RideID: c.rideID, ClientID: c.clientID}
}

func (r *Reconciler) failed(log *slog.Logger, err error) error {
	observability.Payments.WithLabelValues("failed").Inc()
	log.Error("payment failed", "error", err)
	if errors.Is(err, models.ErrNotInitialized) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", models.ErrPaymentFailed, ledger.RevertReason(err), err)
}

func (r *Reconciler) recordLocal(ctx context.Context, c call, price decimal.Decimal, cause error) (Receipt, error) {
	log := r.logger.With("ride_id", c.rideID, "client_id", c.clientID)
	if !r.opts.LocalFallback || r.store == nil {
		return Receipt{}, r.failed(log, cause)
	}

	// The ride and client must still resolve before local evidence is written.
	if _, err := r.state.Aggregate(ctx, c.rideID, nil); err != nil {
		return Receipt{}, err
	}
	clientID, found, err := r.resolver.Resolve(ctx, models.RoleClient, c.account)
	if err != nil {
		return Receipt{}, err
	}
	if !found || clientID != c.clientID {
		return Receipt{}, models.ErrClientNotFound
	}

	now := r.opts.Now().UTC()
	ref := fmt.Sprintf("local-payment-%d-%d-%d", now.UnixMilli(), c.rideID, c.clientID)
	rec := models.FallbackPayment{
		RideID:         c.rideID,
		ClientID:       c.clientID,
		PayerAccount:   strings.ToLower(c.account),
		Amount:         price,
		TransactionRef: ref,
		RecordedAt:     now,
	}
	if err := r.store.Save(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return Receipt{}, models.ErrAlreadyPaid
		}
		return Receipt{}, fmt.Errorf("record fallback payment: %w", err)
	}
	observability.Payments.WithLabelValues(PathLocal).Inc()
	log.Warn("payment recorded locally, ledger not settled", "tx", ref, "cause", cause)
	return Receipt{TransactionRef: ref, Path: PathLocal, RideID: c.rideID, ClientID: c.clientID}, nil
}
