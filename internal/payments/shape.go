package payments

import (
	"context"
	"errors"
	"math/big"

	"github.com/example/chainride/internal/ledger"
)

// CallShape selects one of the two known forms of the payment call.
type CallShape int

const (
	ShapeUnresolved CallShape = iota
	// ShapeByRide is confirmRide(rideId).
	ShapeByRide
	// ShapeByClientAndRide is confirmRide(clientId, rideId).
	ShapeByClientAndRide
	// ShapeMissing means the contract declares no payment function.
	ShapeMissing
)

func (s CallShape) String() string {
	switch s {
	case ShapeByRide:
		return "by_ride"
	case ShapeByClientAndRide:
		return "by_client_and_ride"
	case ShapeMissing:
		return "missing"
	default:
		return "unresolved"
	}
}

func (s CallShape) alternate() CallShape {
	if s == ShapeByClientAndRide {
		return ShapeByRide
	}
	return ShapeByClientAndRide
}

type call struct {
	account  string
	clientID uint64
	rideID   uint64
	value    *big.Int
}

func (s CallShape) invoke(ctx context.Context, p ledger.Payer, c call) (string, error) {
	if s == ShapeByClientAndRide {
		return p.ConfirmByClientAndRide(ctx, c.account, c.clientID, c.rideID, c.value)
	}
	return p.ConfirmByRide(ctx, c.account, c.rideID, c.value)
}

// resolveShape inspects the declared payment function. ok is false when the
// answer is not definitive and should not be cached.
func resolveShape(ctx context.Context, p ledger.Payer) (shape CallShape, ok bool) {
	n, err := p.PaymentInputs(ctx)
	switch {
	case errors.Is(err, ledger.ErrUnsupported):
		return ShapeMissing, true
	case err != nil:
		return ShapeByRide, false
	case n == 1:
		return ShapeByRide, true
	case n == 2:
		return ShapeByClientAndRide, true
	default:
		return ShapeByRide, false
	}
}
