package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/example/chainride/internal/ledger"
)

const paymentMethod = "confirmRide"

func (c *Client) PaymentInputs(context.Context) (int, error) {
	b, err := c.bound()
	if err != nil {
		return 0, err
	}
	m, ok := b.abi.Methods[paymentMethod]
	if !ok {
		return 0, fmt.Errorf("%s: %w", paymentMethod, ledger.ErrUnsupported)
	}
	return len(m.Inputs), nil
}

func (c *Client) ConfirmByRide(ctx context.Context, account string, rideID uint64, value *big.Int) (string, error) {
	return c.pay(ctx, account, value, rideID)
}

func (c *Client) ConfirmByClientAndRide(ctx context.Context, account string, clientID, rideID uint64, value *big.Int) (string, error) {
	return c.pay(ctx, account, value, clientID, rideID)
}

func (c *Client) pay(ctx context.Context, account string, value *big.Int, args ...any) (string, error) {
	receipt, err := c.transact(ctx, account, c.cfg.PaymentGas, value, paymentMethod, args...)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}
