package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsArityMismatch(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", fmt.Errorf("confirmRide: %w", ErrArityMismatch), true},
		{"web3 message", errors.New("Invalid number of parameters for \"confirmRide\". Got 1 expected 2!"), true},
		{"abi pack", errors.New("argument count mismatch: got 2 for 1"), true},
		{"generic", errors.New("wrong number of arguments"), true},
		{"revert", errors.New("VM Exception while processing transaction: revert Ride not completed"), false},
		{"network", errors.New("dial tcp 127.0.0.1:8545: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsArityMismatch(tt.err))
		})
	}
}

func TestRevertReason(t *testing.T) {
	err := NewCallError("confirmRide", errors.New("VM Exception while processing transaction: revert Already paid"))
	assert.True(t, err.Reverted)
	assert.Equal(t, "Already paid", err.Reason)
	assert.Equal(t, "Already paid", RevertReason(fmt.Errorf("pay: %w", err)))

	geth := NewCallError("startRide", errors.New("execution reverted: Only driver can start"))
	assert.Equal(t, "Only driver can start", geth.Reason)

	plain := errors.New("connection reset")
	assert.Equal(t, "connection reset", RevertReason(plain))
	assert.False(t, NewCallError("rides", plain).Reverted)
}
