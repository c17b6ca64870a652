package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
)

// pack encodes a call, coercing integer arguments to the declared Solidity
// types. A wrong argument count is reported as ledger.ErrArityMismatch.
func pack(a abi.ABI, method string, args ...any) ([]byte, error) {
	m, ok := a.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s: %w", method, ledger.ErrUnsupported)
	}
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("%s: got %d arguments, declared %d: %w", method, len(args), len(m.Inputs), ledger.ErrArityMismatch)
	}
	coerced := make([]any, len(args))
	for i, arg := range args {
		v, err := coerce(m.Inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("%s argument %s: %w", method, m.Inputs[i].Name, err)
		}
		coerced[i] = v
	}
	data, err := a.Pack(method, coerced...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func coerce(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.UintTy:
		var n uint64
		switch x := v.(type) {
		case uint64:
			n = x
		case uint8:
			n = uint64(x)
		case *big.Int:
			if t.Size > 64 {
				return x, nil
			}
			if !x.IsUint64() {
				return nil, fmt.Errorf("%s overflows uint%d", x, t.Size)
			}
			n = x.Uint64()
		default:
			return v, nil
		}
		switch t.Size {
		case 8:
			return uint8(n), nil
		case 16:
			return uint16(n), nil
		case 32:
			return uint32(n), nil
		case 64:
			return n, nil
		default:
			return new(big.Int).SetUint64(n), nil
		}
	case abi.IntTy:
		x, ok := v.(int64)
		if !ok {
			return v, nil
		}
		switch t.Size {
		case 8:
			return int8(x), nil
		case 16:
			return int16(x), nil
		case 32:
			return int32(x), nil
		case 64:
			return x, nil
		default:
			return big.NewInt(x), nil
		}
	}
	return v, nil
}

// call runs a read-only method and returns its positional outputs.
func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	b, data, err := c.prepare(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := b.eth.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, nil)
	if err != nil {
		return nil, classify(method, err)
	}
	vals, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

// callRecord runs a getter that returns a named tuple.
func (c *Client) callRecord(ctx context.Context, method string, args ...any) (record, error) {
	b, data, err := c.prepare(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := b.eth.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, nil)
	if err != nil {
		return nil, classify(method, err)
	}
	m := map[string]any{}
	if err := b.abi.UnpackIntoMap(m, method, out); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return record(m), nil
}

func (c *Client) callUint(ctx context.Context, method string, args ...any) (uint64, error) {
	vals, err := c.call(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%s returned nothing", method)
	}
	return toUint64(vals[0]), nil
}

func (c *Client) callIDs(ctx context.Context, method string, args ...any) ([]uint64, error) {
	vals, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return toUint64s(vals[0]), nil
}

func (c *Client) prepare(method string, args ...any) (*binding, []byte, error) {
	b, err := c.bound()
	if err != nil {
		return nil, nil, err
	}
	data, err := pack(b.abi, method, args...)
	if err != nil {
		return nil, nil, err
	}
	return b, data, nil
}

type txArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Gas   hexutil.Uint64  `json:"gas"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data"`
}

// transact sends a transaction from a node-managed account and waits for
// its receipt.
func (c *Client) transact(ctx context.Context, from string, gas uint64, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	if !common.IsHexAddress(from) {
		return nil, models.Validationf("invalid account %q", from)
	}
	b, data, err := c.prepare(method, args...)
	if err != nil {
		return nil, err
	}
	tx := txArgs{From: common.HexToAddress(from), To: &b.address, Gas: hexutil.Uint64(gas), Data: data}
	if value != nil && value.Sign() > 0 {
		tx.Value = (*hexutil.Big)(value)
	}
	var hash common.Hash
	if err := b.rpc.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return nil, classify(method, err)
	}
	receipt, err := c.waitReceipt(ctx, b, hash)
	if err != nil {
		return nil, &ledger.CallError{Method: method, Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &ledger.CallError{Method: method, Reverted: true, Reason: "transaction reverted", Err: fmt.Errorf("tx %s failed", hash.Hex())}
	}
	c.logger.Debug("transaction mined", "method", method, "tx", hash.Hex(), "gas_used", receipt.GasUsed)
	return receipt, nil
}

func (c *Client) waitReceipt(ctx context.Context, b *binding, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := b.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// eventUint reads an integer field from the first matching event emitted
// by the contract in receipt.
func eventUint(a abi.ABI, contract common.Address, receipt *types.Receipt, event, field string) (uint64, error) {
	ev, ok := a.Events[event]
	if !ok {
		return 0, fmt.Errorf("%s: %w", event, ledger.ErrEventMissing)
	}
	for _, lg := range receipt.Logs {
		if lg.Address != contract || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		fields := map[string]any{}
		if len(lg.Data) > 0 {
			if err := ev.Inputs.NonIndexed().UnpackIntoMap(fields, lg.Data); err != nil {
				return 0, fmt.Errorf("decode %s: %w", event, err)
			}
		}
		var indexed abi.Arguments
		for _, in := range ev.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			return 0, fmt.Errorf("decode %s topics: %w", event, err)
		}
		v, ok := fields[field]
		if !ok {
			break
		}
		return toUint64(v), nil
	}
	return 0, fmt.Errorf("%s.%s: %w", event, field, ledger.ErrEventMissing)
}

// classify turns a node error into a CallError, decoding ABI encoded revert
// data when the node supplies it.
func classify(method string, err error) error {
	ce := ledger.NewCallError(method, err)
	var de rpc.DataError
	if errors.As(err, &de) {
		if hexData, ok := de.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					ce.Reverted = true
					ce.Reason = reason
				}
			}
		}
	}
	return ce
}
