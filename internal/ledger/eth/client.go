// Package eth implements the ledger contract surface over an Ethereum
// JSON-RPC node using the node's unlocked accounts.
package eth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/observability"
)

type Config struct {
	RPCURL          string
	ArtifactPath    string
	ContractAddress string
	ConnectAttempts int
	ConnectBackoff  time.Duration
	TxGas           uint64
	RideGas         uint64
	PaymentGas      uint64
	ReceiptTimeout  time.Duration
}

// binding is the state of an established connection.
type binding struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	abi     abi.ABI
	address common.Address
}

// Client talks to the deployed contract. It is usable as soon as it is
// built; every ledger method returns models.ErrNotInitialized until
// Connect succeeds.
type Client struct {
	cfg    Config
	state  atomic.Pointer[binding]
	poll   time.Duration
	logger *slog.Logger
}

var _ ledger.Ledger = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}
	if cfg.TxGas == 0 {
		cfg.TxGas = 3000000
	}
	if cfg.RideGas == 0 {
		cfg.RideGas = 5000000
	}
	if cfg.PaymentGas == 0 {
		cfg.PaymentGas = 500000
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 30 * time.Second
	}
	return &Client{cfg: cfg, poll: 250 * time.Millisecond, logger: logger.With("component", "ledger")}
}

// Connect dials the node and binds the contract, retrying with a fixed
// backoff. It returns the last error once every attempt has failed.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		b, err := c.dial(ctx)
		if err == nil {
			c.state.Store(b)
			observability.LedgerReady.Set(1)
			c.logger.Info("ledger connected", "contract", b.address.Hex(), "attempt", attempt)
			return nil
		}
		lastErr = err
		c.logger.Warn("ledger connection failed", "attempt", attempt, "max_attempts", c.cfg.ConnectAttempts, "error", err)
		if attempt == c.cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ConnectBackoff):
		}
	}
	return fmt.Errorf("ledger: giving up after %d attempts: %w", c.cfg.ConnectAttempts, lastErr)
}

func (c *Client) dial(ctx context.Context) (*binding, error) {
	art, err := loadArtifact(c.cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}
	rc, err := rpc.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.RPCURL, err)
	}
	ec := ethclient.NewClient(rc)
	netID, err := ec.NetworkID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("network id: %w", err)
	}
	addr, err := art.address(netID.String(), c.cfg.ContractAddress)
	if err != nil {
		rc.Close()
		return nil, err
	}
	code, err := ec.CodeAt(ctx, addr, nil)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("read contract code: %w", err)
	}
	if len(code) == 0 {
		rc.Close()
		return nil, fmt.Errorf("no contract deployed at %s on network %s", addr.Hex(), netID)
	}
	return &binding{rpc: rc, eth: ec, abi: art.ABI, address: addr}, nil
}

func (c *Client) Ready() error {
	if c.state.Load() == nil {
		return models.ErrNotInitialized
	}
	return nil
}

func (c *Client) bound() (*binding, error) {
	b := c.state.Load()
	if b == nil {
		return nil, models.ErrNotInitialized
	}
	return b, nil
}

func (c *Client) Close() {
	if b := c.state.Swap(nil); b != nil {
		b.rpc.Close()
		observability.LedgerReady.Set(0)
	}
}

// artifact is the compiled contract description: the ABI and the address
// it was deployed at on each network.
type artifact struct {
	ABI      abi.ABI
	Networks map[string]string
}

func loadArtifact(path string) (artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return artifact{}, fmt.Errorf("read contract artifact: %w", err)
	}
	return parseArtifact(raw)
}

func parseArtifact(raw []byte) (artifact, error) {
	var doc struct {
		ABI      json.RawMessage `json:"abi"`
		Networks map[string]struct {
			Address string `json:"address"`
		} `json:"networks"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return artifact{}, fmt.Errorf("decode contract artifact: %w", err)
	}
	if len(doc.ABI) == 0 {
		return artifact{}, errors.New("contract artifact has no abi")
	}
	parsed, err := abi.JSON(strings.NewReader(string(doc.ABI)))
	if err != nil {
		return artifact{}, fmt.Errorf("parse contract abi: %w", err)
	}
	art := artifact{ABI: parsed, Networks: make(map[string]string, len(doc.Networks))}
	for id, n := range doc.Networks {
		art.Networks[id] = n.Address
	}
	return art, nil
}

func (a artifact) address(networkID, override string) (common.Address, error) {
	addr := override
	if addr == "" {
		addr = a.Networks[networkID]
	}
	if addr == "" {
		return common.Address{}, fmt.Errorf("contract not deployed on network %s", networkID)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("invalid contract address %q", addr)
	}
	return common.HexToAddress(addr), nil
}
