package eth

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
)

func (c *Client) MemberCount(ctx context.Context, role models.Role) (uint64, error) {
	if role == models.RoleDriver {
		return c.callUint(ctx, "getTotalDrivers")
	}
	return c.callUint(ctx, "getClientCount")
}

func (c *Client) MemberIDByAccount(ctx context.Context, role models.Role, account string) (uint64, error) {
	if !common.IsHexAddress(account) {
		return 0, models.Validationf("invalid account %q", account)
	}
	method := "clientAddressToId"
	if role == models.RoleDriver {
		method = "driverAddressToId"
	}
	return c.callUint(ctx, method, common.HexToAddress(account))
}

func (c *Client) Driver(ctx context.Context, id uint64) (models.Driver, error) {
	r, err := c.callRecord(ctx, "drivers", id)
	if err != nil {
		return models.Driver{}, err
	}
	d := driverFrom(r)
	if d.ID == 0 {
		return models.Driver{}, fmt.Errorf("driver %d: %w", id, models.ErrDriverNotFound)
	}
	return d, nil
}

func (c *Client) Client(ctx context.Context, id uint64) (models.Client, error) {
	r, err := c.callRecord(ctx, "clients", id)
	if err != nil {
		return models.Client{}, err
	}
	cl := clientFrom(r)
	if cl.ID == 0 {
		return models.Client{}, fmt.Errorf("client %d: %w", id, models.ErrClientNotFound)
	}
	return cl, nil
}

func (c *Client) RegisterDriver(ctx context.Context, account string, p models.DriverProfile) (uint64, error) {
	receipt, err := c.transact(ctx, account, c.cfg.TxGas, nil, "registerDriver",
		p.Name, p.Email, p.Phone, p.CarModel, p.LicensePlate, p.CarColor)
	if err != nil {
		return 0, err
	}
	return c.emitted(receipt, "DriverRegistered", "driverId")
}

func (c *Client) RegisterClient(ctx context.Context, account string, p models.ClientProfile) (uint64, error) {
	receipt, err := c.transact(ctx, account, c.cfg.TxGas, nil, "registerClient", p.Name, p.Email, p.Phone)
	if err != nil {
		return 0, err
	}
	return c.emitted(receipt, "ClientRegistered", "clientId")
}

func (c *Client) UpdateDriver(ctx context.Context, account string, p models.DriverProfile) error {
	_, err := c.transact(ctx, account, c.cfg.TxGas, nil, "updateDriver",
		p.Name, p.Email, p.Phone, p.CarModel, p.LicensePlate, p.CarColor)
	return err
}

func (c *Client) UpdateClient(ctx context.Context, account string, p models.ClientProfile) error {
	_, err := c.transact(ctx, account, c.cfg.TxGas, nil, "updateClient", p.Name, p.Email, p.Phone)
	return err
}

func (c *Client) DriverStats(ctx context.Context, driverID uint64) (models.DriverStats, error) {
	r, err := c.callRecord(ctx, "getDriverStats", driverID)
	if err != nil {
		return models.DriverStats{}, err
	}
	stats := models.DriverStats{DriverID: driverID}
	if vals := positional(r); len(vals) == 3 {
		stats.CompletedRides, stats.ActiveRides = toUint64(vals[0]), toUint64(vals[1])
		stats.TotalEarnings = weiDecimal(vals[2])
		return stats, nil
	}
	stats.CompletedRides = r.num("completedRides")
	stats.ActiveRides = r.num("activeRides")
	stats.TotalEarnings = weiDecimal(r.first("totalEarnings"))
	return stats, nil
}

// NearbyDrivers forwards a proximity query. Coordinates are sent as
// micro-degrees.
func (c *Client) NearbyDrivers(ctx context.Context, lat, lon float64, radius uint64) ([]models.Driver, error) {
	ids, err := c.callIDs(ctx, "getNearbyDrivers", int64(lat*1e6), int64(lon*1e6), radius)
	if err != nil {
		return nil, err
	}
	drivers := make([]models.Driver, 0, len(ids))
	for _, id := range ids {
		d, err := c.Driver(ctx, id)
		if err != nil {
			c.logger.Warn("skipping nearby driver", "driver_id", id, "error", err)
			continue
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}

func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	b, err := c.bound()
	if err != nil {
		return nil, err
	}
	var accounts []common.Address
	if err := b.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, &ledger.CallError{Method: "eth_accounts", Err: err}
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Hex())
	}
	return out, nil
}
