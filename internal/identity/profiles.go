package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
)

// Profiles reads and updates member profiles. Updates are forwarded to the
// ledger verbatim once the account resolves.
type Profiles struct {
	registry ledger.Registry
	resolver *Resolver
	logger   *slog.Logger
}

func NewProfiles(registry ledger.Registry, resolver *Resolver, logger *slog.Logger) *Profiles {
	return &Profiles{registry: registry, resolver: resolver, logger: logger.With("component", "profiles")}
}

func (p *Profiles) Driver(ctx context.Context, id uint64) (models.Driver, error) {
	if err := p.registry.Ready(); err != nil {
		return models.Driver{}, err
	}
	d, err := p.registry.Driver(ctx, id)
	if err != nil {
		return models.Driver{}, err
	}
	if d.ID == 0 {
		return models.Driver{}, models.ErrDriverNotFound
	}
	return d, nil
}

func (p *Profiles) Client(ctx context.Context, id uint64) (models.Client, error) {
	if err := p.registry.Ready(); err != nil {
		return models.Client{}, err
	}
	c, err := p.registry.Client(ctx, id)
	if err != nil {
		return models.Client{}, err
	}
	if c.ID == 0 {
		return models.Client{}, models.ErrClientNotFound
	}
	return c, nil
}

func (p *Profiles) DriverByAccount(ctx context.Context, account string) (models.Driver, error) {
	id, found, err := p.resolver.Resolve(ctx, models.RoleDriver, account)
	if err != nil {
		return models.Driver{}, err
	}
	if !found {
		return models.Driver{}, models.ErrDriverNotFound
	}
	return p.Driver(ctx, id)
}

func (p *Profiles) ClientByAccount(ctx context.Context, account string) (models.Client, error) {
	id, found, err := p.resolver.Resolve(ctx, models.RoleClient, account)
	if err != nil {
		return models.Client{}, err
	}
	if !found {
		return models.Client{}, models.ErrClientNotFound
	}
	return p.Client(ctx, id)
}

// Drivers lists every registered driver, skipping records that fail to load.
func (p *Profiles) Drivers(ctx context.Context) ([]models.Driver, error) {
	if err := p.registry.Ready(); err != nil {
		return nil, err
	}
	count, err := p.registry.MemberCount(ctx, models.RoleDriver)
	if err != nil {
		return nil, err
	}
	drivers := make([]models.Driver, 0, count)
	for id := uint64(1); id <= count; id++ {
		d, err := p.registry.Driver(ctx, id)
		if err != nil {
			p.logger.Warn("skipping driver", "id", id, "error", err)
			continue
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}

func (p *Profiles) UpdateDriver(ctx context.Context, account string, profile models.DriverProfile) (models.Driver, error) {
	id, found, err := p.resolver.Resolve(ctx, models.RoleDriver, account)
	if err != nil {
		return models.Driver{}, err
	}
	if !found {
		return models.Driver{}, models.ErrDriverNotFound
	}
	if err := p.registry.UpdateDriver(ctx, account, profile); err != nil {
		return models.Driver{}, fmt.Errorf("update driver %d: %w", id, err)
	}
	return p.Driver(ctx, id)
}

func (p *Profiles) UpdateClient(ctx context.Context, account string, profile models.ClientProfile) (models.Client, error) {
	id, found, err := p.resolver.Resolve(ctx, models.RoleClient, account)
	if err != nil {
		return models.Client{}, err
	}
	if !found {
		return models.Client{}, models.ErrClientNotFound
	}
	if err := p.registry.UpdateClient(ctx, account, profile); err != nil {
		return models.Client{}, fmt.Errorf("update client %d: %w", id, err)
	}
	return p.Client(ctx, id)
}
