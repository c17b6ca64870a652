// Package identity maps wallet accounts to ledger member ids and registers
// new members idempotently.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
)

type Resolver struct {
	registry ledger.Registry
	logger   *slog.Logger
}

func NewResolver(registry ledger.Registry, logger *slog.Logger) *Resolver {
	return &Resolver{registry: registry, logger: logger.With("component", "resolver")}
}

// Resolve returns the member id registered for account. found is false
// when no member matches, which is not an error.
func (r *Resolver) Resolve(ctx context.Context, role models.Role, account string) (id uint64, found bool, err error) {
	if err := r.registry.Ready(); err != nil {
		return 0, false, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return 0, false, models.Validationf("account is required")
	}
	if !role.Valid() {
		return 0, false, models.Validationf("unknown role %q", role)
	}

	id, err = r.registry.MemberIDByAccount(ctx, role, account)
	switch {
	case err == nil && id > 0:
		return id, true, nil
	case errors.Is(err, models.ErrNotInitialized):
		return 0, false, err
	case err != nil && !errors.Is(err, ledger.ErrUnsupported):
		r.logger.Warn("direct lookup failed, scanning", "role", role, "account", account, "error", err)
	}

	return r.scan(ctx, role, account)
}

func (r *Resolver) scan(ctx context.Context, role models.Role, account string) (uint64, bool, error) {
	count, err := r.registry.MemberCount(ctx, role)
	if err != nil {
		return 0, false, err
	}
	for id := uint64(1); id <= count; id++ {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		candidate, err := r.accountOf(ctx, role, id)
		if err != nil {
			r.logger.Warn("skipping member during scan", "role", role, "id", id, "error", err)
			continue
		}
		if strings.EqualFold(candidate, account) {
			return id, true, nil
		}
	}
	r.logger.Debug("account not registered", "role", role, "account", account)
	return 0, false, nil
}

func (r *Resolver) accountOf(ctx context.Context, role models.Role, id uint64) (string, error) {
	if role == models.RoleDriver {
		d, err := r.registry.Driver(ctx, id)
		return d.WalletAddress, err
	}
	c, err := r.registry.Client(ctx, id)
	return c.WalletAddress, err
}
