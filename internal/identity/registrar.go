package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/chainride/internal/ledger"
	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/observability"
)

// Registration is the outcome of a register call. AlreadyRegistered is a
// success, not a failure.
type Registration struct {
	ID                uint64 `json:"id"`
	AlreadyRegistered bool   `json:"alreadyRegistered"`
}

type Registrar struct {
	registry ledger.Registry
	resolver *Resolver
	logger   *slog.Logger
}

func NewRegistrar(registry ledger.Registry, resolver *Resolver, logger *slog.Logger) *Registrar {
	return &Registrar{registry: registry, resolver: resolver, logger: logger.With("component", "registrar")}
}

// Profile defaults. Registration never blocks on missing optional fields.
const (
	DefaultPhone        = "123-456-7890"
	defaultDriverName   = "Driver"
	defaultDriverEmail  = "driver@example.com"
	defaultCarModel     = "Default Car"
	defaultLicensePlate = "ABC123"
	defaultCarColor     = "Black"
	defaultClientName   = "Client"
	defaultClientEmail  = "client@example.com"
)

func DriverDefaults(p models.DriverProfile) models.DriverProfile {
	p.Name = orDefault(p.Name, defaultDriverName)
	p.Email = orDefault(p.Email, defaultDriverEmail)
	p.Phone = orDefault(p.Phone, DefaultPhone)
	p.CarModel = orDefault(p.CarModel, defaultCarModel)
	p.LicensePlate = orDefault(p.LicensePlate, defaultLicensePlate)
	p.CarColor = orDefault(p.CarColor, defaultCarColor)
	return p
}

func ClientDefaults(p models.ClientProfile) models.ClientProfile {
	p.Name = orDefault(p.Name, defaultClientName)
	p.Email = orDefault(p.Email, defaultClientEmail)
	p.Phone = orDefault(p.Phone, DefaultPhone)
	return p
}

// AutoClientProfile is used when a ride request arrives from an account
// that has never registered.
func AutoClientProfile(account string) models.ClientProfile {
	short := account
	if len(short) > 6 {
		short = short[:6]
	}
	return models.ClientProfile{
		Name:  "Client " + short,
		Email: "client_" + short + "@example.com",
		Phone: DefaultPhone,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (r *Registrar) RegisterDriver(ctx context.Context, account string, p models.DriverProfile) (Registration, error) {
	p = DriverDefaults(p)
	return r.register(ctx, models.RoleDriver, account, func() (uint64, error) {
		return r.registry.RegisterDriver(ctx, account, p)
	})
}

func (r *Registrar) RegisterClient(ctx context.Context, account string, p models.ClientProfile) (Registration, error) {
	p = ClientDefaults(p)
	return r.register(ctx, models.RoleClient, account, func() (uint64, error) {
		return r.registry.RegisterClient(ctx, account, p)
	})
}

func (r *Registrar) register(ctx context.Context, role models.Role, account string, create func() (uint64, error)) (Registration, error) {
	id, found, err := r.resolver.Resolve(ctx, role, account)
	if err != nil {
		return Registration{}, err
	}
	if found {
		observability.Registrations.WithLabelValues(string(role), "existing").Inc()
		r.logger.Info("account already registered", "role", role, "account", account, "id", id)
		return Registration{ID: id, AlreadyRegistered: true}, nil
	}

	id, err = create()
	if err != nil {
		if isAlreadyRegistered(err) {
			return r.recoverRace(ctx, role, account, err)
		}
		observability.Registrations.WithLabelValues(string(role), "failed").Inc()
		if errors.Is(err, ledger.ErrEventMissing) {
			return Registration{}, fmt.Errorf("%w: %v", models.ErrRegistrationFailed, err)
		}
		return Registration{}, fmt.Errorf("register %s: %w", role, err)
	}
	if id == 0 {
		observability.Registrations.WithLabelValues(string(role), "failed").Inc()
		return Registration{}, fmt.Errorf("%w: ledger assigned no id", models.ErrRegistrationFailed)
	}

	observability.Registrations.WithLabelValues(string(role), "created").Inc()
	r.logger.Info("registered", "role", role, "account", account, "id", id)
	return Registration{ID: id}, nil
}

// recoverRace handles a concurrent first registration: another caller won,
// so the account now resolves.
func (r *Registrar) recoverRace(ctx context.Context, role models.Role, account string, cause error) (Registration, error) {
	id, found, err := r.resolver.Resolve(ctx, role, account)
	if err != nil {
		return Registration{}, err
	}
	if !found {
		observability.Registrations.WithLabelValues(string(role), "failed").Inc()
		return Registration{}, fmt.Errorf("%w: %v", models.ErrRegistrationFailed, cause)
	}
	observability.Registrations.WithLabelValues(string(role), "race").Inc()
	r.logger.Info("registration race resolved", "role", role, "account", account, "id", id)
	return Registration{ID: id, AlreadyRegistered: true}, nil
}

func isAlreadyRegistered(err error) bool {
	return errors.Is(err, models.ErrAlreadyRegistered) ||
		strings.Contains(strings.ToLower(err.Error()), "already registered")
}
