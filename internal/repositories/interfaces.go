package repositories

import (
	"context"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders and streams the order list.
type OrderRepository interface {
	// Create stores a new order and returns the backend-assigned id.
	Create(ctx context.Context, order domain.Order) (string, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus writes the status field and appends entry to the history in
	// one commit.
	UpdateStatus(ctx context.Context, orderID string, update StatusUpdate) error
	// Subscribe streams every order, newest createdAt first.
	Subscribe(ctx context.Context) (*Subscription[domain.Order], error)
}

// StatusUpdate is the atomic partial update applied by a status transition.
type StatusUpdate struct {
	Status domain.OrderStatus
	Entry  domain.StatusEntry
}

// ClientRepository is the client side of the catalog store.
type ClientRepository interface {
	// FindByTaxID returns the client whose CPF equals taxID (digits only).
	FindByTaxID(ctx context.Context, taxID string) (domain.Client, error)
	Create(ctx context.Context, client domain.Client) (string, error)
	Subscribe(ctx context.Context) (*Subscription[domain.Client], error)
}

// ServiceRepository is the service catalog.
type ServiceRepository interface {
	Get(ctx context.Context, serviceID string) (domain.Service, error)
	Create(ctx context.Context, service domain.Service) (string, error)
	Subscribe(ctx context.Context) (*Subscription[domain.Service], error)
}

// StaffRepository stores staff profiles keyed by their auth uid.
type StaffRepository interface {
	Get(ctx context.Context, staffID string) (domain.StaffMember, error)
	// Create writes the profile under member.ID, which must be set.
	Create(ctx context.Context, member domain.StaffMember) error
	// Subscribe streams staff whose role is one of roles; no roles means everyone.
	Subscribe(ctx context.Context, roles ...domain.StaffRole) (*Subscription[domain.StaffMember], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository probes backing services for readiness reports.
type HealthRepository interface {
	Collect(ctx context.Context) domain.SystemHealthReport
}
