package services

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

// CatalogView mirrors the live service catalog, the staff eligible for order
// assignment, and the client list. Each delivered snapshot replaces the
// previous one.
type CatalogView struct {
	services *mirror[domain.Service]
	staff    *mirror[domain.StaffMember]
	clients  *mirror[domain.Client]
}

// NewCatalogView opens the three subscriptions. If any of them cannot be
// opened the ones already open are closed.
func NewCatalogView(ctx context.Context, services repositories.ServiceRepository, staff repositories.StaffRepository, clients repositories.ClientRepository, logger Logger) (*CatalogView, error) {
	if services == nil || staff == nil || clients == nil {
		return nil, errors.New("catalog view: service, staff, and client repositories are required")
	}
	if logger == nil {
		logger = noopLogger
	}
	servicesSub, err := services.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	staffSub, err := staff.Subscribe(ctx, domain.EligibleStaffRoles()...)
	if err != nil {
		servicesSub.Close()
		return nil, err
	}
	clientsSub, err := clients.Subscribe(ctx)
	if err != nil {
		servicesSub.Close()
		staffSub.Close()
		return nil, err
	}

	return &CatalogView{
		services: startMirror(ctx, servicesSub, logger, "catalog.services.subscription.failed"),
		staff:    startMirror(ctx, staffSub, logger, "catalog.staff.subscription.failed"),
		clients:  startMirror(ctx, clientsSub, logger, "catalog.clients.subscription.failed"),
	}, nil
}

// Services returns the latest catalog snapshot and the subscription error, if any.
func (v *CatalogView) Services() ([]domain.Service, error) {
	return v.services.snapshot()
}

// Staff returns the latest eligible staff snapshot and the subscription error, if any.
func (v *CatalogView) Staff() ([]domain.StaffMember, error) {
	return v.staff.snapshot()
}

// Clients returns the latest client list, ordered by name, and the
// subscription error, if any.
func (v *CatalogView) Clients() ([]domain.Client, error) {
	return v.clients.snapshot()
}

// Close releases every subscription.
func (v *CatalogView) Close() {
	if v == nil {
		return
	}
	v.services.close()
	v.staff.close()
	v.clients.close()
}

// mirror keeps the last snapshot of one subscription. An error keeps the
// previous items around so callers can serve them as stale.
type mirror[T any] struct {
	sub *repositories.Subscription[T]

	mu    sync.RWMutex
	items []T
	err   error

	wg sync.WaitGroup
}

func startMirror[T any](ctx context.Context, sub *repositories.Subscription[T], logger Logger, failedEvent string) *mirror[T] {
	m := &mirror[T]{sub: sub}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for event := range sub.Events() {
			m.mu.Lock()
			if event.Err != nil {
				m.err = event.Err
			} else {
				m.items = event.Items
			}
			m.mu.Unlock()
			if event.Err != nil {
				logger(ctx, failedEvent, map[string]any{"error": event.Err.Error()})
			}
		}
	}()
	return m
}

func (m *mirror[T]) snapshot() ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.items), m.err
}

func (m *mirror[T]) close() {
	m.sub.Close()
	m.wg.Wait()
}
