package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	pfirestore "github.com/Thaynan-souza/raphietro-atelier/internal/platform/firestore"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

const servicesCollection = "servicos"

// ServiceRepository implements repositories.ServiceRepository.
type ServiceRepository struct {
	services *pfirestore.Collection[domain.Service]
}

// NewServiceRepository constructs a Firestore-backed service catalog.
func NewServiceRepository(provider *pfirestore.Provider) (*ServiceRepository, error) {
	if provider == nil {
		return nil, errors.New("service repository requires firestore provider")
	}
	return &ServiceRepository{
		services: pfirestore.NewCollection(provider, servicesCollection, encodeService, decodeServiceSnapshot),
	}, nil
}

func (r *ServiceRepository) Get(ctx context.Context, serviceID string) (domain.Service, error) {
	if r == nil || r.services == nil {
		return domain.Service{}, errors.New("service repository not initialised")
	}
	doc, err := r.services.Get(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		return domain.Service{}, err
	}
	return doc.Data, nil
}

func (r *ServiceRepository) Create(ctx context.Context, service domain.Service) (string, error) {
	if r == nil || r.services == nil {
		return "", errors.New("service repository not initialised")
	}
	return r.services.Add(ctx, service)
}

// Subscribe streams the catalog grouped by category then item.
func (r *ServiceRepository) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Service], error) {
	if r == nil || r.services == nil {
		return nil, errors.New("service repository not initialised")
	}
	return watch(ctx, r.services, func(q firestore.Query) firestore.Query {
		return q.OrderBy(fieldServiceCategory, firestore.Asc).OrderBy(fieldServiceItem, firestore.Asc)
	}), nil
}
