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

const clientsCollection = "clientes"

// ClientRepository implements repositories.ClientRepository.
type ClientRepository struct {
	clients *pfirestore.Collection[domain.Client]
}

// NewClientRepository constructs a Firestore-backed client repository.
func NewClientRepository(provider *pfirestore.Provider) (*ClientRepository, error) {
	if provider == nil {
		return nil, errors.New("client repository requires firestore provider")
	}
	return &ClientRepository{
		clients: pfirestore.NewCollection(provider, clientsCollection, encodeClient, decodeClientSnapshot),
	}, nil
}

// FindByTaxID returns the first client whose cpf equals taxID.
func (r *ClientRepository) FindByTaxID(ctx context.Context, taxID string) (domain.Client, error) {
	if r == nil || r.clients == nil {
		return domain.Client{}, errors.New("client repository not initialised")
	}
	taxID = strings.TrimSpace(taxID)
	docs, err := r.clients.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(fieldClientTaxID, "==", taxID).Limit(1)
	})
	if err != nil {
		return domain.Client{}, err
	}
	if len(docs) == 0 {
		return domain.Client{}, pfirestore.NotFound("clientes.findByTaxID", "client")
	}
	return docs[0].Data, nil
}

// Create stores a new client and returns its id.
func (r *ClientRepository) Create(ctx context.Context, client domain.Client) (string, error) {
	if r == nil || r.clients == nil {
		return "", errors.New("client repository not initialised")
	}
	return r.clients.Add(ctx, client)
}

// Subscribe streams every client ordered by name.
func (r *ClientRepository) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Client], error) {
	if r == nil || r.clients == nil {
		return nil, errors.New("client repository not initialised")
	}
	return watch(ctx, r.clients, func(q firestore.Query) firestore.Query {
		return q.OrderBy(fieldClientName, firestore.Asc)
	}), nil
}
