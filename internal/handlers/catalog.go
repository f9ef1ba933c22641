package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/httpx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

// ClientFinder looks clients up by tax id.
type ClientFinder interface {
	FindByTaxID(ctx context.Context, taxID string) (domain.Client, error)
}

// CatalogReader serves the live service, staff, and client lists.
type CatalogReader interface {
	Services() ([]domain.Service, error)
	Staff() ([]domain.StaffMember, error)
	Clients() ([]domain.Client, error)
}

// Registrar registers clients, services, and staff members.
type Registrar interface {
	RegisterClient(ctx context.Context, identity *auth.Identity, in services.ClientInput) (domain.Client, error)
	RegisterService(ctx context.Context, identity *auth.Identity, in services.ServiceInput) (domain.Service, error)
	RegisterStaff(ctx context.Context, identity *auth.Identity, in services.StaffInput) (domain.StaffMember, error)
}

// CatalogHandlers exposes the client, service, and staff endpoints.
type CatalogHandlers struct {
	authn     *auth.Authenticator
	clients   ClientFinder
	catalog   CatalogReader
	registrar Registrar
	lookups   rateLimiter
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithLookupLimit caps client lookups per identity within window. A zero
// limit disables the cap.
func WithLookupLimit(limit int, window time.Duration, clock func() time.Time) CatalogOption {
	return func(h *CatalogHandlers) {
		if l := newWindowLimiter(limit, window, clock); l != nil {
			h.lookups = l
		} else {
			h.lookups = nil
		}
	}
}

// NewCatalogHandlers constructs the catalog handlers.
func NewCatalogHandlers(authn *auth.Authenticator, clients ClientFinder, catalog CatalogReader, registrar Registrar, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{
		authn:     authn,
		clients:   clients,
		catalog:   catalog,
		registrar: registrar,
		lookups:   newWindowLimiter(defaultLookupLimit, defaultLookupWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// ClientRoutes registers the /clients endpoints.
func (h *CatalogHandlers) ClientRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	timed(r, func(r chi.Router) {
		r.Get("/", h.listClients)
		r.With(limitPerIdentity(h.lookups)).Get("/{taxID}", h.findClient)
		r.Post("/", h.registerClient)
	})
}

// ServiceRoutes registers the /services endpoints. Registration is admin only.
func (h *CatalogHandlers) ServiceRoutes(r chi.Router) {
	if r == nil {
		return
	}
	timed(r, func(r chi.Router) {
		h.withAuth(r).Get("/", h.listServices)
		h.withAuth(r, auth.RoleAdmin).Post("/", h.registerService)
	})
}

// StaffRoutes registers the /staff endpoints. Registration is admin only.
func (h *CatalogHandlers) StaffRoutes(r chi.Router) {
	if r == nil {
		return
	}
	timed(r, func(r chi.Router) {
		h.withAuth(r).Get("/", h.listStaff)
		h.withAuth(r, auth.RoleAdmin).Post("/", h.registerStaff)
	})
}

func (h *CatalogHandlers) withAuth(r chi.Router, roles ...string) chi.Router {
	if h.authn == nil {
		return r
	}
	return r.With(h.authn.RequireFirebaseAuth(roles...))
}

type clientPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	TaxID       string `json:"cpf"`
	PostalCode  string `json:"cep,omitempty"`
	Address     string `json:"address,omitempty"`
	HouseNumber string `json:"houseNumber,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type servicePayload struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Item     string `json:"item"`
	Price    string `json:"price"`
}

type staffPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	EmployeeID string `json:"employeeId,omitempty"`
	Active     bool   `json:"active"`
}

type registerClientRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	TaxID       string `json:"cpf"`
	PostalCode  string `json:"cep"`
	Address     string `json:"address"`
	HouseNumber string `json:"houseNumber"`
}

type registerServiceRequest struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Price    any    `json:"price"`
}

type registerStaffRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *CatalogHandlers) findClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.clients == nil {
		httpx.WriteError(ctx, w, httpx.NewError("client_service_unavailable", "client lookup unavailable", http.StatusServiceUnavailable))
		return
	}
	digits := services.NormalizeTaxID(chi.URLParam(r, "taxID"))
	if len(digits) != 11 {
		writeServiceError(ctx, w, fmt.Errorf("%w: %d digits", services.ErrTaxIDIncomplete, len(digits)))
		return
	}
	client, err := h.clients.FindByTaxID(ctx, digits)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			writeServiceError(ctx, w, services.ErrClientNotFound)
			return
		}
		writeServiceError(ctx, w, fmt.Errorf("%w: find client: %v", services.ErrPersistence, err))
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, buildClientPayload(client))
}

func (h *CatalogHandlers) listClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	list, err := h.catalog.Clients()
	items := make([]clientPayload, 0, len(list))
	for _, client := range list {
		items = append(items, buildClientPayload(client))
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"items": items, "stale": err != nil})
}

func (h *CatalogHandlers) registerClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registrar == nil {
		httpx.WriteError(ctx, w, httpx.NewError("registration_unavailable", "registration unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var body registerClientRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	client, err := h.registrar.RegisterClient(ctx, identity, services.ClientInput{
		Name:        body.Name,
		Phone:       body.Phone,
		TaxID:       body.TaxID,
		PostalCode:  body.PostalCode,
		Address:     body.Address,
		HouseNumber: body.HouseNumber,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, buildClientPayload(client))
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	list, err := h.catalog.Services()
	items := make([]servicePayload, 0, len(list))
	for _, service := range list {
		items = append(items, buildServicePayload(service))
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"items": items, "stale": err != nil})
}

func (h *CatalogHandlers) registerService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registrar == nil {
		httpx.WriteError(ctx, w, httpx.NewError("registration_unavailable", "registration unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var body registerServiceRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	var price string
	switch v := body.Price.(type) {
	case string:
		price = v
	case float64:
		price = strconv.FormatFloat(v, 'f', -1, 64)
	}
	service, err := h.registrar.RegisterService(ctx, identity, services.ServiceInput{
		Category: body.Category,
		Item:     body.Item,
		Price:    price,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, buildServicePayload(service))
}

func (h *CatalogHandlers) listStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	list, err := h.catalog.Staff()
	items := make([]staffPayload, 0, len(list))
	for _, member := range list {
		items = append(items, buildStaffPayload(member))
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"items": items, "stale": err != nil})
}

func (h *CatalogHandlers) registerStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.registrar == nil {
		httpx.WriteError(ctx, w, httpx.NewError("registration_unavailable", "registration unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var body registerStaffRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	member, err := h.registrar.RegisterStaff(ctx, identity, services.StaffInput{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     body.Role,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, buildStaffPayload(member))
}

func buildClientPayload(client domain.Client) clientPayload {
	payload := clientPayload{
		ID:          client.ID,
		Name:        client.Name,
		Phone:       client.Phone,
		TaxID:       client.TaxID,
		PostalCode:  client.PostalCode,
		Address:     client.Address,
		HouseNumber: client.HouseNumber,
	}
	if !client.CreatedAt.IsZero() {
		payload.CreatedAt = client.CreatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

// buildServicePayload renders the price with two digits, or "" when the
// stored value is not a usable amount.
func buildServicePayload(service domain.Service) servicePayload {
	payload := servicePayload{
		ID:       service.ID,
		Category: service.Category,
		Item:     service.Item,
	}
	if amount, ok := domain.ParseAmount(service.Price); ok {
		payload.Price = domain.FormatMoney(amount)
	}
	return payload
}

func buildStaffPayload(member domain.StaffMember) staffPayload {
	return staffPayload{
		ID:         member.ID,
		Name:       member.Name,
		Email:      member.Email,
		Role:       string(member.Role),
		EmployeeID: member.EmployeeID,
		Active:     member.Active,
	}
}
