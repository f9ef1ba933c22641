package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

type stubClientFinder struct {
	clients map[string]domain.Client
	err     error
	calls   int
}

func (s *stubClientFinder) FindByTaxID(_ context.Context, taxID string) (domain.Client, error) {
	s.calls++
	if s.err != nil {
		return domain.Client{}, s.err
	}
	if client, ok := s.clients[taxID]; ok {
		return client, nil
	}
	return domain.Client{}, notFoundErr{}
}

type stubCatalog struct {
	services []domain.Service
	staff    []domain.StaffMember
	clients  []domain.Client
	err      error
}

func (s stubCatalog) Services() ([]domain.Service, error)    { return s.services, s.err }
func (s stubCatalog) Staff() ([]domain.StaffMember, error) { return s.staff, s.err }
func (s stubCatalog) Clients() ([]domain.Client, error)    { return s.clients, s.err }

type stubRegistrar struct {
	client  services.ClientInput
	service services.ServiceInput
	staff   services.StaffInput
	err     error
}

func (s *stubRegistrar) RegisterClient(_ context.Context, _ *auth.Identity, in services.ClientInput) (domain.Client, error) {
	s.client = in
	return domain.Client{ID: "c9", Name: in.Name, TaxID: services.NormalizeTaxID(in.TaxID)}, s.err
}

func (s *stubRegistrar) RegisterService(_ context.Context, _ *auth.Identity, in services.ServiceInput) (domain.Service, error) {
	s.service = in
	return domain.Service{ID: "s9", Category: in.Category, Item: in.Item, Price: 25.9}, s.err
}

func (s *stubRegistrar) RegisterStaff(_ context.Context, _ *auth.Identity, in services.StaffInput) (domain.StaffMember, error) {
	s.staff = in
	return domain.StaffMember{ID: "u9", Name: in.Name, Role: domain.StaffRole(in.Role), EmployeeID: "03", Active: true}, s.err
}

func newCatalogRouter(h *CatalogHandlers, identity *auth.Identity) chi.Router {
	opts := []Option{
		WithClientRoutes(h.ClientRoutes),
		WithServiceRoutes(h.ServiceRoutes),
		WithStaffRoutes(h.StaffRoutes),
	}
	if identity != nil {
		opts = append(opts, WithMiddlewares(withIdentity(identity)))
	}
	return NewRouter(opts...)
}

func TestCatalogHandlers_FindClient(t *testing.T) {
	finder := &stubClientFinder{clients: map[string]domain.Client{
		"12345678901": {ID: "c1", Name: "Maria Silva", TaxID: "12345678901"},
	}}
	router := newCatalogRouter(NewCatalogHandlers(nil, finder, nil, nil), &auth.Identity{UID: "u1"})

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{path: "/api/v1/clients/123.456.789-01", status: http.StatusOK},
		{path: "/api/v1/clients/1234567", status: http.StatusUnprocessableEntity, code: "tax_id_incomplete"},
		{path: "/api/v1/clients/99999999999", status: http.StatusNotFound, code: "client_not_found"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, rr.Code)
		}
		var body map[string]any
		decodeBody(t, rr, &body)
		if tc.code != "" && body["error"] != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.path, tc.code, body["error"])
		}
		if tc.code == "" && body["name"] != "Maria Silva" {
			t.Fatalf("%s: unexpected client %v", tc.path, body)
		}
	}
}

func TestCatalogHandlers_FindClientBackendFailure(t *testing.T) {
	finder := &stubClientFinder{err: errors.New("unavailable")}
	router := newCatalogRouter(NewCatalogHandlers(nil, finder, nil, nil), &auth.Identity{UID: "u1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clients/12345678901", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCatalogHandlers_LookupLimit(t *testing.T) {
	now := time.Date(2024, 5, 3, 14, 0, 0, 0, time.UTC)
	finder := &stubClientFinder{clients: map[string]domain.Client{"12345678901": {ID: "c1"}}}
	h := NewCatalogHandlers(nil, finder, nil, nil, WithLookupLimit(2, time.Minute, func() time.Time { return now }))
	router := newCatalogRouter(h, &auth.Identity{UID: "u1"})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clients/12345678901", nil))
		statuses = append(statuses, rr.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected statuses %v", statuses)
	}
	if finder.calls != 2 {
		t.Fatalf("expected limited lookups to skip the store, got %d calls", finder.calls)
	}

	now = now.Add(time.Minute)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clients/12345678901", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rr.Code)
	}
}

func TestCatalogHandlers_RegisterClient(t *testing.T) {
	registrar := &stubRegistrar{}
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, nil, registrar), &auth.Identity{UID: "u1", Email: "recepcao@shop.com"})

	body := `{"name":"Joana","phone":"11 9999-0000","cpf":"987.654.321-00","cep":"01001-000","address":"Rua A","houseNumber":"10"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if registrar.client.TaxID != "987.654.321-00" || registrar.client.PostalCode != "01001-000" || registrar.client.HouseNumber != "10" {
		t.Fatalf("unexpected input %+v", registrar.client)
	}

	registrar.err = services.ErrClientDuplicate
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCatalogHandlers_RegisterRequiresIdentity(t *testing.T) {
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, nil, &stubRegistrar{}), nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/services", strings.NewReader(`{"category":"Ajuste","item":"Barra","price":"10"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCatalogHandlers_RegisterService(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		price string
	}{
		{name: "comma string", body: `{"category":"Ajuste","item":"Barra","price":"25,90"}`, price: "25,90"},
		{name: "number", body: `{"category":"Ajuste","item":"Barra","price":25.9}`, price: "25.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registrar := &stubRegistrar{}
			router := newCatalogRouter(NewCatalogHandlers(nil, nil, nil, registrar), &auth.Identity{UID: "u-admin", Roles: []string{auth.RoleAdmin}})

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/services", strings.NewReader(tc.body)))
			if rr.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
			}
			if registrar.service.Price != tc.price {
				t.Fatalf("expected price %q, got %q", tc.price, registrar.service.Price)
			}
			var body map[string]any
			decodeBody(t, rr, &body)
			if body["price"] != "25.90" {
				t.Fatalf("expected formatted price, got %v", body["price"])
			}
		})
	}
}

func TestCatalogHandlers_RegisterServiceForbidden(t *testing.T) {
	registrar := &stubRegistrar{err: services.ErrForbidden}
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, nil, registrar), &auth.Identity{UID: "u1", Roles: []string{auth.RoleReception}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/services", strings.NewReader(`{"category":"Ajuste","item":"Barra","price":"10"}`)))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestCatalogHandlers_RegisterStaff(t *testing.T) {
	registrar := &stubRegistrar{}
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, nil, registrar), &auth.Identity{UID: "u-admin", Roles: []string{auth.RoleAdmin}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/staff", strings.NewReader(`{"name":"Bia","email":"bia@shop.com","password":"segredo","role":"costureira"}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["employeeId"] != "03" || body["role"] != "costureira" {
		t.Fatalf("unexpected staff payload %v", body)
	}

	registrar.err = services.ErrStaffEmailTaken
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/staff", strings.NewReader(`{"name":"Bia","email":"bia@shop.com","password":"segredo","role":"costureira"}`)))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCatalogHandlers_Lists(t *testing.T) {
	catalog := stubCatalog{
		services: []domain.Service{
			{ID: "calca", Category: "Costura", Item: "Calça", Price: 20},
			{ID: "broken", Category: "Ajuste", Item: "Zíper", Price: math.NaN()},
		},
		staff: []domain.StaffMember{{ID: "u-ana", Name: "Ana", Role: domain.StaffRoleSeamstress, Active: true}},
	}
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, catalog, nil), &auth.Identity{UID: "u1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/services", nil))
	var svc struct {
		Items []servicePayload `json:"items"`
		Stale bool             `json:"stale"`
	}
	decodeBody(t, rr, &svc)
	if len(svc.Items) != 2 || svc.Items[0].Price != "20.00" || svc.Items[1].Price != "" || svc.Stale {
		t.Fatalf("unexpected services %+v", svc)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil))
	var staff struct {
		Items []staffPayload `json:"items"`
	}
	decodeBody(t, rr, &staff)
	if len(staff.Items) != 1 || staff.Items[0].Role != "costureira" {
		t.Fatalf("unexpected staff %+v", staff)
	}
}

func TestCatalogHandlers_ListClients(t *testing.T) {
	catalog := stubCatalog{
		clients: []domain.Client{
			{ID: "c2", Name: "João Souza", TaxID: "98765432100"},
			{ID: "c1", Name: "Maria Silva", TaxID: "12345678901", Phone: "11 99999-0000"},
		},
		err: errors.New("listener restarted"),
	}
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, catalog, nil), &auth.Identity{UID: "u1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Items []clientPayload `json:"items"`
		Stale bool            `json:"stale"`
	}
	decodeBody(t, rr, &body)
	if len(body.Items) != 2 || body.Items[0].ID != "c2" || body.Items[1].Phone != "11 99999-0000" || !body.Stale {
		t.Fatalf("unexpected clients %+v", body)
	}
}

func TestCatalogHandlers_ListClientsWithoutCatalog(t *testing.T) {
	router := newCatalogRouter(NewCatalogHandlers(nil, nil, nil, nil), &auth.Identity{UID: "u1"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
