package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/idempotency"
	"github.com/Thaynan-souza/raphietro-atelier/internal/receipt"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

type notFoundErr struct{}

func (notFoundErr) Error() string       { return "not found" }
func (notFoundErr) IsNotFound() bool    { return true }
func (notFoundErr) IsConflict() bool    { return false }
func (notFoundErr) IsUnavailable() bool { return false }

type stubOrderCreator struct {
	createFn func(context.Context, services.OrderRequest) (services.SubmitResult, error)
	calls    int
}

func (s *stubOrderCreator) Create(ctx context.Context, req services.OrderRequest) (services.SubmitResult, error) {
	s.calls++
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return services.SubmitResult{}, errors.New("not implemented")
}

type stubOrderLister struct {
	orders []domain.Order
	filter services.OrderFilter
	err    error
}

func (s *stubOrderLister) Filter(f services.OrderFilter) []domain.Order {
	s.filter = f
	return s.orders
}

func (s *stubOrderLister) Get(id string) (domain.Order, bool) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}
	return domain.Order{}, false
}

func (s *stubOrderLister) Err() error { return s.err }

type stubStatusChanger struct {
	changeFn func(context.Context, string, domain.OrderStatus, *auth.Identity, *string) (services.StatusChange, error)
}

func (s *stubStatusChanger) ChangeStatusByID(ctx context.Context, id string, status domain.OrderStatus, identity *auth.Identity, observation *string) (services.StatusChange, error) {
	return s.changeFn(ctx, id, status, identity, observation)
}

type stubOrderStore struct {
	orders    map[string]domain.Order
	snapshots [][]domain.Order
	streamErr error
}

func (s *stubOrderStore) Get(_ context.Context, id string) (domain.Order, error) {
	if order, ok := s.orders[id]; ok {
		return order, nil
	}
	return domain.Order{}, notFoundErr{}
}

func (s *stubOrderStore) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Order], error) {
	return repositories.NewSubscription(ctx, func(ctx context.Context, emit func(repositories.SnapshotEvent[domain.Order]) bool) {
		for _, snap := range s.snapshots {
			if !emit(repositories.SnapshotEvent[domain.Order]{Items: snap}) {
				return
			}
		}
		if s.streamErr != nil {
			emit(repositories.SnapshotEvent[domain.Order]{Err: s.streamErr})
			return
		}
		<-ctx.Done()
	}), nil
}

type stubLinker struct {
	url string
	err error
}

func (s stubLinker) LatestReceiptURL(context.Context, string) (string, time.Time, error) {
	return s.url, time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC), s.err
}

func sampleOrder(id string) domain.Order {
	price := decimal.RequireFromString("20")
	return domain.Order{
		ID:         id,
		OrderDate:  domain.ParseMoment("03/05/2024, 14:00"),
		ClientID:   "c1",
		ClientName: "Maria Silva",
		StaffID:    "u-ana",
		StaffName:  "Ana",
		Items: []domain.LineItem{
			{ServiceID: "calca", Category: "Costura", Item: "Calça", UnitPrice: price, Quantity: 2, Subtotal: price.Mul(decimal.NewFromInt(2))},
		},
		Total:         decimal.RequireFromString("40"),
		Status:        domain.OrderStatusInProgress,
		StatusHistory: []domain.StatusEntry{},
	}
}

func withIdentity(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func newOrderRouter(h *OrderHandlers) chi.Router {
	return NewRouter(
		WithMiddlewares(withIdentity(&auth.Identity{UID: "u-ana", Email: "ana@shop.com"})),
		WithOrderRoutes(h.Routes),
	)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func TestOrderHandlers_ListOrders(t *testing.T) {
	board := &stubOrderLister{orders: []domain.Order{sampleOrder("PEDIDO3"), sampleOrder("PEDIDO2"), sampleOrder("PEDIDO1")}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Board: board}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders?q=maria&status=entregue&pageSize=2", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if board.filter.Search != "maria" || board.filter.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected filter %+v", board.filter)
	}

	var body struct {
		Items []struct {
			ID        string `json:"id"`
			ShortID   string `json:"shortId"`
			OrderDate string `json:"orderDate"`
			Total     string `json:"total"`
			Items     []struct {
				UnitPrice string `json:"unitPrice"`
				Subtotal  string `json:"subtotal"`
			} `json:"items"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
		Stale         bool   `json:"stale"`
	}
	decodeBody(t, rr, &body)
	if len(body.Items) != 2 || body.Items[0].ID != "PEDIDO3" {
		t.Fatalf("unexpected page %+v", body.Items)
	}
	if body.Items[0].OrderDate != "03/05/2024, 14:00" || body.Items[0].Total != "40.00" {
		t.Fatalf("unexpected payload %+v", body.Items[0])
	}
	if body.Items[0].Items[0].UnitPrice != "20.00" || body.Items[0].Items[0].Subtotal != "40.00" {
		t.Fatalf("unexpected line %+v", body.Items[0].Items[0])
	}
	if body.NextPageToken == "" || body.Stale {
		t.Fatalf("expected next page and fresh data, got %q stale=%v", body.NextPageToken, body.Stale)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders?pageSize=2&pageToken="+body.NextPageToken, nil))
	var next struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}
	decodeBody(t, rr, &next)
	if len(next.Items) != 1 || next.Items[0].ID != "PEDIDO1" || next.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", next)
	}
}

func TestOrderHandlers_ListOrdersRejectsBadQuery(t *testing.T) {
	board := &stubOrderLister{err: errors.New("listener gone")}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Board: board}))

	for _, query := range []string{"status=cancelado", "pageSize=abc", "pageToken=@@@"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders?"+query, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	var body struct {
		Stale bool `json:"stale"`
	}
	decodeBody(t, rr, &body)
	if !body.Stale {
		t.Fatal("expected stale flag while the board is failing")
	}
}

func TestOrderHandlers_CreateOrder(t *testing.T) {
	creator := &stubOrderCreator{createFn: func(_ context.Context, req services.OrderRequest) (services.SubmitResult, error) {
		if req.ClientTaxID != "123.456.789-01" || req.StaffID != "u-ana" || len(req.Items) != 2 || req.Items[0].Quantity != 3 {
			return services.SubmitResult{}, errors.New("unexpected request")
		}
		return services.SubmitResult{Order: sampleOrder("PEDIDO0001XYZ")}, nil
	}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Creator: creator}))

	body := `{"clientTaxId":"123.456.789-01","staffId":" u-ana ","items":[{"serviceId":"calca","quantity":3},{"serviceId":"saia"}],"notes":"barra"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Order struct {
			ID      string `json:"id"`
			ShortID string `json:"shortId"`
		} `json:"order"`
		PrintWarning string `json:"printWarning"`
	}
	decodeBody(t, rr, &resp)
	if resp.Order.ID != "PEDIDO0001XYZ" || resp.Order.ShortID != "PEDIDO" || resp.PrintWarning != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlers_CreateOrderPrintWarning(t *testing.T) {
	creator := &stubOrderCreator{createFn: func(context.Context, services.OrderRequest) (services.SubmitResult, error) {
		return services.SubmitResult{Order: sampleOrder("PEDIDO1"), PrintErr: errors.New("printer offline")}, nil
	}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Creator: creator}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"clientTaxId":"12345678901"}`)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "printWarning") {
		t.Fatalf("expected print warning, got %s", rr.Body.String())
	}
}

func TestOrderHandlers_CreateOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "invalid json", body: `{`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty body", body: ``, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing client", body: `{}`, err: services.ErrMissingClient, status: http.StatusUnprocessableEntity, code: "missing_client"},
		{name: "client not found", body: `{}`, err: services.ErrClientNotFound, status: http.StatusNotFound, code: "client_not_found"},
		{name: "empty cart", body: `{}`, err: services.ErrEmptyCart, status: http.StatusUnprocessableEntity, code: "empty_cart"},
		{name: "persistence", body: `{}`, err: services.ErrPersistence, status: http.StatusServiceUnavailable, code: "persistence_failure"},
		{name: "unexpected", body: `{}`, err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creator := &stubOrderCreator{createFn: func(context.Context, services.OrderRequest) (services.SubmitResult, error) {
				return services.SubmitResult{}, tc.err
			}}
			router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Creator: creator}))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tc.body)))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body map[string]any
			decodeBody(t, rr, &body)
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
			if msg := services.Notice(tc.err); msg != "" && body["message"] != msg {
				t.Fatalf("expected notice %q, got %v", msg, body["message"])
			}
		})
	}
}

func TestOrderHandlers_CreateOrderIsIdempotent(t *testing.T) {
	creator := &stubOrderCreator{createFn: func(context.Context, services.OrderRequest) (services.SubmitResult, error) {
		return services.SubmitResult{Order: sampleOrder("PEDIDO1")}, nil
	}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{
		Creator:          creator,
		SubmitMiddleware: idempotency.Middleware(idempotency.NewMemoryStore()),
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{"clientTaxId":"12345678901"}`))
		req.Header.Set(idempotency.HeaderName, "draft-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d", i, rr.Code)
		}
	}
	if creator.calls != 1 {
		t.Fatalf("expected a single order, got %d", creator.calls)
	}
}

func TestOrderHandlers_GetOrder(t *testing.T) {
	board := &stubOrderLister{orders: []domain.Order{sampleOrder("PEDIDO1")}}
	store := &stubOrderStore{orders: map[string]domain.Order{"PEDIDO2": sampleOrder("PEDIDO2")}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Board: board, Store: store}))

	for _, id := range []string{"PEDIDO1", "PEDIDO2"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", id, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/NOPE", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOrderHandlers_ChangeStatus(t *testing.T) {
	var gotObservation *string
	var gotActor string
	changer := &stubStatusChanger{changeFn: func(_ context.Context, id string, status domain.OrderStatus, identity *auth.Identity, observation *string) (services.StatusChange, error) {
		gotObservation = observation
		gotActor = identity.Actor()
		if status == domain.OrderStatusReopened && observation == nil {
			return services.StatusChange{}, services.ErrTransitionCancelled
		}
		return services.StatusChange{
			OrderID:  id,
			Previous: domain.OrderStatusInProgress,
			Entry: domain.StatusEntry{
				Status:    status,
				Date:      domain.TimestampMoment(time.Date(2024, 5, 3, 17, 0, 0, 0, time.UTC)),
				ChangedBy: identity.Actor(),
			},
		}, nil
	}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Status: changer}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/PEDIDO1/status", strings.NewReader(`{"status":"ready_for_pickup"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
		Entry   struct {
			Date      string `json:"date"`
			ChangedBy string `json:"changedBy"`
		} `json:"entry"`
	}
	decodeBody(t, rr, &body)
	if body.OrderID != "PEDIDO1" || body.Status != "Pronto para Retirada" || body.Entry.ChangedBy != "ana@shop.com" {
		t.Fatalf("unexpected response %+v", body)
	}
	if body.Entry.Date != "03/05/2024 14:00" {
		t.Fatalf("expected local display date, got %q", body.Entry.Date)
	}
	if gotObservation != nil || gotActor != "ana@shop.com" {
		t.Fatalf("unexpected call observation=%v actor=%s", gotObservation, gotActor)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/PEDIDO1/status", strings.NewReader(`{"status":"Reaberto"}`)))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"cancelled":true`) {
		t.Fatalf("expected cancelled reopen, got %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/PEDIDO1/status", strings.NewReader(`{"status":"Reaberto","observation":""}`)))
	if rr.Code != http.StatusOK || gotObservation == nil || *gotObservation != "" {
		t.Fatalf("expected empty observation to be forwarded, got %d %v", rr.Code, gotObservation)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/PEDIDO1/status", strings.NewReader(`{"status":"Cancelado"}`)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d", rr.Code)
	}
}

func TestOrderHandlers_ChangeStatusRequiresIdentity(t *testing.T) {
	h := NewOrderHandlers(OrderHandlersDeps{Status: &stubStatusChanger{}})
	router := NewRouter(WithOrderRoutes(h.Routes))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/PEDIDO1/status", strings.NewReader(`{"status":"Entregue"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlers_Receipt(t *testing.T) {
	board := &stubOrderLister{orders: []domain.Order{sampleOrder("PEDIDOABC123")}}
	router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{
		Board:    board,
		Renderer: receipt.NewRenderer(receipt.DefaultProfile()),
	}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/PEDIDOABC123/receipt", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html, got %s", ct)
	}
	html := rr.Body.String()
	for _, want := range []string{"--- VIA DO CLIENTE ---", "--- COMANDA DA EMPRESA ---", "PEDIDO", "Maria Silva"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected receipt to contain %q", want)
		}
	}
}

func TestOrderHandlers_ReceiptLink(t *testing.T) {
	cases := []struct {
		name   string
		linker ReceiptLinker
		status int
	}{
		{name: "not configured", status: http.StatusNotImplemented},
		{name: "signed", linker: stubLinker{url: "https://storage.example/receipt"}, status: http.StatusOK},
		{name: "never printed", linker: stubLinker{err: services.ErrReceiptNotPrinted}, status: http.StatusNotFound},
		{name: "storage failure", linker: stubLinker{err: errors.New("denied")}, status: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Linker: tc.linker}))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/PEDIDO1/receipt/link", nil))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestOrderHandlers_Stream(t *testing.T) {
	store := &stubOrderStore{
		snapshots: [][]domain.Order{{sampleOrder("PEDIDO1")}},
		streamErr: errors.New("listener closed"),
	}
	server := httptest.NewServer(newOrderRouter(NewOrderHandlers(OrderHandlersDeps{Store: store})))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/orders/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %s", ct)
	}

	var events []string
	var snapshot string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && snapshot == "" {
			snapshot = data
		}
	}
	if len(events) != 2 || events[0] != "snapshot" || events[1] != "error" {
		t.Fatalf("expected snapshot then error, got %v", events)
	}
	if !strings.Contains(snapshot, `"id":"PEDIDO1"`) {
		t.Fatalf("expected order in snapshot, got %s", snapshot)
	}
}
