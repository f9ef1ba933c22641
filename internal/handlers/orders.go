package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/httpx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/pagination"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

const streamHeartbeat = 25 * time.Second

// OrderCreator submits complete order entries.
type OrderCreator interface {
	Create(ctx context.Context, req services.OrderRequest) (services.SubmitResult, error)
}

// OrderLister serves the live order list.
type OrderLister interface {
	Filter(f services.OrderFilter) []domain.Order
	Get(id string) (domain.Order, bool)
	Err() error
}

// StatusChanger moves orders through the lifecycle.
type StatusChanger interface {
	ChangeStatusByID(ctx context.Context, orderID string, status domain.OrderStatus, identity *auth.Identity, observation *string) (services.StatusChange, error)
}

// OrderStore reads single orders and streams the list.
type OrderStore interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Subscribe(ctx context.Context) (*repositories.Subscription[domain.Order], error)
}

// ReceiptLinker hands out download links for archived receipts.
type ReceiptLinker interface {
	LatestReceiptURL(ctx context.Context, orderID string) (string, time.Time, error)
}

// OrderHandlers exposes the order board, order entry, and status changes.
type OrderHandlers struct {
	authn    *auth.Authenticator
	creator  OrderCreator
	board    OrderLister
	status   StatusChanger
	store    OrderStore
	renderer services.ReceiptRenderer
	linker   ReceiptLinker
	submit   func(http.Handler) http.Handler
	loc      *time.Location
}

// OrderHandlersDeps wires OrderHandlers. Linker and SubmitMiddleware are optional.
type OrderHandlersDeps struct {
	Authenticator    *auth.Authenticator
	Creator          OrderCreator
	Board            OrderLister
	Status           StatusChanger
	Store            OrderStore
	Renderer         services.ReceiptRenderer
	Linker           ReceiptLinker
	SubmitMiddleware func(http.Handler) http.Handler
	Location         *time.Location
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	h := &OrderHandlers{
		authn:    deps.Authenticator,
		creator:  deps.Creator,
		board:    deps.Board,
		status:   deps.Status,
		store:    deps.Store,
		renderer: deps.Renderer,
		linker:   deps.Linker,
		submit:   deps.SubmitMiddleware,
		loc:      deps.Location,
	}
	if h.loc == nil {
		h.loc = domain.DefaultLocation()
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/stream", h.streamOrders)
	timed(r, func(r chi.Router) {
		r.Get("/", h.listOrders)
		if h.submit != nil {
			r.With(h.submit).Post("/", h.createOrder)
		} else {
			r.Post("/", h.createOrder)
		}
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/status", h.changeStatus)
		r.Get("/{orderID}/receipt", h.getReceipt)
		r.Get("/{orderID}/receipt/link", h.getReceiptLink)
	})
}

type createOrderRequest struct {
	ClientTaxID string                   `json:"clientTaxId"`
	StaffID     string                   `json:"staffId"`
	Items       []createOrderItemRequest `json:"items"`
	Notes       string                   `json:"notes"`
}

type createOrderItemRequest struct {
	ServiceID string `json:"serviceId"`
	Quantity  int    `json:"quantity"`
}

type changeStatusRequest struct {
	Status      string  `json:"status"`
	Observation *string `json:"observation"`
}

type lineItemPayload struct {
	ServiceID string `json:"serviceId"`
	Category  string `json:"category"`
	Item      string `json:"item"`
	UnitPrice string `json:"unitPrice,omitempty"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal,omitempty"`
}

type statusEntryPayload struct {
	Status      string  `json:"status"`
	Date        string  `json:"date"`
	ChangedBy   string  `json:"changedBy"`
	Observation *string `json:"observation,omitempty"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	ShortID         string               `json:"shortId"`
	OrderDate       string               `json:"orderDate"`
	ClientID        string               `json:"clientId"`
	ClientName      string               `json:"clientName"`
	ClientPhone     string               `json:"clientPhone,omitempty"`
	StaffID         string               `json:"staffId"`
	StaffName       string               `json:"staffName"`
	StaffEmployeeID string               `json:"staffEmployeeId,omitempty"`
	Items           []lineItemPayload    `json:"items"`
	Notes           string               `json:"notes,omitempty"`
	Total           string               `json:"total"`
	Status          string               `json:"status"`
	StatusHistory   []statusEntryPayload `json:"statusHistory"`
	CreatedAt       string               `json:"createdAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
	Stale         bool           `json:"stale,omitempty"`
}

type createOrderResponse struct {
	Order        orderPayload `json:"order"`
	PrintWarning string       `json:"printWarning,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.board == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_board_unavailable", "order board unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.OrderFilter{Search: strings.TrimSpace(query.Get("q"))}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
			return
		}
		filter.Status = status
	}

	params, err := pagination.Parse(query, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	orders := h.board.Filter(filter)
	page, next, err := pagination.Slice(orders, params, func(o domain.Order) string { return o.ID })
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to encode page token", http.StatusInternalServerError))
		return
	}

	resp := orderListResponse{
		Items:         make([]orderPayload, 0, len(page)),
		NextPageToken: next,
		Stale:         h.board.Err() != nil,
	}
	for _, order := range page {
		resp.Items = append(resp.Items, h.orderPayload(order))
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, resp)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.creator == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	var body createOrderRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}

	req := services.OrderRequest{
		ClientTaxID: body.ClientTaxID,
		StaffID:     strings.TrimSpace(body.StaffID),
		Notes:       body.Notes,
		Items:       make([]services.OrderRequestItem, 0, len(body.Items)),
	}
	for _, item := range body.Items {
		req.Items = append(req.Items, services.OrderRequestItem{ServiceID: item.ServiceID, Quantity: item.Quantity})
	}

	result, err := h.creator.Create(ctx, req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := createOrderResponse{Order: h.orderPayload(result.Order)}
	if result.PrintErr != nil {
		requestctx.Logger(ctx).Warn("order saved without receipt", zap.String("orderId", result.Order.ID), zap.Error(result.PrintErr))
		resp.PrintWarning = "Pedido salvo, mas a comanda não pôde ser impressa."
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, h.orderPayload(order))
}

func (h *OrderHandlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var body changeStatusRequest
	if !decodeJSONBody(w, r, &body) {
		return
	}
	status, ok := domain.ParseOrderStatus(body.Status)
	if !ok {
		writeServiceError(ctx, w, fmt.Errorf("%w: %q", services.ErrInvalidStatus, body.Status))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	change, err := h.status.ChangeStatusByID(ctx, orderID, status, identity, body.Observation)
	switch {
	case errors.Is(err, services.ErrTransitionCancelled):
		httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"cancelled": true})
		return
	case err != nil:
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"orderId": change.OrderID,
		"status":  string(change.Entry.Status),
		"entry":   h.statusEntryPayload(change.Entry),
	})
}

func (h *OrderHandlers) getReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.renderer == nil {
		httpx.WriteError(ctx, w, httpx.NewError("receipt_unavailable", "receipt rendering unavailable", http.StatusServiceUnavailable))
		return
	}
	order, ok := h.lookup(w, r)
	if !ok {
		return
	}
	doc, err := h.renderer.Render(order)
	if err != nil {
		requestctx.Logger(ctx).Error("render receipt failed", zap.String("orderId", order.ID), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("receipt_render_failed", "failed to render receipt", http.StatusInternalServerError))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.HTML))
}

func (h *OrderHandlers) getReceiptLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.linker == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_implemented", "receipt archive not configured", http.StatusNotImplemented))
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}
	url, expires, err := h.linker.LatestReceiptURL(ctx, orderID)
	switch {
	case errors.Is(err, services.ErrReceiptNotPrinted):
		httpx.WriteError(ctx, w, httpx.NewError("receipt_not_found", "no archived receipt for order", http.StatusNotFound))
		return
	case err != nil:
		requestctx.Logger(ctx).Error("receipt link failed", zap.String("orderId", orderID), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("receipt_link_failed", "failed to sign receipt link", http.StatusBadGateway))
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"url":       url,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

// streamOrders pushes every order snapshot as a server-sent event until the
// client disconnects or the subscription fails.
func (h *OrderHandlers) streamOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_stream_unavailable", "order stream unavailable", http.StatusServiceUnavailable))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("streaming_unsupported", "streaming not supported", http.StatusInternalServerError))
		return
	}

	sub, err := h.store.Subscribe(ctx)
	if err != nil {
		writeServiceError(ctx, w, fmt.Errorf("%w: subscribe orders: %v", services.ErrPersistence, err))
		return
	}
	defer sub.Close()

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if event.Err != nil {
				requestctx.Logger(ctx).Warn("order stream ended", zap.Error(event.Err))
				writeEvent(w, "error", map[string]string{"message": services.Notice(services.ErrPersistence)})
				flusher.Flush()
				return
			}
			items := make([]orderPayload, 0, len(event.Items))
			for _, order := range event.Items {
				items = append(items, h.orderPayload(order))
			}
			if err := writeEvent(w, "snapshot", map[string]any{"items": items}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// lookup finds the order in the board, falling back to the store for orders
// the board has not seen yet.
func (h *OrderHandlers) lookup(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return domain.Order{}, false
	}
	if h.board != nil {
		if order, ok := h.board.Get(orderID); ok {
			return order, true
		}
	}
	if h.store == nil {
		writeServiceError(ctx, w, services.ErrOrderNotFound)
		return domain.Order{}, false
	}
	order, err := h.store.Get(ctx, orderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			writeServiceError(ctx, w, services.ErrOrderNotFound)
		} else {
			writeServiceError(ctx, w, fmt.Errorf("%w: get order: %v", services.ErrPersistence, err))
		}
		return domain.Order{}, false
	}
	return order, true
}

func (h *OrderHandlers) orderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		ShortID:         order.ShortID(),
		OrderDate:       order.OrderDate.Text(h.loc),
		ClientID:        order.ClientID,
		ClientName:      order.ClientName,
		ClientPhone:     order.ClientPhone,
		StaffID:         order.StaffID,
		StaffName:       order.StaffName,
		StaffEmployeeID: order.StaffEmployeeID,
		Items:           make([]lineItemPayload, 0, len(order.Items)),
		Notes:           order.Notes,
		Total:           domain.FormatMoney(order.Total),
		Status:          string(order.Status),
		StatusHistory:   make([]statusEntryPayload, 0, len(order.StatusHistory)),
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	for _, line := range order.Items {
		item := lineItemPayload{
			ServiceID: line.ServiceID,
			Category:  line.Category,
			Item:      line.Item,
			Quantity:  line.Quantity,
		}
		if !line.PriceMissing {
			item.UnitPrice = domain.FormatMoney(line.UnitPrice)
			item.Subtotal = domain.FormatMoney(line.Subtotal)
		}
		payload.Items = append(payload.Items, item)
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, h.statusEntryPayload(entry))
	}
	return payload
}

func (h *OrderHandlers) statusEntryPayload(entry domain.StatusEntry) statusEntryPayload {
	return statusEntryPayload{
		Status:      string(entry.Status),
		Date:        entry.Date.Text(h.loc),
		ChangedBy:   entry.ChangedBy,
		Observation: entry.Observation,
	}
}
