package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/receipt"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

const taxIDDigits = 11

// OrderBuilderDeps wires the collaborators of order entry.
type OrderBuilderDeps struct {
	Clients     repositories.ClientRepository
	Services    repositories.ServiceRepository
	Staff       repositories.StaffRepository
	Orders      repositories.OrderRepository
	Renderer    ReceiptRenderer
	Printer     PrintSurface
	Events      OrderEventPublisher
	Clock       func() time.Time
	Location    *time.Location
	IDGenerator func() string
	Logger      Logger
}

// OrderBuilder creates drafts and persists them as orders.
type OrderBuilder struct {
	clients  repositories.ClientRepository
	services repositories.ServiceRepository
	staff    repositories.StaffRepository
	orders   repositories.OrderRepository
	renderer ReceiptRenderer
	printer  PrintSurface
	events   OrderEventPublisher
	clock    func() time.Time
	loc      *time.Location
	newID    func() string
	logger   Logger
}

// NewOrderBuilder validates deps. Printer and Events are optional.
func NewOrderBuilder(deps OrderBuilderDeps) (*OrderBuilder, error) {
	switch {
	case deps.Clients == nil:
		return nil, errors.New("order builder: client repository is required")
	case deps.Services == nil:
		return nil, errors.New("order builder: service repository is required")
	case deps.Staff == nil:
		return nil, errors.New("order builder: staff repository is required")
	case deps.Orders == nil:
		return nil, errors.New("order builder: order repository is required")
	case deps.Renderer == nil:
		return nil, errors.New("order builder: receipt renderer is required")
	}

	b := &OrderBuilder{
		clients:  deps.Clients,
		services: deps.Services,
		staff:    deps.Staff,
		orders:   deps.Orders,
		renderer: deps.Renderer,
		printer:  deps.Printer,
		events:   deps.Events,
		clock:    deps.Clock,
		loc:      deps.Location,
		newID:    deps.IDGenerator,
		logger:   deps.Logger,
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	if b.loc == nil {
		b.loc = domain.DefaultLocation()
	}
	if b.newID == nil {
		b.newID = func() string { return ulid.Make().String() }
	}
	if b.logger == nil {
		b.logger = noopLogger
	}
	return b, nil
}

// NewDraft starts an entry session and captures its display date.
func (b *OrderBuilder) NewDraft() *OrderDraft {
	return &OrderDraft{
		builder:   b,
		id:        b.newID(),
		orderDate: domain.OrderDateNow(b.clock(), b.loc),
	}
}

// OrderDraft is the in-progress state of one order entry session. It is safe
// for concurrent use.
type OrderDraft struct {
	builder *OrderBuilder
	id      string

	mu        sync.Mutex
	orderDate domain.Moment
	client    *domain.Client
	staff     *domain.StaffMember
	lines     []domain.LineItem
	notes     string
}

// SubmitResult is returned by a successful submit. PrintErr is set when the
// order was saved but its receipt could not be rendered or printed.
type SubmitResult struct {
	Order    domain.Order
	Receipt  receipt.Document
	PrintErr error
}

// ID identifies the draft session.
func (d *OrderDraft) ID() string {
	return d.id
}

// SelectClient binds the client whose tax id matches. Any non-digit is
// ignored. A lookup that does not bind a client clears the previous binding.
func (d *OrderDraft) SelectClient(ctx context.Context, taxID string) (domain.Client, error) {
	digits := NormalizeTaxID(taxID)
	if len(digits) != taxIDDigits {
		d.setClient(nil)
		return domain.Client{}, fmt.Errorf("%w: %d digits", ErrTaxIDIncomplete, len(digits))
	}

	client, err := d.builder.clients.FindByTaxID(ctx, digits)
	if err != nil {
		d.setClient(nil)
		if isNotFound(err) {
			return domain.Client{}, fmt.Errorf("%w: %s", ErrClientNotFound, digits)
		}
		return domain.Client{}, fmt.Errorf("%w: lookup client: %v", ErrPersistence, err)
	}
	d.setClient(&client)
	return client, nil
}

func (d *OrderDraft) setClient(client *domain.Client) {
	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
}

// SelectStaff binds the staff member assigned to the order.
func (d *OrderDraft) SelectStaff(ctx context.Context, staffID string) (domain.StaffMember, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return domain.StaffMember{}, ErrMissingStaff
	}
	member, err := d.builder.staff.Get(ctx, staffID)
	if err != nil {
		if isNotFound(err) {
			return domain.StaffMember{}, fmt.Errorf("%w: %s", ErrStaffNotFound, staffID)
		}
		return domain.StaffMember{}, fmt.Errorf("%w: lookup staff: %v", ErrPersistence, err)
	}
	member.ID = staffID
	if !member.Role.EligibleForOrders() {
		return domain.StaffMember{}, fmt.Errorf("%w: role %q", ErrStaffNotEligible, member.Role)
	}

	d.mu.Lock()
	d.staff = &member
	d.mu.Unlock()
	return member, nil
}

// AddLineItem adds the service with quantity 1, or bumps the quantity of an
// existing line. The unit price is frozen when the line is first added.
func (d *OrderDraft) AddLineItem(ctx context.Context, serviceID string) (domain.LineItem, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return domain.LineItem{}, fmt.Errorf("%w: service id is required", ErrInvalidInput)
	}

	d.mu.Lock()
	if idx := d.indexOf(serviceID); idx >= 0 {
		line := &d.lines[idx]
		line.Quantity++
		line.Subtotal = line.ComputeSubtotal()
		out := *line
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	service, err := d.builder.services.Get(ctx, serviceID)
	if err != nil {
		if isNotFound(err) {
			return domain.LineItem{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
		}
		return domain.LineItem{}, fmt.Errorf("%w: lookup service: %v", ErrPersistence, err)
	}
	if math.IsNaN(service.Price) || math.IsInf(service.Price, 0) || service.Price < 0 {
		return domain.LineItem{}, fmt.Errorf("%w: %s", ErrInvalidServicePrice, serviceID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// Another request may have added the same service while the catalog was read.
	if idx := d.indexOf(serviceID); idx >= 0 {
		line := &d.lines[idx]
		line.Quantity++
		line.Subtotal = line.ComputeSubtotal()
		return *line, nil
	}
	line := domain.LineItem{
		ServiceID: serviceID,
		Category:  service.Category,
		Item:      service.Item,
		UnitPrice: decimal.NewFromFloat(service.Price),
		Quantity:  1,
	}
	line.Subtotal = line.ComputeSubtotal()
	d.lines = append(d.lines, line)
	return line, nil
}

// SetQuantity sets max(1, leading integer of raw). Malformed input yields 1.
// The boolean is false when the service is not in the cart.
func (d *OrderDraft) SetQuantity(serviceID string, raw string) (domain.LineItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.indexOf(strings.TrimSpace(serviceID))
	if idx < 0 {
		return domain.LineItem{}, false
	}
	line := &d.lines[idx]
	line.Quantity = max(1, leadingInt(raw))
	line.Subtotal = line.ComputeSubtotal()
	return *line, true
}

// RemoveLineItem drops the line for serviceID, if present.
func (d *OrderDraft) RemoveLineItem(serviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx := d.indexOf(strings.TrimSpace(serviceID)); idx >= 0 {
		d.lines = slices.Delete(d.lines, idx, idx+1)
	}
}

// SetNotes replaces the free-text notes.
func (d *OrderDraft) SetNotes(notes string) {
	d.mu.Lock()
	d.notes = notes
	d.mu.Unlock()
}

// Total is Σ(unit price × quantity) over the current cart.
func (d *OrderDraft) Total() decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cartTotal(d.lines)
}

// Lines returns a copy of the cart in entry order.
func (d *OrderDraft) Lines() []domain.LineItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.lines)
}

func (d *OrderDraft) Client() (domain.Client, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return domain.Client{}, false
	}
	return *d.client, true
}

func (d *OrderDraft) Staff() (domain.StaffMember, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staff == nil {
		return domain.StaffMember{}, false
	}
	return *d.staff, true
}

// OrderDate is the display date that will be stored on the order.
func (d *OrderDraft) OrderDate() domain.Moment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orderDate
}

// Submit validates and persists the draft, then renders and prints the
// receipt and resets the draft. On error the draft is left untouched.
func (d *OrderDraft) Submit(ctx context.Context) (SubmitResult, error) {
	b := d.builder
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.client == nil:
		return SubmitResult{}, ErrMissingClient
	case d.staff == nil:
		return SubmitResult{}, ErrMissingStaff
	case len(d.lines) == 0:
		return SubmitResult{}, ErrEmptyCart
	}

	order := domain.Order{
		OrderDate:       d.orderDate,
		ClientID:        d.client.ID,
		ClientName:      d.client.Name,
		ClientPhone:     d.client.Phone,
		StaffID:         d.staff.ID,
		StaffName:       d.staff.Name,
		StaffEmployeeID: d.staff.EmployeeID,
		Items:           slices.Clone(d.lines),
		Notes:           d.notes,
		Total:           cartTotal(d.lines),
		Status:          domain.OrderStatusInProgress,
		StatusHistory:   []domain.StatusEntry{},
		CreatedAt:       b.clock().UTC(),
	}

	id, err := b.orders.Create(ctx, order)
	if err != nil {
		b.logger(ctx, "order.create.failed", map[string]any{
			"draft": d.id,
			"error": err.Error(),
		})
		return SubmitResult{}, fmt.Errorf("%w: create order: %v", ErrPersistence, err)
	}
	order.ID = id

	result := SubmitResult{Order: order}
	result.Receipt, result.PrintErr = b.print(ctx, order)

	publishEvent(ctx, b.events, b.logger, OrderEvent{
		EventID:    b.newID(),
		Type:       OrderEventCreated,
		OrderID:    order.ID,
		ShortID:    order.ShortID(),
		Status:     string(order.Status),
		Total:      domain.FormatMoney(order.Total),
		OccurredAt: order.CreatedAt,
	})
	b.logger(ctx, "order.created", map[string]any{
		"order": order.ID,
		"items": len(order.Items),
		"total": domain.FormatMoney(order.Total),
	})

	d.client = nil
	d.staff = nil
	d.lines = nil
	d.notes = ""
	d.orderDate = domain.OrderDateNow(b.clock(), b.loc)
	return result, nil
}

// OrderRequest is a complete order entry submitted in one call.
type OrderRequest struct {
	ClientTaxID string
	StaffID     string
	Items       []OrderRequestItem
	Notes       string
}

// OrderRequestItem asks for Quantity pieces of a service. Quantities below 1
// count as 1; repeated service ids accumulate.
type OrderRequestItem struct {
	ServiceID string
	Quantity  int
}

// Create runs a whole entry session on a fresh draft: it binds the client and
// staff member, fills the cart, and submits.
func (b *OrderBuilder) Create(ctx context.Context, req OrderRequest) (SubmitResult, error) {
	draft := b.NewDraft()
	if strings.TrimSpace(req.ClientTaxID) == "" {
		return SubmitResult{}, ErrMissingClient
	}
	if _, err := draft.SelectClient(ctx, req.ClientTaxID); err != nil {
		return SubmitResult{}, err
	}
	if _, err := draft.SelectStaff(ctx, req.StaffID); err != nil {
		return SubmitResult{}, err
	}

	quantities := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		id := strings.TrimSpace(item.ServiceID)
		if _, seen := quantities[id]; !seen {
			order = append(order, id)
		}
		quantities[id] = addQuantity(quantities[id], item.Quantity)
	}
	for _, id := range order {
		if _, err := draft.AddLineItem(ctx, id); err != nil {
			return SubmitResult{}, err
		}
		if n := quantities[id]; n > 1 {
			draft.SetQuantity(id, strconv.Itoa(n))
		}
	}
	draft.SetNotes(strings.TrimSpace(req.Notes))
	return draft.Submit(ctx)
}

// addQuantity accumulates max(1, n) onto total, saturating at math.MaxInt32
// like leadingInt does.
func addQuantity(total, n int) int {
	n = min(max(1, n), math.MaxInt32)
	if total > math.MaxInt32-n {
		return math.MaxInt32
	}
	return total + n
}

func (b *OrderBuilder) print(ctx context.Context, order domain.Order) (receipt.Document, error) {
	doc, err := b.renderer.Render(order)
	if err != nil {
		b.logger(ctx, "order.receipt.render.failed", map[string]any{"order": order.ID, "error": err.Error()})
		return receipt.Document{}, fmt.Errorf("render receipt: %w", err)
	}
	if b.printer == nil {
		return doc, nil
	}
	job := PrintJob{OrderID: order.ID, ShortID: order.ShortID(), Document: doc, PrintedAt: b.clock()}
	if err := b.printer.Print(ctx, job); err != nil {
		b.logger(ctx, "order.receipt.print.failed", map[string]any{"order": order.ID, "error": err.Error()})
		return doc, fmt.Errorf("print receipt: %w", err)
	}
	return doc, nil
}

func (d *OrderDraft) indexOf(serviceID string) int {
	return slices.IndexFunc(d.lines, func(l domain.LineItem) bool { return l.ServiceID == serviceID })
}

func cartTotal(lines []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.ComputeSubtotal())
	}
	return total
}

// NormalizeTaxID keeps only the ASCII digits of raw.
func NormalizeTaxID(raw string) string {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// leadingInt parses an optional sign and the digits that follow it, ignoring
// surrounding whitespace and any trailing text. No digits yields 0.
func leadingInt(raw string) int {
	s := strings.TrimSpace(raw)
	sign := 1
	if s != "" && (s[0] == '-' || s[0] == '+') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		if n > math.MaxInt32/10 {
			return sign * math.MaxInt32
		}
		n = n*10 + int(s[i]-'0')
	}
	return sign * n
}
