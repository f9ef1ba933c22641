package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates valid lifecycle states for orders. Values are the
// strings stored on order documents.
type OrderStatus string

const (
	// OrderStatusInProgress is the initial status of every order.
	OrderStatusInProgress OrderStatus = "Em Andamento"
	// OrderStatusReadyForPickup indicates the garment is finished and awaits the client.
	OrderStatusReadyForPickup OrderStatus = "Pronto para Retirada"
	// OrderStatusDelivered indicates the client collected the order.
	OrderStatusDelivered OrderStatus = "Entregue"
	// OrderStatusReopened indicates the order came back for rework. Requires an observation.
	OrderStatusReopened OrderStatus = "Reaberto"
)

var orderStatusAliases = map[string]OrderStatus{
	"em andamento":         OrderStatusInProgress,
	"in_progress":          OrderStatusInProgress,
	"inprogress":           OrderStatusInProgress,
	"pronto para retirada": OrderStatusReadyForPickup,
	"ready_for_pickup":     OrderStatusReadyForPickup,
	"readyforpickup":       OrderStatusReadyForPickup,
	"entregue":             OrderStatusDelivered,
	"delivered":            OrderStatusDelivered,
	"reaberto":             OrderStatusReopened,
	"reopened":             OrderStatusReopened,
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusInProgress,
		OrderStatusReadyForPickup,
		OrderStatusDelivered,
		OrderStatusReopened,
	}
}

// ParseOrderStatus accepts either the stored value or its snake_case token.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status, ok := orderStatusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusInProgress, OrderStatusReadyForPickup, OrderStatusDelivered, OrderStatusReopened:
		return true
	default:
		return false
	}
}

// RequiresObservation reports whether moving into the status needs a written observation.
func (s OrderStatus) RequiresObservation() bool {
	return s == OrderStatusReopened
}

// StaffRole enumerates the account types stored on staff documents.
type StaffRole string

const (
	StaffRoleSeamstress    StaffRole = "costureira"
	StaffRoleReception     StaffRole = "recepcao"
	StaffRoleAdministrator StaffRole = "adm"
)

// EligibleStaffRoles lists the roles that can be assigned to an order.
func EligibleStaffRoles() []StaffRole {
	return []StaffRole{StaffRoleSeamstress, StaffRoleAdministrator}
}

// ParseStaffRole normalises a stored or english role token.
func ParseStaffRole(raw string) (StaffRole, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "costureira", "seamstress":
		return StaffRoleSeamstress, true
	case "recepcao", "recepção", "reception":
		return StaffRoleReception, true
	case "adm", "admin", "administrator":
		return StaffRoleAdministrator, true
	default:
		return "", false
	}
}

// EligibleForOrders reports whether staff with this role may be assigned to orders.
func (r StaffRole) EligibleForOrders() bool {
	return r == StaffRoleSeamstress || r == StaffRoleAdministrator
}

// Client is a registered customer of the atelier.
type Client struct {
	ID          string
	Name        string
	Phone       string
	TaxID       string
	PostalCode  string
	Address     string
	HouseNumber string
	CreatedAt   time.Time
}

// StaffMember is an atelier employee with a login identity.
type StaffMember struct {
	ID         string
	Name       string
	Email      string
	Role       StaffRole
	EmployeeID string
	Active     bool
	CreatedAt  time.Time
}

// Service is a catalog entry priced per piece. Price holds the raw catalog
// value and may be NaN when the stored document is malformed.
type Service struct {
	ID        string
	Category  string
	Item      string
	Price     float64
	CreatedAt time.Time
}

// LineItem snapshots a service at the moment it was added to an order.
// PriceMissing is set when a stored line carries no usable unit price.
type LineItem struct {
	ServiceID    string
	Category     string
	Item         string
	UnitPrice    decimal.Decimal
	Quantity     int
	Subtotal     decimal.Decimal
	PriceMissing bool
}

// ComputeSubtotal returns unit price × quantity.
func (l LineItem) ComputeSubtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// StatusEntry is one immutable record of the status history.
type StatusEntry struct {
	Status      OrderStatus
	Date        Moment
	ChangedBy   string
	Observation *string
}

// ActorLocalPart returns the acting identity up to the first "@", or "" when absent.
func (e StatusEntry) ActorLocalPart() string {
	actor := strings.TrimSpace(e.ChangedBy)
	if idx := strings.Index(actor, "@"); idx >= 0 {
		actor = actor[:idx]
	}
	return actor
}

// Order is a customer request tracked through the status lifecycle.
type Order struct {
	ID              string
	OrderDate       Moment
	ClientID        string
	ClientName      string
	ClientPhone     string
	StaffID         string
	StaffName       string
	StaffEmployeeID string
	Items           []LineItem
	Notes           string
	Total           decimal.Decimal
	Status          OrderStatus
	StatusHistory   []StatusEntry
	CreatedAt       time.Time
}

const shortIDLength = 6

// ShortID returns the display token printed on receipts. It is not unique.
func (o Order) ShortID() string {
	if utf8.RuneCountInString(o.ID) <= shortIDLength {
		return o.ID
	}
	return string([]rune(o.ID)[:shortIDLength])
}
