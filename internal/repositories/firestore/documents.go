package firestore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
)

// Field names of the stored documents. They predate this service and must stay readable.
const (
	fieldCreatedAt = "createdAt"

	fieldClientName     = "nome"
	fieldClientPhone    = "telefone"
	fieldClientTaxID    = "cpf"
	fieldClientPostal   = "cep"
	fieldClientAddress  = "endereco"
	fieldClientHouseNum = "numeroCasa"

	fieldStaffName       = "nome"
	fieldStaffEmail      = "email"
	fieldStaffRole       = "userType"
	fieldStaffEmployeeID = "employeeId"
	fieldStaffActive     = "ativo"

	fieldServiceCategory = "tipo"
	fieldServiceItem     = "peca"
	fieldServicePrice    = "preco"

	fieldOrderDate        = "dataPedido"
	fieldOrderClientID    = "clienteId"
	fieldOrderClientName  = "clienteNome"
	fieldOrderClientPhone = "clienteTelefone"
	fieldOrderStaffID     = "costureiraId"
	fieldOrderStaffName   = "costureiraNome"
	fieldOrderStaffEmpID  = "costureiraEmployeeId"
	fieldOrderItems       = "servicos"
	fieldOrderNotes       = "observacoes"
	fieldOrderTotal       = "precoTotal"
	fieldOrderStatus      = "status"
	fieldOrderHistory     = "statusHistory"

	fieldLineID        = "id"
	fieldLineCategory  = "tipo"
	fieldLineItem      = "peca"
	fieldLineUnitPrice = "precoUnitario"
	fieldLineQuantity  = "quantidade"
	fieldLineSubtotal  = "subtotal"

	fieldEntryStatus      = "status"
	fieldEntryDate        = "date"
	fieldEntryChangedBy   = "changedBy"
	fieldEntryObservation = "observation"
)

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func encodeClient(client domain.Client) (map[string]any, error) {
	return map[string]any{
		fieldClientName:     client.Name,
		fieldClientPhone:    client.Phone,
		fieldClientTaxID:    client.TaxID,
		fieldClientPostal:   client.PostalCode,
		fieldClientAddress:  client.Address,
		fieldClientHouseNum: client.HouseNumber,
		fieldCreatedAt:      createdAtOrNow(client.CreatedAt),
	}, nil
}

func decodeClientSnapshot(snap *firestore.DocumentSnapshot) (domain.Client, error) {
	client := decodeClient(snap.Data())
	client.ID = snap.Ref.ID
	return client, nil
}

func decodeClient(data map[string]any) domain.Client {
	return domain.Client{
		Name:        stringField(data, fieldClientName),
		Phone:       stringField(data, fieldClientPhone),
		TaxID:       stringField(data, fieldClientTaxID),
		PostalCode:  stringField(data, fieldClientPostal),
		Address:     stringField(data, fieldClientAddress),
		HouseNumber: stringField(data, fieldClientHouseNum),
		CreatedAt:   timeField(data, fieldCreatedAt),
	}
}

func encodeStaff(member domain.StaffMember) (map[string]any, error) {
	if !member.Role.EligibleForOrders() && member.Role != domain.StaffRoleReception {
		return nil, fmt.Errorf("unknown staff role %q", member.Role)
	}
	return map[string]any{
		fieldStaffName:       member.Name,
		fieldStaffEmail:      member.Email,
		fieldStaffRole:       string(member.Role),
		fieldStaffEmployeeID: member.EmployeeID,
		fieldStaffActive:     member.Active,
		fieldCreatedAt:       createdAtOrNow(member.CreatedAt),
	}, nil
}

func decodeStaffSnapshot(snap *firestore.DocumentSnapshot) (domain.StaffMember, error) {
	member := decodeStaff(snap.Data())
	member.ID = snap.Ref.ID
	return member, nil
}

func decodeStaff(data map[string]any) domain.StaffMember {
	role, _ := domain.ParseStaffRole(stringField(data, fieldStaffRole))
	active := true
	if v, ok := data[fieldStaffActive].(bool); ok {
		active = v
	}
	return domain.StaffMember{
		Name:       stringField(data, fieldStaffName),
		Email:      stringField(data, fieldStaffEmail),
		Role:       role,
		EmployeeID: stringField(data, fieldStaffEmployeeID),
		Active:     active,
		CreatedAt:  timeField(data, fieldCreatedAt),
	}
}

func encodeService(service domain.Service) (map[string]any, error) {
	if math.IsNaN(service.Price) || math.IsInf(service.Price, 0) || service.Price < 0 {
		return nil, fmt.Errorf("invalid price %v", service.Price)
	}
	return map[string]any{
		fieldServiceCategory: service.Category,
		fieldServiceItem:     service.Item,
		fieldServicePrice:    service.Price,
		fieldCreatedAt:       createdAtOrNow(service.CreatedAt),
	}, nil
}

func decodeServiceSnapshot(snap *firestore.DocumentSnapshot) (domain.Service, error) {
	service := decodeService(snap.Data())
	service.ID = snap.Ref.ID
	return service, nil
}

func decodeService(data map[string]any) domain.Service {
	return domain.Service{
		Category:  stringField(data, fieldServiceCategory),
		Item:      stringField(data, fieldServiceItem),
		Price:     domain.FloatPrice(data[fieldServicePrice]),
		CreatedAt: timeField(data, fieldCreatedAt),
	}
}

func encodeOrder(order domain.Order) (map[string]any, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("order has no line items")
	}
	items := make([]map[string]any, 0, len(order.Items))
	for _, line := range order.Items {
		items = append(items, map[string]any{
			fieldLineID:        line.ServiceID,
			fieldLineCategory:  line.Category,
			fieldLineItem:      line.Item,
			fieldLineUnitPrice: domain.AmountFloat(line.UnitPrice),
			fieldLineQuantity:  int64(line.Quantity),
			fieldLineSubtotal:  domain.AmountFloat(line.Subtotal),
		})
	}
	history := make([]map[string]any, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		history = append(history, encodeStatusEntry(entry))
	}
	status := order.Status
	if status == "" {
		status = domain.OrderStatusInProgress
	}
	return map[string]any{
		fieldOrderDate:        order.OrderDate.Value(),
		fieldOrderClientID:    order.ClientID,
		fieldOrderClientName:  order.ClientName,
		fieldOrderClientPhone: order.ClientPhone,
		fieldOrderStaffID:     order.StaffID,
		fieldOrderStaffName:   order.StaffName,
		fieldOrderStaffEmpID:  order.StaffEmployeeID,
		fieldOrderItems:       items,
		fieldOrderNotes:       order.Notes,
		fieldOrderTotal:       domain.AmountFloat(order.Total),
		fieldOrderStatus:      string(status),
		fieldOrderHistory:     history,
		fieldCreatedAt:        createdAtOrNow(order.CreatedAt),
	}, nil
}

// encodeStatusEntry omits observation when nil so the stored entry matches
// what the lifecycle screens wrote.
func encodeStatusEntry(entry domain.StatusEntry) map[string]any {
	out := map[string]any{
		fieldEntryStatus:    string(entry.Status),
		fieldEntryDate:      entry.Date.Value(),
		fieldEntryChangedBy: entry.ChangedBy,
	}
	if entry.Observation != nil {
		out[fieldEntryObservation] = *entry.Observation
	}
	return out
}

func decodeOrderSnapshot(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	order := decodeOrder(snap.Data())
	order.ID = snap.Ref.ID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = snap.CreateTime
	}
	return order, nil
}

// decodeOrder is lenient: malformed fields degrade to zero values so one bad
// document cannot break a live order list.
func decodeOrder(data map[string]any) domain.Order {
	order := domain.Order{
		OrderDate:       domain.ParseMoment(data[fieldOrderDate]),
		ClientID:        stringField(data, fieldOrderClientID),
		ClientName:      stringField(data, fieldOrderClientName),
		ClientPhone:     stringField(data, fieldOrderClientPhone),
		StaffID:         stringField(data, fieldOrderStaffID),
		StaffName:       stringField(data, fieldOrderStaffName),
		StaffEmployeeID: stringField(data, fieldOrderStaffEmpID),
		Notes:           stringField(data, fieldOrderNotes),
		Status:          domain.OrderStatus(stringField(data, fieldOrderStatus)),
		CreatedAt:       timeField(data, fieldCreatedAt),
	}
	if total, ok := domain.ParseAmount(data[fieldOrderTotal]); ok {
		order.Total = total
	}
	for _, raw := range sliceField(data, fieldOrderItems) {
		fields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		order.Items = append(order.Items, decodeLineItem(fields))
	}
	for _, raw := range sliceField(data, fieldOrderHistory) {
		fields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		order.StatusHistory = append(order.StatusHistory, decodeStatusEntry(fields))
	}
	return order
}

func decodeLineItem(data map[string]any) domain.LineItem {
	line := domain.LineItem{
		ServiceID: stringField(data, fieldLineID),
		Category:  stringField(data, fieldLineCategory),
		Item:      stringField(data, fieldLineItem),
		Quantity:  intField(data, fieldLineQuantity),
	}
	if unit, ok := domain.ParseAmount(data[fieldLineUnitPrice]); ok {
		line.UnitPrice = unit
	} else {
		line.PriceMissing = true
	}
	if subtotal, ok := domain.ParseAmount(data[fieldLineSubtotal]); ok {
		line.Subtotal = subtotal
	} else {
		line.Subtotal = line.ComputeSubtotal()
	}
	return line
}

func decodeStatusEntry(data map[string]any) domain.StatusEntry {
	entry := domain.StatusEntry{
		Status:    domain.OrderStatus(stringField(data, fieldEntryStatus)),
		Date:      domain.ParseMoment(data[fieldEntryDate]),
		ChangedBy: stringField(data, fieldEntryChangedBy),
	}
	if raw, ok := data[fieldEntryObservation]; ok && raw != nil {
		text := fmt.Sprint(raw)
		entry.Observation = &text
	}
	return entry
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	default:
		return 0
	}
}

func timeField(data map[string]any, key string) time.Time {
	if t, ok := data[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}

func sliceField(data map[string]any, key string) []any {
	if v, ok := data[key].([]any); ok {
		return v
	}
	return nil
}
