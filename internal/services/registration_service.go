package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

const (
	// StaffEmployeeCounter is the counter allocating staff display ids.
	StaffEmployeeCounter = "staffEmployeeId"
	minPasswordLength    = 6
)

// StaffAccountCreator provisions the login account of a staff member.
type StaffAccountCreator interface {
	CreateStaffAccount(ctx context.Context, account auth.StaffAccount) (string, error)
}

// RegistrationServiceDeps wires the catalog registration service.
type RegistrationServiceDeps struct {
	Clients  repositories.ClientRepository
	Services repositories.ServiceRepository
	Staff    repositories.StaffRepository
	Counters repositories.CounterRepository
	Accounts StaffAccountCreator
	Clock    func() time.Time
	Logger   Logger
}

// RegistrationService registers clients, catalog services, and staff.
type RegistrationService struct {
	clients  repositories.ClientRepository
	services repositories.ServiceRepository
	staff    repositories.StaffRepository
	counters repositories.CounterRepository
	accounts StaffAccountCreator
	clock    func() time.Time
	logger   Logger
}

// ClientInput is a client registration form.
type ClientInput struct {
	Name        string
	Phone       string
	TaxID       string
	PostalCode  string
	Address     string
	HouseNumber string
}

// ServiceInput is a catalog registration form. Price accepts a decimal point or comma.
type ServiceInput struct {
	Category string
	Item     string
	Price    string
}

// StaffInput is a staff registration form.
type StaffInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// NewRegistrationService validates deps.
func NewRegistrationService(deps RegistrationServiceDeps) (*RegistrationService, error) {
	switch {
	case deps.Clients == nil:
		return nil, errors.New("registration service: client repository is required")
	case deps.Services == nil:
		return nil, errors.New("registration service: service repository is required")
	case deps.Staff == nil:
		return nil, errors.New("registration service: staff repository is required")
	case deps.Counters == nil:
		return nil, errors.New("registration service: counter repository is required")
	case deps.Accounts == nil:
		return nil, errors.New("registration service: account creator is required")
	}
	s := &RegistrationService{
		clients:  deps.Clients,
		services: deps.Services,
		staff:    deps.Staff,
		counters: deps.Counters,
		accounts: deps.Accounts,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = noopLogger
	}
	return s, nil
}

// RegisterClient stores a client. Any signed-in staff member may register clients.
func (s *RegistrationService) RegisterClient(ctx context.Context, identity *auth.Identity, in ClientInput) (domain.Client, error) {
	if identity.Actor() == "" {
		return domain.Client{}, ErrUnauthenticated
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Client{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	taxID := NormalizeTaxID(in.TaxID)
	if len(taxID) != taxIDDigits {
		return domain.Client{}, fmt.Errorf("%w: %d digits", ErrTaxIDIncomplete, len(taxID))
	}

	_, err := s.clients.FindByTaxID(ctx, taxID)
	switch {
	case err == nil:
		return domain.Client{}, fmt.Errorf("%w: %s", ErrClientDuplicate, taxID)
	case !isNotFound(err):
		return domain.Client{}, fmt.Errorf("%w: lookup client: %v", ErrPersistence, err)
	}

	client := domain.Client{
		Name:        name,
		Phone:       strings.TrimSpace(in.Phone),
		TaxID:       taxID,
		PostalCode:  NormalizeTaxID(in.PostalCode),
		Address:     strings.TrimSpace(in.Address),
		HouseNumber: strings.TrimSpace(in.HouseNumber),
		CreatedAt:   s.clock().UTC(),
	}
	id, err := s.clients.Create(ctx, client)
	if err != nil {
		return domain.Client{}, fmt.Errorf("%w: create client: %v", ErrPersistence, err)
	}
	client.ID = id
	s.logger(ctx, "client.registered", map[string]any{"client": id, "actor": identity.Actor()})
	return client, nil
}

// RegisterService adds a catalog entry. Administrators only.
func (s *RegistrationService) RegisterService(ctx context.Context, identity *auth.Identity, in ServiceInput) (domain.Service, error) {
	if err := requireAdmin(identity); err != nil {
		return domain.Service{}, err
	}
	category := strings.TrimSpace(in.Category)
	item := strings.TrimSpace(in.Item)
	if category == "" || item == "" {
		return domain.Service{}, fmt.Errorf("%w: category and item are required", ErrInvalidInput)
	}
	price, ok := domain.ParseAmount(in.Price)
	if !ok || price.IsNegative() {
		return domain.Service{}, fmt.Errorf("%w: %q", ErrInvalidServicePrice, in.Price)
	}

	service := domain.Service{
		Category:  category,
		Item:      item,
		Price:     domain.AmountFloat(price),
		CreatedAt: s.clock().UTC(),
	}
	id, err := s.services.Create(ctx, service)
	if err != nil {
		return domain.Service{}, fmt.Errorf("%w: create service: %v", ErrPersistence, err)
	}
	service.ID = id
	s.logger(ctx, "service.registered", map[string]any{"service": id, "actor": identity.Actor()})
	return service, nil
}

// RegisterStaff creates the login account, allocates the display id, and
// stores the profile under the account uid. Administrators only.
func (s *RegistrationService) RegisterStaff(ctx context.Context, identity *auth.Identity, in StaffInput) (domain.StaffMember, error) {
	if err := requireAdmin(identity); err != nil {
		return domain.StaffMember{}, err
	}
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	role, ok := domain.ParseStaffRole(in.Role)
	switch {
	case name == "":
		return domain.StaffMember{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !validEmail(email):
		return domain.StaffMember{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	case len(in.Password) < minPasswordLength:
		return domain.StaffMember{}, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	case !ok:
		return domain.StaffMember{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}

	uid, err := s.accounts.CreateStaffAccount(ctx, auth.StaffAccount{Email: email, Password: in.Password, DisplayName: name})
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		return domain.StaffMember{}, fmt.Errorf("%w: %s", ErrStaffEmailTaken, email)
	case errors.Is(err, auth.ErrWeakPassword):
		return domain.StaffMember{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil:
		return domain.StaffMember{}, fmt.Errorf("%w: create account: %v", ErrPersistence, err)
	}

	next, err := s.counters.Next(ctx, StaffEmployeeCounter, 1)
	if err != nil {
		s.orphanedAccount(ctx, uid, err)
		return domain.StaffMember{}, fmt.Errorf("%w: allocate employee id: %v", ErrPersistence, err)
	}

	member := domain.StaffMember{
		ID:         uid,
		Name:       name,
		Email:      email,
		Role:       role,
		EmployeeID: fmt.Sprintf("%02d", next),
		Active:     true,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.staff.Create(ctx, member); err != nil {
		s.orphanedAccount(ctx, uid, err)
		return domain.StaffMember{}, fmt.Errorf("%w: create staff profile: %v", ErrPersistence, err)
	}
	s.logger(ctx, "staff.registered", map[string]any{
		"staff":      uid,
		"role":       string(role),
		"employeeId": member.EmployeeID,
		"actor":      identity.Actor(),
	})
	return member, nil
}

// orphanedAccount records an auth account left without a profile so it can be cleaned up by hand.
func (s *RegistrationService) orphanedAccount(ctx context.Context, uid string, err error) {
	s.logger(ctx, "staff.account.orphaned", map[string]any{"uid": uid, "error": err.Error()})
}

func requireAdmin(identity *auth.Identity) error {
	if identity.Actor() == "" {
		return ErrUnauthenticated
	}
	if !identity.HasRole(auth.RoleAdmin) {
		return ErrForbidden
	}
	return nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
