package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/config"
)

var (
	// ErrEmailTaken is returned when a staff account already exists for the email.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrWeakPassword is returned when Firebase rejects the initial password.
	ErrWeakPassword = errors.New("auth: password rejected")
)

var errFirebaseUninitialised = errors.New("firebase auth client not initialised")

// StaffAccount carries what is needed to create a Firebase sign-in for a staff member.
type StaffAccount struct {
	Email       string
	Password    string
	DisplayName string
}

// FirebaseClient wraps the Admin SDK auth client: it verifies ID tokens and
// creates staff sign-ins.
type FirebaseClient struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseClient instances.
type FirebaseOption func(*FirebaseClient)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(c *FirebaseClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewFirebaseClient initialises the Admin SDK from cfg. Inline credentials
// take precedence over a credentials file; with neither, ADC is used.
func NewFirebaseClient(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	c := &FirebaseClient{client: authClient, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// VerifyIDToken verifies idToken within the configured timeout.
func (c *FirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if c == nil || c.client == nil {
		return nil, errFirebaseUninitialised
	}
	ctx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.VerifyIDToken(ctx, idToken)
}

// CreateStaffAccount creates an email/password sign-in and returns its uid.
func (c *FirebaseClient) CreateStaffAccount(ctx context.Context, account StaffAccount) (string, error) {
	if c == nil || c.client == nil {
		return "", errFirebaseUninitialised
	}
	ctx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()

	params := (&firebaseauth.UserToCreate{}).
		Email(strings.TrimSpace(account.Email)).
		Password(account.Password)
	if name := strings.TrimSpace(account.DisplayName); name != "" {
		params = params.DisplayName(name)
	}

	record, err := c.client.CreateUser(ctx, params)
	switch {
	case err == nil:
		return record.UID, nil
	case firebaseauth.IsEmailAlreadyExists(err):
		return "", fmt.Errorf("%w: %s", ErrEmailTaken, account.Email)
	case strings.Contains(strings.ToLower(err.Error()), "password"):
		return "", fmt.Errorf("%w: %v", ErrWeakPassword, err)
	default:
		return "", fmt.Errorf("create firebase user: %w", err)
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
