package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Thaynan-souza/raphietro-atelier/internal/handlers"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/config"
	pfirestore "github.com/Thaynan-souza/raphietro-atelier/internal/platform/firestore"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/idempotency"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/jobs"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/observability"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/secrets"
	platformstorage "github.com/Thaynan-souza/raphietro-atelier/internal/platform/storage"
	"github.com/Thaynan-souza/raphietro-atelier/internal/receipt"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
	firestoreRepo "github.com/Thaynan-souza/raphietro-atelier/internal/repositories/firestore"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

const (
	closeTimeout   = 5 * time.Second
	lookupWindow   = time.Minute
	healthTimeout  = 1500 * time.Millisecond
	secretProbeRef = "secret://system/healthz"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	secretCfg, err := config.Secrets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read secret settings: %v\n", err)
		os.Exit(1)
	}

	bootLogger, err := observability.NewLogger("info", secretCfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(bootLogger.Named("secrets")),
		secrets.WithProject(secretCfg.ProjectID),
		secrets.WithFallbackFile(secretCfg.FallbackFile),
	)
	if err != nil {
		bootLogger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			bootLogger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			bootLogger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	baseLogger, err := observability.NewLogger(cfg.Logging.Level, cfg.Secrets.Environment)
	if err != nil {
		bootLogger.Fatal("failed to initialise logger", zap.Error(err))
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)
	events := observability.EventLogger(logger.Named("services"))

	googleOpts := googleClientOptions(cfg.Firebase)

	provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(googleOpts...))
	firestoreClient, err := provider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	clientRepo, err := firestoreRepo.NewClientRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise client repository", zap.Error(err))
	}
	serviceRepo, err := firestoreRepo.NewServiceRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise service repository", zap.Error(err))
	}
	staffRepo, err := firestoreRepo.NewStaffRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise staff repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}

	firebaseClient, err := auth.NewFirebaseClient(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase client", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseClient, auth.WithRoleLoader(staffRoleLoader(staffRepo)))

	var (
		publisher services.OrderEventPublisher = services.NoopOrderEventPublisher{}
		topic     *pubsub.Topic
	)
	if cfg.Events.OrderTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID, googleOpts...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic = pubsubClient.Topic(cfg.Events.OrderTopic)
		pubsubPublisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		defer pubsubPublisher.Stop()
		publisher = pubsubPublisher
	} else {
		logger.Info("order events disabled; API_ORDER_EVENTS_TOPIC not set")
	}

	var (
		printer   services.PrintSurface
		gcsClient *cloudstorage.Client
		linker    handlers.ReceiptLinker
	)
	if cfg.Receipts.Bucket != "" {
		gcsClient, err = cloudstorage.NewClient(ctx, googleOpts...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		archive, err := platformstorage.NewReceiptArchive(gcsClient, cfg.Receipts.Bucket, cfg.Receipts.ObjectPrefix)
		if err != nil {
			logger.Fatal("failed to initialise receipt archive", zap.Error(err))
		}
		printer = archive
		linker = archive
	} else {
		logger.Info("receipt archive disabled; API_RECEIPT_BUCKET not set")
	}

	profile, err := receipt.LoadProfile(cfg.Receipts.ProfilePath)
	if err != nil {
		logger.Fatal("failed to load receipt profile", zap.Error(err), zap.String("path", cfg.Receipts.ProfilePath))
	}
	renderer := receipt.NewRenderer(profile)

	builder, err := services.NewOrderBuilder(services.OrderBuilderDeps{
		Clients:  clientRepo,
		Services: serviceRepo,
		Staff:    staffRepo,
		Orders:   orderRepo,
		Renderer: renderer,
		Printer:  printer,
		Events:   publisher,
		Clock:    time.Now,
		Location: cfg.Locale.Location,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order builder", zap.Error(err))
	}
	statusEngine, err := services.NewStatusEngine(services.StatusEngineDeps{
		Orders: orderRepo,
		Events: publisher,
		Clock:  time.Now,
		Logger: events,
	})
	if err != nil {
		logger.Fatal("failed to initialise status engine", zap.Error(err))
	}
	registration, err := services.NewRegistrationService(services.RegistrationServiceDeps{
		Clients:  clientRepo,
		Services: serviceRepo,
		Staff:    staffRepo,
		Counters: counterRepo,
		Accounts: firebaseClient,
		Clock:    time.Now,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise registration service", zap.Error(err))
	}

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	board, err := services.NewOrderBoard(listenCtx, orderRepo,
		services.WithBoardLocation(cfg.Locale.Location),
		services.WithBoardLogger(events),
	)
	if err != nil {
		logger.Fatal("failed to subscribe to orders", zap.Error(err))
	}
	defer board.Close()
	catalog, err := services.NewCatalogView(listenCtx, serviceRepo, staffRepo, clientRepo, events)
	if err != nil {
		logger.Fatal("failed to subscribe to catalog", zap.Error(err))
	}
	defer catalog.Close()

	checks := dependencyChecks(firestoreClient, topic, gcsClient, cfg.Receipts.Bucket, fetcher, cfg.Secrets.ProjectID)
	healthRepo, err := repositories.NewHealthRepository(checks, repositories.WithDependencyTimeout(healthTimeout))
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            time.Now,
		Build: services.BuildInfo{
			Version:     valueOr(cfg.Build.Version, "dev"),
			CommitSHA:   valueOr(cfg.Build.CommitSHA, "unknown"),
			Environment: cfg.Secrets.Environment,
			StartedAt:   startedAt,
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(handlers.WithHealthSystemService(systemService))

	idempotencyOpts := []idempotency.MiddlewareOption{idempotency.WithTTL(cfg.Requests.IdempotencyTTL)}
	if cfg.Requests.IdempotencyRequired {
		idempotencyOpts = append(idempotencyOpts, idempotency.WithRequiredKey())
	}
	submitGuard := idempotency.Middleware(idempotency.NewFirestoreStore(provider, ""), idempotencyOpts...)

	orderHandlers := handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
		Authenticator:    authenticator,
		Creator:          builder,
		Board:            board,
		Status:           statusEngine,
		Store:            orderRepo,
		Renderer:         renderer,
		Linker:           linker,
		SubmitMiddleware: submitGuard,
		Location:         cfg.Locale.Location,
	})
	catalogHandlers := handlers.NewCatalogHandlers(authenticator, clientRepo, catalog, registration,
		handlers.WithLookupLimit(cfg.Requests.ClientLookupLimit, lookupWindow, nil),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithClientRoutes(catalogHandlers.ClientRoutes),
		handlers.WithServiceRoutes(catalogHandlers.ServiceRoutes),
		handlers.WithStaffRoutes(catalogHandlers.StaffRoutes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	serverErr := make(chan error, 1)
	go func() {
		serverLogger.Info("atelier api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-shutdown:
		logger.Info("shutdown signal received; draining requests")
	case err := <-serverErr:
		logger.Error("http server error", zap.Error(err))
	}

	stopListening()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func googleClientOptions(cfg config.FirebaseConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case cfg.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
	default:
		return nil
	}
}

// staffRoleLoader reads the role from the staff profile keyed by the auth uid.
// Accounts without a profile carry no role.
func staffRoleLoader(staff repositories.StaffRepository) auth.RoleLoader {
	return func(ctx context.Context, uid string) ([]string, error) {
		member, err := staff.Get(ctx, uid)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, nil
			}
			return nil, err
		}
		if member.Role == "" {
			return nil, nil
		}
		return []string{string(member.Role)}, nil
	}
}

func dependencyChecks(client *firestore.Client, topic *pubsub.Topic, gcs *cloudstorage.Client, bucket string, fetcher *secrets.Fetcher, secretProject string) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			_, err := client.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	}}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}
	if gcs != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "storage",
			Check: func(ctx context.Context) error {
				_, err := gcs.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}
	if fetcher != nil && secretProject != "" {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.ResolveSecret(ctx, secretProbeRef)
				if err == nil {
					return nil
				}
				if status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
