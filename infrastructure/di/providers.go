package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/go-chi/cors"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/application/services"
	"memorymap-backend/application/session"
	"memorymap-backend/infrastructure/config"
	"memorymap-backend/infrastructure/geocoding"
	"memorymap-backend/infrastructure/notification"
	"memorymap-backend/infrastructure/persistence/dynamodb"
	"memorymap-backend/infrastructure/persistence/file"
	"memorymap-backend/infrastructure/persistence/memory"
	"memorymap-backend/infrastructure/persistence/postgres"
	"memorymap-backend/interfaces/http/rest"
	"memorymap-backend/interfaces/websocket"
	"memorymap-backend/pkg/auth"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/pkg/observability"
)

// Logging bundles the process logger with the level handle used by config
// reloads.
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// ProvideLogging creates the process logger
func ProvideLogging(cfg *config.Config) (*Logging, error) {
	logger, level, err := observability.NewLogger(string(cfg.Environment), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &Logging{Logger: logger, Level: level}, nil
}

// ProvideLogger extracts the logger from Logging
func ProvideLogger(l *Logging) *zap.Logger {
	return l.Logger
}

// ProvideClock returns the wall clock
func ProvideClock() clock.Clock {
	return clock.New()
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideMetrics creates the Prometheus metrics, or nil when disabled
func ProvideMetrics(cfg *config.Config) *observability.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewMetrics(cfg.Metrics.Namespace)
}

// ProvideAWSConfig loads the AWS SDK configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return dynamodb.NewClient(awsCfg, cfg.AWS.Endpoint)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config, cfg *config.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg, func(o *awseventbridge.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
}

// ProvideRemoteCollection selects the remote memory collection
func ProvideRemoteCollection(
	cfg *config.Config,
	client *awsdynamodb.Client,
	clk clock.Clock,
	logger *zap.Logger,
) (ports.RemoteCollection, func(), error) {
	switch cfg.Remote.Backend {
	case "", "memory":
		c := memory.NewCollection(logger)
		return c, c.Close, nil
	case "dynamodb":
		return dynamodb.NewCollection(client, cfg.Remote.TableName, cfg.Remote.PollInterval, clk, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

// ProvideBudgetStore selects where anniversary budgets are persisted
func ProvideBudgetStore(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	logger *zap.Logger,
) (ports.KeyValueStore, func(), error) {
	switch cfg.Budget.Backend {
	case "", "memory":
		return memory.NewKVStore(), func() {}, nil
	case "file":
		s, err := file.NewKVStore(cfg.Budget.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Budget.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewKVStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Budget store connected to PostgreSQL")
		return s, pool.Close, nil
	case "dynamodb":
		return dynamodb.NewKVStore(client, cfg.Budget.TableName), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown budget backend %q", cfg.Budget.Backend)
	}
}

// ProvideNominatim creates the Nominatim client
func ProvideNominatim(cfg *config.Config, logger *zap.Logger) *geocoding.NominatimBackend {
	return geocoding.NewNominatimBackend(geocoding.NominatimConfig{
		BaseURL:   cfg.Geocoding.BaseURL,
		UserAgent: cfg.Geocoding.UserAgent,
		Language:  cfg.Geocoding.Language,
		Timeout:   cfg.Geocoding.Timeout,
	}, logger)
}

// ProvideGeocodeBackend wraps Nominatim in a circuit breaker and, when a
// cache size is configured, a result cache.
func ProvideGeocodeBackend(
	cfg *config.Config,
	nominatim *geocoding.NominatimBackend,
	logger *zap.Logger,
) (ports.GeocodeBackend, func(), error) {
	var backend ports.GeocodeBackend = geocoding.NewBreakerBackend(nominatim, geocoding.BreakerConfig{
		Name:                "nominatim",
		ConsecutiveFailures: cfg.Geocoding.BreakerFailures,
		OpenTimeout:         cfg.Geocoding.BreakerOpenDelay,
	}, logger)

	if cfg.Geocoding.CacheSize <= 0 {
		return backend, func() {}, nil
	}
	cached, err := geocoding.NewCachedBackend(backend, geocoding.CacheConfig{
		MaxEntries: cfg.Geocoding.CacheSize,
		TTL:        cfg.Geocoding.CacheTTL,
		Precision:  cfg.Geocoding.CachePrecision,
	})
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// ProvideGeocodeResolver creates the address resolver
func ProvideGeocodeResolver(
	backend ports.GeocodeBackend,
	clk clock.Clock,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *services.GeocodeResolver {
	return services.NewGeocodeResolver(backend, clk, logger, metrics)
}

// ProvideHub creates the websocket hub
func ProvideHub(clk clock.Clock, logger *zap.Logger) *websocket.Hub {
	return websocket.NewHub(clk, logger)
}

// ProvideNotificationSink fans anniversary reminders out to every
// configured channel. The log sink is used when nothing else is enabled.
func ProvideNotificationSink(
	cfg *config.Config,
	hub *websocket.Hub,
	eventBridge *awseventbridge.Client,
	clk clock.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*notification.MultiSink, error) {
	n := cfg.Notifications
	var sinks []notification.Named

	if n.WebSocket {
		sinks = append(sinks, notification.Named{Name: "websocket", Sink: notification.NewWebSocketSink(hub)})
	}
	if n.EventBusName != "" {
		sinks = append(sinks, notification.Named{
			Name: "eventbridge",
			Sink: notification.NewEventBridgeSink(eventBridge, n.EventBusName, n.EventSource, clk),
		})
	}
	if n.TelegramEnabled() {
		bot, err := notification.NewTelegramBot(n.TelegramToken)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notification.Named{Name: "telegram", Sink: notification.NewTelegramSink(bot, n.TelegramChatID)})
	}
	if n.Log || len(sinks) == 0 {
		sinks = append(sinks, notification.Named{Name: "log", Sink: notification.NewLogSink(logger)})
	}

	multi := notification.NewMultiSink(metrics, logger, sinks...)
	logger.Info("Notification sinks configured", zap.Strings("sinks", multi.Names()))
	return multi, nil
}

// ProvideAnniversaryService creates the anniversary service
func ProvideAnniversaryService(
	cfg *config.Config,
	budgets ports.KeyValueStore,
	sink *notification.MultiSink,
	clk clock.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*services.AnniversaryService, error) {
	loc, err := cfg.Session.Location()
	if err != nil {
		return nil, err
	}
	return services.NewAnniversaryService(budgets, sink, clk, loc, cfg.Budget.KeyPrefix, logger, metrics), nil
}

// ProvideSessionManager creates the session manager. A user's session
// starts its idle countdown when their last websocket disconnects.
func ProvideSessionManager(
	cfg *config.Config,
	remote ports.RemoteCollection,
	resolver *services.GeocodeResolver,
	anniversaries *services.AnniversaryService,
	hub *websocket.Hub,
	clk clock.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*session.Manager, func(), error) {
	loc, err := cfg.Session.Location()
	if err != nil {
		return nil, nil, err
	}

	manager := session.NewManager(session.Dependencies{
		Remote:        remote,
		Resolver:      resolver,
		Anniversaries: anniversaries,
		Surfaces:      hub.SurfaceFor,
		Publisher:     websocket.NewPublisher(hub),
		Presence:      hub,
		Clock:         clk,
		Logger:        logger,
		Metrics:       metrics,
	}, session.Config{
		IdleTimeout:  cfg.Session.IdleTimeout,
		ReapInterval: cfg.Session.ReapInterval,
		Store:        services.MemoryStoreConfig{ResubscribeDelay: cfg.Store.ResubscribeDelay},
		Location:     loc,
	})

	hub.OnDisconnect(func(userID string, remaining int) {
		if remaining == 0 {
			manager.Touch(userID)
		}
	})
	return manager, manager.CloseAll, nil
}

// ProvideMemoryQueryService creates the memory query service
func ProvideMemoryQueryService(cfg *config.Config, remote ports.RemoteCollection, logger *zap.Logger) *services.MemoryQueryService {
	return services.NewMemoryQueryService(remote, cfg.Store.LoadTimeout, logger)
}

// ProvideAuthenticator creates the request authenticator
func ProvideAuthenticator(cfg *config.Config, clk clock.Clock) *auth.Authenticator {
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, 24*time.Hour, clk)
	return auth.NewAuthenticator(jwtService, cfg.Auth.AllowDevHeader)
}

// ProvideWebSocketServer creates the websocket upgrade handler
func ProvideWebSocketServer(
	cfg *config.Config,
	hub *websocket.Hub,
	authenticator *auth.Authenticator,
	manager *session.Manager,
	logger *zap.Logger,
) *websocket.Server {
	wsConfig := websocket.DefaultServerConfig()
	wsConfig.CheckOrigin = originChecker(cfg.CORS.AllowedOrigins)
	return websocket.NewServer(hub, authenticator, manager, wsConfig, logger)
}

// originChecker accepts requests without an Origin header and those whose
// origin is allowed by the CORS configuration.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Readiness names the checks served on /ready.
type Readiness map[string]rest.ReadinessCheck

// ProvideReadiness checks the budget store round trip.
func ProvideReadiness(budgets ports.KeyValueStore) Readiness {
	return Readiness{
		"budget": func(ctx context.Context) error {
			_, err := budgets.Get(ctx, "readiness-probe")
			if errors.Is(err, ports.ErrKeyNotFound) {
				return nil
			}
			return err
		},
	}
}

// ProvideRouter builds the HTTP handler
func ProvideRouter(
	cfg *config.Config,
	manager *session.Manager,
	queries *services.MemoryQueryService,
	authenticator *auth.Authenticator,
	wsServer *websocket.Server,
	readiness Readiness,
	metrics *observability.Metrics,
	logger *zap.Logger,
	errorHandler *pkgerrors.ErrorHandler,
) http.Handler {
	routerConfig := rest.RouterConfig{
		CORS: cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           cfg.CORS.MaxAge,
		},
		MetricsPath: cfg.Metrics.Path,
		WebSocket:   wsServer.HandleWebSocket,
		Readiness:   readiness,
	}
	if metrics != nil {
		routerConfig.Metrics = metrics.Handler()
	}
	return rest.NewRouter(manager, queries, authenticator, routerConfig, logger, errorHandler).Setup()
}
