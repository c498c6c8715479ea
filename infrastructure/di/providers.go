package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/commands/bus"
	commandhandlers "github.com/MartinFunctu/lifeos/application/commands/handlers"
	"github.com/MartinFunctu/lifeos/application/ports"
	querybus "github.com/MartinFunctu/lifeos/application/queries/bus"
	queryhandlers "github.com/MartinFunctu/lifeos/application/queries/handlers"
	"github.com/MartinFunctu/lifeos/application/services"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/infrastructure/config"
	"github.com/MartinFunctu/lifeos/infrastructure/messaging"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/decorators"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/dynamodb"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/memory"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/sqlite"
	"github.com/MartinFunctu/lifeos/interfaces/http/rest"
	"github.com/MartinFunctu/lifeos/interfaces/http/rest/middleware"
	"github.com/MartinFunctu/lifeos/pkg/auth"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
	"github.com/MartinFunctu/lifeos/pkg/observability"
)

const (
	serviceName      = "lifeos-canvas"
	metricsNamespace = "lifeos"
	// devJWTSecret signs tokens outside production when JWT_SECRET is unset
	devJWTSecret = "development-secret-change-in-production"
	jwtAudience  = "lifeos-api"
)

// Store is a backing graph store that can report readiness
type Store interface {
	ports.GraphRepository
	ports.HealthChecker
}

// ProvideAtomicLevel creates the log level shared with the config watcher
func ProvideAtomicLevel(cfg *config.Config) zap.AtomicLevel {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() || cfg.IsLambda {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector(metricsNamespace)
}

// ProvideTracerProvider starts the OTLP exporter when tracing is enabled
// outside Lambda. It returns nil otherwise.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing || cfg.IsLambda {
		return nil, func() {}, nil
	}

	tp, err := observability.InitTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideTracer returns the tracer used by the repository decorator
func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	if tp == nil {
		return noop.NewTracerProvider().Tracer(serviceName)
	}
	return tp.Tracer()
}

// ProvideFunctionTracer returns the tracer that wraps command handling:
// X-Ray in Lambda, OpenTelemetry when enabled, nothing otherwise.
func ProvideFunctionTracer(cfg *config.Config, tp *observability.TracerProvider) observability.FunctionTracer {
	switch {
	case cfg.IsLambda && cfg.EnableTracing:
		return observability.NewXRayTracer(serviceName)
	case tp != nil:
		return tp
	default:
		return observability.NopTracer{}
	}
}

// ProvideStore opens the configured backing store
func ProvideStore(ctx context.Context, cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (Store, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageDynamoDB:
		return dynamodb.NewGraphRepository(client, cfg.DynamoDBTable, logger), func() {}, nil
	case config.StorageSQLite:
		repo, err := sqlite.NewGraphRepository(ctx, sqlite.Config{Path: cfg.SQLitePath}, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := repo.Close(); err != nil {
				logger.Warn("Failed to close sqlite store", zap.Error(err))
			}
		}
		return repo, cleanup, nil
	case config.StorageMemory:
		return memory.NewGraphRepository(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ProvideHealthChecker exposes the store for readiness probes
func ProvideHealthChecker(store Store) ports.HealthChecker {
	return store
}

// ProvideGraphRepository builds the repository chain seen by the
// application: ownership guard, circuit breaker, tracing, metrics, store.
func ProvideGraphRepository(
	store Store,
	cfg *config.Config,
	metrics *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) ports.GraphRepository {
	var repo ports.GraphRepository = store
	repo = decorators.NewMetricsRepository(repo, metrics)
	repo = decorators.NewTracingRepository(repo, tracer)

	breakerCfg := decorators.DefaultCircuitBreakerConfig("graph-store")
	breakerCfg.MaxFailures = uint32(cfg.BreakerMaxFailures)
	breakerCfg.Timeout = cfg.BreakerTimeout
	repo = decorators.NewCircuitBreakerRepository(repo, breakerCfg, logger, func(name string, to gobreaker.State) {
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	})

	return services.NewOwnershipGuard(repo)
}

// ProvideEventBus creates the event bus: the configured publisher, plus
// CloudWatch business metrics in Lambda.
func ProvideEventBus(
	cfg *config.Config,
	eventBridge *awseventbridge.Client,
	cloudWatch *awscloudwatch.Client,
	logger *zap.Logger,
) ports.EventBus {
	var buses messaging.Fanout
	switch cfg.EventsBackend {
	case config.EventsEventBridge:
		buses = append(buses, messaging.NewEventBridgePublisher(eventBridge, cfg.EventBusName, logger))
	default:
		buses = append(buses, messaging.NewLogPublisher(logger))
	}
	if cfg.IsLambda && cfg.EnableMetrics {
		buses = append(buses, observability.NewCloudWatchReporter(cloudWatch, "LifeOS/Canvas", cfg.Environment, logger))
	}
	if len(buses) == 1 {
		return buses[0]
	}
	return buses
}

// ProvideCascadeCoordinator creates the node deletion coordinator
func ProvideCascadeCoordinator(
	repo ports.GraphRepository,
	eventBus ports.EventBus,
	cfg *config.Config,
	logger *zap.Logger,
) (*services.CascadeCoordinator, error) {
	policy, err := entities.ParseOrphanPolicy(cfg.OrphanPolicy)
	if err != nil {
		return nil, err
	}
	return services.NewCascadeCoordinator(repo, eventBus, policy, logger), nil
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	repo ports.GraphRepository,
	cascade *services.CascadeCoordinator,
	eventBus ports.EventBus,
	tracer observability.FunctionTracer,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.TracingMiddleware(tracer),
		bus.LoggingMiddleware(logger),
	)
	if err := commandhandlers.Register(commandBus, repo, cascade, eventBus, logger); err != nil {
		return nil, fmt.Errorf("failed to register command handlers: %w", err)
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(repo ports.GraphRepository, logger *zap.Logger) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(logger)
	if err := queryhandlers.NewGraphQueryHandler(repo, logger).Register(queryBus); err != nil {
		return nil, fmt.Errorf("failed to register query handlers: %w", err)
	}
	return queryBus, nil
}

// RateLimiters holds the per-IP and per-user limiters
type RateLimiters struct {
	IP   auth.RateLimiter
	User auth.RateLimiter
}

// Apply updates the limits of both limiters
func (l *RateLimiters) Apply(requestsPerMinute, burst int) {
	for _, limiter := range []auth.RateLimiter{l.IP, l.User} {
		switch lim := limiter.(type) {
		case *auth.KeyedLimiter:
			lim.SetLimit(requestsPerMinute, burst)
		case *auth.DistributedRateLimiter:
			lim.SetLimit(requestsPerMinute)
		}
	}
}

// ProvideRateLimiters creates in-process limiters, or DynamoDB-backed ones
// in Lambda where instances do not share memory.
func ProvideRateLimiters(cfg *config.Config, client *awsdynamodb.Client) *RateLimiters {
	if cfg.IsLambda && cfg.StorageBackend == config.StorageDynamoDB {
		return &RateLimiters{
			IP:   auth.NewDistributedIPRateLimiter(client, cfg.DynamoDBTable, cfg.RateLimitRPM),
			User: auth.NewDistributedUserRateLimiter(client, cfg.DynamoDBTable, cfg.RateLimitRPM),
		}
	}
	return &RateLimiters{
		IP:   auth.NewKeyedLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		User: auth.NewKeyedLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
	}
}

// ProvideErrorHandler creates the HTTP error renderer
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// JWTSecret returns the signing secret, falling back to a development
// secret outside production
func JWTSecret(cfg *config.Config) string {
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		return devJWTSecret
	}
	return cfg.JWTSecret
}

// JWTAudience returns the expected token audience
func JWTAudience(cfg *config.Config) string {
	if cfg.JWTAudience == "" {
		return jwtAudience
	}
	return cfg.JWTAudience
}

// ProvideAuthenticator creates the API authenticator. In Lambda, API
// Gateway validates tokens before the function runs.
func ProvideAuthenticator(
	cfg *config.Config,
	limiters *RateLimiters,
	errHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) (*middleware.Authenticator, error) {
	if cfg.IsLambda {
		return middleware.NewGatewayAuthenticator(limiters.IP, limiters.User, errHandler, logger), nil
	}

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     JWTSecret(cfg),
		Issuer:        cfg.JWTIssuer,
		Audience:      []string{JWTAudience(cfg)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}
	return middleware.NewAuthenticator(validator, limiters.IP, limiters.User, errHandler, logger), nil
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	authenticator *middleware.Authenticator,
	errHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	health ports.HealthChecker,
	logger *zap.Logger,
) *rest.Router {
	opts := rest.Options{Health: health}
	if cfg.EnableMetrics && !cfg.IsLambda {
		opts.Metrics = metrics
	}
	if cfg.EnableCORS {
		opts.CORSOrigins = cfg.CORSOrigins
	}
	return rest.NewRouter(commandBus, queryBus, authenticator, errHandler, logger, opts)
}
