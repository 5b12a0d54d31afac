package di

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/karingamassive/membership-service/internal/app"
	"github.com/karingamassive/membership-service/internal/config"
	"github.com/karingamassive/membership-service/internal/database"
	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/health"
	"github.com/karingamassive/membership-service/internal/http/handler"
	"github.com/karingamassive/membership-service/internal/http/middleware"
	"github.com/karingamassive/membership-service/internal/http/router"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/queue"
	"github.com/karingamassive/membership-service/internal/ratelimit"
	"github.com/karingamassive/membership-service/internal/repository"
	"github.com/karingamassive/membership-service/internal/security"
	"github.com/karingamassive/membership-service/internal/service"
	"github.com/karingamassive/membership-service/internal/sidestore"
)

var ConfigSet = wire.NewSet(provideLogPipeline, provideLogger)

var ObservabilitySet = wire.NewSet(provideObservability)

var InfraSet = wire.NewSet(provideRedisClient, provideDB, provideSideStore, providePublisher, repository.NewUserRepository)

var SecuritySet = wire.NewSet(provideJWTManager, service.NewRefreshStore, provideTokenService, provideOTPStore)

var RateLimitSet = wire.NewSet(provideLoginGuard, provideGenericLimiter)

var ServiceSet = wire.NewSet(
	provideNegativeLookupCache,
	provideSearchCache,
	provideAuthConfig,
	service.NewAuthService,
	provideUserService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.UserServiceInterface), new(*service.UserService)),
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewUserHandler,
	provideReadiness,
	provideRouterDependencies,
	provideHTTPHandler,
	provideHTTPServer,
)

// LogPipeline is the optional OTLP log export path; both fields are nil
// when OTEL logs are disabled.
type LogPipeline struct {
	Provider *sdklog.LoggerProvider
	Handler  slog.Handler
}

func provideLogPipeline(ctx context.Context, cfg *config.Config) (*LogPipeline, error) {
	lp, h, err := observability.InitLogs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &LogPipeline{Provider: lp, Handler: h}, nil
}

func provideLogger(cfg *config.Config, pipe *LogPipeline) *slog.Logger {
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, pipe.Handler)
	slog.SetDefault(logger)
	return logger
}

func provideObservability(ctx context.Context, cfg *config.Config, logger *slog.Logger, pipe *LogPipeline) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, pipe.Provider)
}

func provideRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	return sidestore.Connect(ctx, sidestore.ClientOptions{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
		OpTimeout:   cfg.RedisOpTimeout,
	}, logger)
}

func provideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

func provideSideStore(client *redis.Client, cfg *config.Config) sidestore.Store {
	return sidestore.NewRedisStore(client, cfg.RedisKeyPrefix, cfg.RedisOpTimeout)
}

func providePublisher(cfg *config.Config, logger *slog.Logger) queue.Publisher {
	if cfg.AMQPEnabled {
		return queue.NewAMQPPublisher(cfg.AMQPURL, logger)
	}
	logger.Warn("rabbitmq disabled, account events are only logged")
	return queue.NewLogPublisher(logger)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideTokenService(jwtMgr *security.JWTManager, store *service.RefreshStore, cfg *config.Config) *service.TokenService {
	return service.NewTokenService(jwtMgr, store, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideOTPStore(store sidestore.Store, cfg *config.Config) *service.OTPStore {
	return service.NewOTPStore(store, cfg.OTPTTL)
}

func keyPrefix(cfg *config.Config, name string) string {
	if cfg.RedisKeyPrefix == "" {
		return name
	}
	return cfg.RedisKeyPrefix + ":" + name
}

// The in-process insurance backend is shared by every fail-closed tier so
// an outage keeps enforcing per-process budgets.
func provideLoginGuard(client *redis.Client, cfg *config.Config, logger *slog.Logger) *ratelimit.LoginGuard {
	backend := ratelimit.NewRedisBackend(client, keyPrefix(cfg, "rl"), cfg.RedisOpTimeout)
	insurance := ratelimit.NewMemoryBackend()
	limiter := func(name string, p config.LimiterPolicy) *ratelimit.Limiter {
		return ratelimit.NewLimiter(ratelimit.PolicyFrom(name, p), backend, insurance, logger)
	}
	return ratelimit.NewLoginGuard(
		limiter("login_fail_ip", cfg.LoginLimitByIP),
		limiter("login_fail_ip_per_day", cfg.LoginLimitByIPPerDay),
		limiter("login_fail_consecutive_contact_and_ip", cfg.LoginLimitByContactIP),
	)
}

func provideGenericLimiter(client *redis.Client, cfg *config.Config, logger *slog.Logger) router.GenericRateLimiterFunc {
	backend := ratelimit.NewRedisBackend(client, keyPrefix(cfg, "rl"), cfg.RedisOpTimeout)
	limiter := ratelimit.NewLimiter(ratelimit.PolicyFrom("generic", cfg.GenericLimit), backend, ratelimit.NewMemoryBackend(), logger)
	return middleware.NewRateLimiter(limiter, cfg.GenericLimitCost, nil, logger).Middleware()
}

func provideNegativeLookupCache(client *redis.Client, cfg *config.Config) service.NegativeLookupCacheStore {
	return service.NewRedisNegativeLookupCacheStore(client, keyPrefix(cfg, "negative_lookup_cache"), cfg.RedisOpTimeout)
}

func provideSearchCache(client *redis.Client, cfg *config.Config) service.ListCacheStore {
	return service.NewRedisListCacheStore(client, keyPrefix(cfg, "list_cache"), cfg.RedisOpTimeout)
}

func provideUserService(
	users repository.UserRepository,
	tokens *service.TokenService,
	publisher queue.Publisher,
	searchCache service.ListCacheStore,
	cfg *config.Config,
	logger *slog.Logger,
) *service.UserService {
	return service.NewUserService(users, tokens, publisher, searchCache, cfg.SearchCacheTTL, logger)
}

func provideAuthConfig(cfg *config.Config) service.AuthConfig {
	return service.AuthConfig{BcryptCost: cfg.BcryptCost, NegativeLookupTTL: cfg.NegativeLookupTTL}
}

func provideReadiness(client *redis.Client, db *gorm.DB) *health.ProbeRunner {
	return health.NewProbeRunner(0, 0, health.RedisChecker(client), health.DBChecker(db))
}

func provideRouterDependencies(
	cfg *config.Config,
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	tokens *service.TokenService,
	generic router.GenericRateLimiterFunc,
	readiness *health.ProbeRunner,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		UserHandler:    userHandler,
		Verifier:       tokens,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
		GenericLimiter: generic,
		Readiness:      readiness,
		EnableOTelHTTP: cfg.OTELHTTPEnabled,
	}
}

func provideHTTPHandler(dep router.Dependencies) http.Handler {
	return router.NewRouter(dep)
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	client *redis.Client,
	db *gorm.DB,
) *app.App {
	return app.New(cfg, logger, server, runtime, readiness,
		func() error { return database.Close(db) },
		client.Close,
	)
}

// AdminTools backs the operator commands. Close releases its connections.
type AdminTools struct {
	Auth  *service.AuthService
	Users *service.UserService

	client *redis.Client
	db     *gorm.DB
}

func (t *AdminTools) Close() error {
	var errs []error
	if err := t.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := database.Close(t.db); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func provideAdminTools(auth *service.AuthService, users *service.UserService, client *redis.Client, db *gorm.DB) *AdminTools {
	return &AdminTools{Auth: auth, Users: users, client: client, db: db}
}

func (t *AdminTools) Bootstrap(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
	return t.Auth.Bootstrap(ctx, in)
}

func (t *AdminTools) SetStatus(ctx context.Context, actorID, targetID uint, status domain.Status) (*domain.User, error) {
	return t.Users.SetStatus(ctx, actorID, targetID, status)
}
