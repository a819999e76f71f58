// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/guardrail/internal/alert"
	auditRepository "github.com/allisson/guardrail/internal/audit/repository"
	auditUsecase "github.com/allisson/guardrail/internal/audit/usecase"
	"github.com/allisson/guardrail/internal/config"
	"github.com/allisson/guardrail/internal/csrf"
	"github.com/allisson/guardrail/internal/database"
	"github.com/allisson/guardrail/internal/metrics"
	"github.com/allisson/guardrail/internal/pipeline"
	"github.com/allisson/guardrail/internal/ratelimit"
)

// sweepInterval is how often the in-memory rate limit store drops expired buckets.
const sweepInterval = time.Minute

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	redisClient     redis.UniversalClient
	metricsProvider *metrics.Provider

	// Managers
	txManager database.TxManager

	// Repositories
	eventRepo auditUsecase.EventRepository
	groupRepo auditUsecase.ErrorGroupRepository

	// Components
	auditLogger     *auditUsecase.Logger
	limiter         *ratelimit.Limiter
	csrfService     *csrf.Service
	securityMetrics metrics.SecurityMetrics
	dispatcher      *alert.Dispatcher
	securityPipe    *pipeline.Pipeline

	// Background cancellation for the memory store sweeper
	sweepCancel context.CancelFunc

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	redisInit           sync.Once
	txManagerInit       sync.Once
	eventRepoInit       sync.Once
	groupRepoInit       sync.Once
	auditLoggerInit     sync.Once
	limiterInit         sync.Once
	csrfInit            sync.Once
	metricsProviderInit sync.Once
	securityMetricsInit sync.Once
	dispatcherInit      sync.Once
	pipelineInit        sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// EventRepository returns the audit event repository instance.
func (c *Container) EventRepository() (auditUsecase.EventRepository, error) {
	var err error
	c.eventRepoInit.Do(func() {
		c.eventRepo, err = c.initEventRepository()
		if err != nil {
			c.initErrors["eventRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventRepo"]; exists {
		return nil, storedErr
	}
	return c.eventRepo, nil
}

// ErrorGroupRepository returns the audit error group repository instance.
func (c *Container) ErrorGroupRepository() (auditUsecase.ErrorGroupRepository, error) {
	var err error
	c.groupRepoInit.Do(func() {
		c.groupRepo, err = c.initErrorGroupRepository()
		if err != nil {
			c.initErrors["groupRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["groupRepo"]; exists {
		return nil, storedErr
	}
	return c.groupRepo, nil
}

// AuditLogger returns the audit store use case instance.
func (c *Container) AuditLogger() (*auditUsecase.Logger, error) {
	var err error
	c.auditLoggerInit.Do(func() {
		c.auditLogger, err = c.initAuditLogger()
		if err != nil {
			c.initErrors["auditLogger"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditLogger"]; exists {
		return nil, storedErr
	}
	return c.auditLogger, nil
}

// RateLimiter returns the rate limiter instance backed by the configured store.
func (c *Container) RateLimiter() (*ratelimit.Limiter, error) {
	var err error
	c.limiterInit.Do(func() {
		c.limiter, err = c.initRateLimiter()
		if err != nil {
			c.initErrors["limiter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["limiter"]; exists {
		return nil, storedErr
	}
	return c.limiter, nil
}

// CSRFService returns the CSRF token service instance.
func (c *Container) CSRFService() *csrf.Service {
	c.csrfInit.Do(func() {
		c.csrfService = csrf.NewService()
	})
	return c.csrfService
}

// MetricsProvider returns the metrics provider instance.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// SecurityMetrics returns the security metrics recorder. When metrics are
// disabled in configuration, a no-op recorder is returned.
func (c *Container) SecurityMetrics() (metrics.SecurityMetrics, error) {
	var err error
	c.securityMetricsInit.Do(func() {
		c.securityMetrics, err = c.initSecurityMetrics()
		if err != nil {
			c.initErrors["securityMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["securityMetrics"]; exists {
		return nil, storedErr
	}
	return c.securityMetrics, nil
}

// AlertDispatcher returns the alert dispatcher with all configured channels.
func (c *Container) AlertDispatcher() *alert.Dispatcher {
	c.dispatcherInit.Do(func() {
		c.dispatcher = c.initAlertDispatcher()
	})
	return c.dispatcher
}

// Pipeline returns the security pipeline instance.
func (c *Container) Pipeline() (*pipeline.Pipeline, error) {
	var err error
	c.pipelineInit.Do(func() {
		c.securityPipe, err = c.initPipeline()
		if err != nil {
			c.initErrors["pipeline"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["pipeline"]; exists {
		return nil, storedErr
	}
	return c.securityPipe, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	// Stop the memory store sweeper if running
	if c.sweepCancel != nil {
		c.sweepCancel()
	}

	// Wait for in-flight alert deliveries
	if c.dispatcher != nil {
		c.dispatcher.Wait()
	}

	// Shutdown metrics provider if initialized
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// Close redis client if initialized
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
		}
	}

	// Close database connection if initialized
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	// Return combined errors if any occurred
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(context.Background(), database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initEventRepository creates the audit event repository instance.
func (c *Container) initEventRepository() (auditUsecase.EventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for event repository: %w", err)
	}

	driver, err := database.NormalizeDriver(c.config.DBDriver)
	if err != nil {
		return nil, err
	}

	// Select the appropriate repository based on the database driver
	switch driver {
	case database.DriverMySQL:
		return auditRepository.NewMySQLEventRepository(db), nil
	default:
		return auditRepository.NewPostgreSQLEventRepository(db), nil
	}
}

// initErrorGroupRepository creates the audit error group repository instance.
func (c *Container) initErrorGroupRepository() (auditUsecase.ErrorGroupRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for error group repository: %w", err)
	}

	driver, err := database.NormalizeDriver(c.config.DBDriver)
	if err != nil {
		return nil, err
	}

	// Select the appropriate repository based on the database driver
	switch driver {
	case database.DriverMySQL:
		return auditRepository.NewMySQLErrorGroupRepository(db), nil
	default:
		return auditRepository.NewPostgreSQLErrorGroupRepository(db), nil
	}
}

// initAuditLogger creates the audit store use case with its repositories.
func (c *Container) initAuditLogger() (*auditUsecase.Logger, error) {
	eventRepo, err := c.EventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get event repository for audit logger: %w", err)
	}

	groupRepo, err := c.ErrorGroupRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get error group repository for audit logger: %w", err)
	}

	return auditUsecase.NewLogger(eventRepo, groupRepo, c.config.AuditComponent, c.Logger()), nil
}

// initRateLimiter creates the rate limiter with the configured store backend.
func (c *Container) initRateLimiter() (*ratelimit.Limiter, error) {
	var store ratelimit.Store

	switch c.config.RateLimitStore {
	case "redis":
		client, err := c.Redis()
		if err != nil {
			return nil, fmt.Errorf("failed to get redis client for rate limiter: %w", err)
		}
		store = ratelimit.NewRedisStore(client)
	case "memory", "":
		memStore := ratelimit.NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		c.sweepCancel = cancel
		memStore.StartSweeping(ctx, sweepInterval)
		store = memStore
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", c.config.RateLimitStore)
	}

	configs := map[ratelimit.Category]ratelimit.Config{
		ratelimit.CategoryAuth:    {Limit: c.config.RateLimitAuthPerMin, Window: time.Minute},
		ratelimit.CategoryAPI:     {Limit: c.config.RateLimitAPIPerMin, Window: time.Minute},
		ratelimit.CategoryBooking: {Limit: c.config.RateLimitBookingPerMin, Window: time.Minute},
		ratelimit.CategorySearch:  {Limit: c.config.RateLimitSearchPerMin, Window: time.Minute},
		ratelimit.CategoryUpload:  {Limit: c.config.RateLimitUploadPerMin, Window: time.Minute},
		ratelimit.CategoryAdmin:   {Limit: c.config.RateLimitAdminPerMin, Window: time.Minute},
	}

	limiter, err := ratelimit.NewLimiter(store, configs)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	return limiter, nil
}

// Redis returns the redis client used by the redis-backed rate limit store.
func (c *Container) Redis() (redis.UniversalClient, error) {
	var err error
	c.redisInit.Do(func() {
		client := redis.NewClient(&redis.Options{
			Addr:     c.config.RedisAddr,
			Password: c.config.RedisPassword,
		})
		if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
			err = fmt.Errorf("failed to ping redis: %w", pingErr)
			c.initErrors["redis"] = err
			return
		}
		c.redisClient = client
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["redis"]; exists {
		return nil, storedErr
	}
	return c.redisClient, nil
}

// initSecurityMetrics creates the security metrics recorder.
func (c *Container) initSecurityMetrics() (metrics.SecurityMetrics, error) {
	if !c.config.MetricsEnabled {
		return metrics.NewNoopMetrics(), nil
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider: %w", err)
	}

	securityMetrics, err := metrics.NewSecurityMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create security metrics: %w", err)
	}

	return securityMetrics, nil
}

// initAlertDispatcher creates the alert dispatcher with all configured channels.
func (c *Container) initAlertDispatcher() *alert.Dispatcher {
	var notifiers []alert.Notifier

	if c.config.AlertWebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(c.config.AlertWebhookURL))
	}

	if c.config.AlertEmailAPIKey != "" && c.config.AlertEmailFrom != "" {
		if recipients := c.config.EmailRecipients(); len(recipients) > 0 {
			notifiers = append(notifiers, alert.NewEmailNotifier(
				c.config.AlertEmailAPIKey,
				c.config.AlertEmailFrom,
				recipients,
			))
		}
	}

	return alert.NewDispatcher(notifiers, c.config.AlertSendsPerMinute, c.Logger())
}

// initPipeline creates the security pipeline with all its dependencies.
func (c *Container) initPipeline() (*pipeline.Pipeline, error) {
	limiter, err := c.RateLimiter()
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limiter for pipeline: %w", err)
	}

	auditLogger, err := c.AuditLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logger for pipeline: %w", err)
	}

	securityMetrics, err := c.SecurityMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get security metrics for pipeline: %w", err)
	}

	cfg := pipeline.Config{
		AllowedOrigins:      c.config.OriginList(),
		CSRFEnabled:         c.config.CSRFEnabled,
		MaxBodyBytes:        c.config.MaxBodyBytes,
		AllowedContentTypes: c.config.ContentTypeList(),
		LogRequests:         c.config.LogRequests,
	}

	return pipeline.New(
		cfg,
		limiter,
		c.CSRFService(),
		auditLogger,
		securityMetrics,
		c.AlertDispatcher(),
		c.Logger(),
	), nil
}
