// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/config"
	cryptoService "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/service"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
	groupkeyUseCase "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/usecase"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/http"
	identityRepository "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/repository"
	identityUseCase "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/usecase"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/metrics"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	redisClient     *redis.Client
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Managers
	txManager database.TxManager

	// Crypto services
	aeadManager  cryptoService.AEADManager
	keyGenerator cryptoService.KeyGenerator
	keyTransport cryptoService.KeyTransport
	kmsService   cryptoService.KMSService

	// Identity
	keyStore        *identityRepository.BlobKeyStore
	publicKeyRepo   identityUseCase.PublicKeyRepository
	identityUseCase identityUseCase.IdentityUseCase

	// Group keys
	wrappedKeyRepo      groupkeyUseCase.WrappedKeyRepository
	versionRepo         groupkeyUseCase.VersionRepository
	membershipRepo      groupkeyUseCase.MembershipRepository
	pendingRepo         groupkeyUseCase.PendingRepository
	keyCache            *groupkeyDomain.KeyCache
	cacheRegistration   metric.Registration
	keyAccessUseCase    groupkeyUseCase.KeyAccessUseCase
	distributionUseCase groupkeyUseCase.DistributionUseCase
	rotationUseCase     groupkeyUseCase.RotationUseCase

	// Servers and Workers
	opsServer     *http.OpsServer
	pendingWorker *groupkeyUseCase.PendingWorker

	// Initialization flags and mutex for thread-safety
	mu                      sync.Mutex
	loggerInit              sync.Once
	dbInit                  sync.Once
	redisClientInit         sync.Once
	metricsProviderInit     sync.Once
	businessMetricsInit     sync.Once
	txManagerInit           sync.Once
	aeadManagerInit         sync.Once
	keyGeneratorInit        sync.Once
	keyTransportInit        sync.Once
	kmsServiceInit          sync.Once
	keyStoreInit            sync.Once
	publicKeyRepoInit       sync.Once
	identityUseCaseInit     sync.Once
	wrappedKeyRepoInit      sync.Once
	versionRepoInit         sync.Once
	membershipRepoInit      sync.Once
	pendingRepoInit         sync.Once
	keyCacheInit            sync.Once
	keyAccessUseCaseInit    sync.Once
	distributionUseCaseInit sync.Once
	rotationUseCaseInit     sync.Once
	opsServerInit           sync.Once
	pendingWorkerInit       sync.Once
	initErrors              map[string]error
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

// RedisClient returns the redis client used by the redis pending store.
func (c *Container) RedisClient() *redis.Client {
	c.redisClientInit.Do(func() {
		c.redisClient = redis.NewClient(&redis.Options{
			Addr:     c.config.RedisAddr,
			Password: c.config.RedisPassword,
			DB:       c.config.RedisDB,
		})
	})
	return c.redisClient
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = metrics.NewProvider()
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

// BusinessMetrics returns the business metrics recorder.
// A no-op recorder is returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
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

// OpsServer returns the health, readiness and metrics server.
func (c *Container) OpsServer() (*http.OpsServer, error) {
	var err error
	c.opsServerInit.Do(func() {
		c.opsServer, err = c.initOpsServer()
		if err != nil {
			c.initErrors["opsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["opsServer"]; exists {
		return nil, storedErr
	}
	return c.opsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.opsServer != nil {
		if err := c.opsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("ops server shutdown: %w", err))
		}
	}

	// Key material must not outlive the process.
	if c.keyCache != nil {
		c.keyCache.Clear()
	}

	if c.cacheRegistration != nil {
		if err := c.cacheRegistration.Unregister(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("cache metrics unregister: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.keyStore != nil {
		if err := c.keyStore.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("identity key store close: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

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
	db, err := database.Connect(database.Config{
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

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initOpsServer creates the ops server. Readiness pings the database and,
// when it backs the pending store, redis.
func (c *Container) initOpsServer() (*http.OpsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for ops server: %w", err)
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for ops server: %w", err)
	}

	ready := func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if c.config.PendingStore == config.PendingStoreRedis {
			if err := c.RedisClient().Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	return http.NewOpsServer(
		c.config.MetricsHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
		c.config.MetricsNamespace,
		ready,
	), nil
}
