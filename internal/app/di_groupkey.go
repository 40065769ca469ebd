package app

import (
	"fmt"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/config"
	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
	groupkeyRepository "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/repository"
	groupkeyUseCase "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/usecase"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/metrics"
)

// WrappedKeyRepository returns the wrapped key repository for the configured driver.
func (c *Container) WrappedKeyRepository() (groupkeyUseCase.WrappedKeyRepository, error) {
	var err error
	c.wrappedKeyRepoInit.Do(func() {
		c.wrappedKeyRepo, err = c.initWrappedKeyRepository()
		if err != nil {
			c.initErrors["wrappedKeyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["wrappedKeyRepo"]; exists {
		return nil, storedErr
	}
	return c.wrappedKeyRepo, nil
}

// VersionRepository returns the key version repository for the configured driver.
func (c *Container) VersionRepository() (groupkeyUseCase.VersionRepository, error) {
	var err error
	c.versionRepoInit.Do(func() {
		c.versionRepo, err = c.initVersionRepository()
		if err != nil {
			c.initErrors["versionRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["versionRepo"]; exists {
		return nil, storedErr
	}
	return c.versionRepo, nil
}

// MembershipRepository returns the conversation membership repository.
func (c *Container) MembershipRepository() (groupkeyUseCase.MembershipRepository, error) {
	var err error
	c.membershipRepoInit.Do(func() {
		c.membershipRepo, err = c.initMembershipRepository()
		if err != nil {
			c.initErrors["membershipRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["membershipRepo"]; exists {
		return nil, storedErr
	}
	return c.membershipRepo, nil
}

// PendingRepository returns the pending member store selected by PendingStore.
func (c *Container) PendingRepository() (groupkeyUseCase.PendingRepository, error) {
	var err error
	c.pendingRepoInit.Do(func() {
		c.pendingRepo, err = c.initPendingRepository()
		if err != nil {
			c.initErrors["pendingRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["pendingRepo"]; exists {
		return nil, storedErr
	}
	return c.pendingRepo, nil
}

// KeyCache returns the in-memory group key cache.
func (c *Container) KeyCache() (*groupkeyDomain.KeyCache, error) {
	var err error
	c.keyCacheInit.Do(func() {
		c.keyCache, err = c.initKeyCache()
		if err != nil {
			c.initErrors["keyCache"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyCache"]; exists {
		return nil, storedErr
	}
	return c.keyCache, nil
}

// KeyAccessUseCase returns the key access use case.
func (c *Container) KeyAccessUseCase() (groupkeyUseCase.KeyAccessUseCase, error) {
	var err error
	c.keyAccessUseCaseInit.Do(func() {
		c.keyAccessUseCase, err = c.initKeyAccessUseCase()
		if err != nil {
			c.initErrors["keyAccessUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyAccessUseCase"]; exists {
		return nil, storedErr
	}
	return c.keyAccessUseCase, nil
}

// DistributionUseCase returns the distribution use case.
func (c *Container) DistributionUseCase() (groupkeyUseCase.DistributionUseCase, error) {
	var err error
	c.distributionUseCaseInit.Do(func() {
		c.distributionUseCase, err = c.initDistributionUseCase()
		if err != nil {
			c.initErrors["distributionUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["distributionUseCase"]; exists {
		return nil, storedErr
	}
	return c.distributionUseCase, nil
}

// RotationUseCase returns the rotation use case.
func (c *Container) RotationUseCase() (groupkeyUseCase.RotationUseCase, error) {
	var err error
	c.rotationUseCaseInit.Do(func() {
		c.rotationUseCase, err = c.initRotationUseCase()
		if err != nil {
			c.initErrors["rotationUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rotationUseCase"]; exists {
		return nil, storedErr
	}
	return c.rotationUseCase, nil
}

// PendingWorker returns the pending distribution retry worker.
func (c *Container) PendingWorker() (*groupkeyUseCase.PendingWorker, error) {
	var err error
	c.pendingWorkerInit.Do(func() {
		c.pendingWorker, err = c.initPendingWorker()
		if err != nil {
			c.initErrors["pendingWorker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["pendingWorker"]; exists {
		return nil, storedErr
	}
	return c.pendingWorker, nil
}

func (c *Container) initWrappedKeyRepository() (groupkeyUseCase.WrappedKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for wrapped key repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return groupkeyRepository.NewPostgreSQLWrappedKeyRepository(db), nil
	case database.DriverMySQL:
		return groupkeyRepository.NewMySQLWrappedKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initVersionRepository() (groupkeyUseCase.VersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for version repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return groupkeyRepository.NewPostgreSQLVersionRepository(db), nil
	case database.DriverMySQL:
		return groupkeyRepository.NewMySQLVersionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initMembershipRepository() (groupkeyUseCase.MembershipRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for membership repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return groupkeyRepository.NewPostgreSQLMembershipRepository(db), nil
	case database.DriverMySQL:
		return groupkeyRepository.NewMySQLMembershipRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initPendingRepository() (groupkeyUseCase.PendingRepository, error) {
	switch c.config.PendingStore {
	case config.PendingStoreRedis:
		return groupkeyRepository.NewRedisPendingRepository(c.RedisClient()), nil
	case config.PendingStoreDatabase, "":
	default:
		return nil, fmt.Errorf("unsupported pending store: %s", c.config.PendingStore)
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for pending repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return groupkeyRepository.NewPostgreSQLPendingRepository(db), nil
	case database.DriverMySQL:
		return groupkeyRepository.NewMySQLPendingRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initKeyCache creates the cache and, with metrics enabled, exports its state.
func (c *Container) initKeyCache() (*groupkeyDomain.KeyCache, error) {
	cache, err := groupkeyDomain.NewKeyCache(c.config.GroupKeyCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for key cache: %w", err)
	}
	if provider == nil {
		return cache, nil
	}

	registration, err := metrics.RegisterCacheObserver(
		provider.MeterProvider(),
		c.config.MetricsNamespace,
		func() metrics.CacheSnapshot {
			stats := cache.Stats()
			return metrics.CacheSnapshot{
				Len:       stats.Len,
				Capacity:  stats.Capacity,
				Hits:      stats.Hits,
				Misses:    stats.Misses,
				Evictions: stats.Evictions,
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register key cache metrics: %w", err)
	}
	c.cacheRegistration = registration

	return cache, nil
}

func (c *Container) initKeyAccessUseCase() (groupkeyUseCase.KeyAccessUseCase, error) {
	identity, err := c.IdentityUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity use case: %w", err)
	}
	wrappedRepo, err := c.WrappedKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get wrapped key repository: %w", err)
	}
	versionRepo, err := c.VersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get version repository: %w", err)
	}
	pendingRepo, err := c.PendingRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending repository: %w", err)
	}
	cache, err := c.KeyCache()
	if err != nil {
		return nil, fmt.Errorf("failed to get key cache: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics: %w", err)
	}

	useCase := groupkeyUseCase.NewKeyAccessUseCase(
		identity,
		c.KeyTransport(),
		wrappedRepo,
		versionRepo,
		pendingRepo,
		cache,
		c.Logger(),
	)
	return groupkeyUseCase.NewKeyAccessUseCaseWithMetrics(useCase, businessMetrics), nil
}

func (c *Container) initDistributionUseCase() (groupkeyUseCase.DistributionUseCase, error) {
	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.WrapAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid wrap algorithm: %w", err)
	}
	identity, err := c.IdentityUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity use case: %w", err)
	}
	wrappedRepo, err := c.WrappedKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get wrapped key repository: %w", err)
	}
	membershipRepo, err := c.MembershipRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get membership repository: %w", err)
	}
	pendingRepo, err := c.PendingRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending repository: %w", err)
	}
	keyAccess, err := c.KeyAccessUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get key access use case: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics: %w", err)
	}

	useCase := groupkeyUseCase.NewDistributionUseCase(
		groupkeyUseCase.DistributionConfig{
			BatchSize:    c.config.DistributionBatchSize,
			Concurrency:  c.config.DistributionConcurrency,
			WritesPerSec: c.config.DistributionWritesPerSec,
			Algorithm:    algorithm,
		},
		identity,
		c.KeyTransport(),
		wrappedRepo,
		membershipRepo,
		pendingRepo,
		keyAccess,
		c.Logger(),
	)
	return groupkeyUseCase.NewDistributionUseCaseWithMetrics(useCase, businessMetrics), nil
}

func (c *Container) initRotationUseCase() (groupkeyUseCase.RotationUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager: %w", err)
	}
	versionRepo, err := c.VersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get version repository: %w", err)
	}
	membershipRepo, err := c.MembershipRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get membership repository: %w", err)
	}
	identity, err := c.IdentityUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity use case: %w", err)
	}
	distribution, err := c.DistributionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution use case: %w", err)
	}
	keyAccess, err := c.KeyAccessUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get key access use case: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics: %w", err)
	}

	useCase := groupkeyUseCase.NewRotationUseCase(
		txManager,
		versionRepo,
		membershipRepo,
		c.KeyGenerator(),
		identity,
		distribution,
		keyAccess,
		c.Logger(),
	)
	return groupkeyUseCase.NewRotationUseCaseWithMetrics(useCase, businessMetrics), nil
}

func (c *Container) initPendingWorker() (*groupkeyUseCase.PendingWorker, error) {
	identity, err := c.IdentityUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity use case: %w", err)
	}
	pendingRepo, err := c.PendingRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending repository: %w", err)
	}
	distribution, err := c.DistributionUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution use case: %w", err)
	}

	return groupkeyUseCase.NewPendingWorker(
		groupkeyUseCase.PendingWorkerConfig{
			Interval:  c.config.WorkerInterval,
			BatchSize: c.config.WorkerBatchSize,
		},
		identity,
		pendingRepo,
		distribution,
		c.Logger(),
	), nil
}
