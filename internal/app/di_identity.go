package app

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"gocloud.dev/blob/fileblob"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	identityRepository "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/repository"
	identityUseCase "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/usecase"
)

// KeyStore returns the blob store holding the sealed identity private key.
func (c *Container) KeyStore() (*identityRepository.BlobKeyStore, error) {
	var err error
	c.keyStoreInit.Do(func() {
		c.keyStore, err = c.initKeyStore()
		if err != nil {
			c.initErrors["keyStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyStore"]; exists {
		return nil, storedErr
	}
	return c.keyStore, nil
}

// PublicKeyRepository returns the published public key repository.
func (c *Container) PublicKeyRepository() (identityUseCase.PublicKeyRepository, error) {
	var err error
	c.publicKeyRepoInit.Do(func() {
		c.publicKeyRepo, err = c.initPublicKeyRepository()
		if err != nil {
			c.initErrors["publicKeyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["publicKeyRepo"]; exists {
		return nil, storedErr
	}
	return c.publicKeyRepo, nil
}

// IdentityUseCase returns the local identity use case.
func (c *Container) IdentityUseCase() (identityUseCase.IdentityUseCase, error) {
	var err error
	c.identityUseCaseInit.Do(func() {
		c.identityUseCase, err = c.initIdentityUseCase()
		if err != nil {
			c.initErrors["identityUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["identityUseCase"]; exists {
		return nil, storedErr
	}
	return c.identityUseCase, nil
}

func (c *Container) initKeyStore() (*identityRepository.BlobKeyStore, error) {
	dir, key := filepath.Split(filepath.Clean(c.config.IdentityKeyPath))
	if dir == "" {
		dir = "."
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open identity key bucket: %w", err)
	}
	return identityRepository.NewBlobKeyStore(bucket, key), nil
}

func (c *Container) initPublicKeyRepository() (identityUseCase.PublicKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for public key repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverPostgres:
		return identityRepository.NewPostgreSQLPublicKeyRepository(db), nil
	case database.DriverMySQL:
		return identityRepository.NewMySQLPublicKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initIdentityUseCase leaves the user id as uuid.Nil when unset; the use case
// reports ErrIdentityNotConfigured on first use.
func (c *Container) initIdentityUseCase() (identityUseCase.IdentityUseCase, error) {
	userID := uuid.Nil
	if c.config.IdentityUserID != "" {
		parsed, err := uuid.Parse(c.config.IdentityUserID)
		if err != nil {
			return nil, fmt.Errorf("invalid identity user id: %w", err)
		}
		userID = parsed
	}

	keyStore, err := c.KeyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity key store: %w", err)
	}
	publicKeyRepo, err := c.PublicKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key repository: %w", err)
	}

	return identityUseCase.NewIdentityUseCase(
		identityUseCase.Config{UserID: userID, KMSKeyURI: c.config.KMSKeyURI},
		c.KMSService(),
		keyStore,
		publicKeyRepo,
		c.Logger(),
	), nil
}
