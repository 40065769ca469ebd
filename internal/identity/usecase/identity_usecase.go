package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	cryptoService "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/service"
	identityDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/domain"
)

// Config names the local identity.
type Config struct {
	UserID uuid.UUID
	// KMSKeyURI is the gocloud secrets URI sealing the private key at rest.
	KMSKeyURI string
}

type identityUseCase struct {
	config        Config
	kmsService    cryptoService.KMSService
	keyStore      KeyStore
	publicKeyRepo PublicKeyRepository
	logger        *slog.Logger

	mu         sync.Mutex
	privateKey *ecdsa.PrivateKey
}

// CurrentUserID returns the user this process acts for.
func (u *identityUseCase) CurrentUserID() uuid.UUID {
	return u.config.UserID
}

// GetOwnPrivateKey unseals the stored key on first use and keeps it afterwards.
func (u *identityUseCase) GetOwnPrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.privateKey != nil {
		return u.privateKey, nil
	}
	if err := u.checkConfig(); err != nil {
		return nil, err
	}

	sealed, err := u.keyStore.Read(ctx)
	if err != nil {
		return nil, err
	}
	der, err := u.kmsService.Unseal(ctx, u.config.KMSKeyURI, sealed)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(der)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidPrivateKey, err)
	}
	privateKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok || privateKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: identity key is not an EC P-256 key", cryptoDomain.ErrInvalidPrivateKey)
	}

	u.privateKey = privateKey
	return privateKey, nil
}

// GetUserPublicKey returns the published JWK of userID.
func (u *identityUseCase) GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error) {
	key, err := u.publicKeyRepo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return key.JWK, nil
}

// CreateIdentityKey generates a new identity key, seals it into the key store
// and publishes its public half. When publishing fails the previous sealed key
// is put back.
func (u *identityUseCase) CreateIdentityKey(
	ctx context.Context,
	overwrite bool,
) (*identityDomain.PublicKey, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.checkConfig(); err != nil {
		return nil, err
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrCryptoUnavailable, err)
	}

	jwk, err := cryptoService.PublicJWK(privateKey)
	if err != nil {
		return nil, err
	}
	fingerprint, err := cryptoService.Fingerprint(privateKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	publicKey := &identityDomain.PublicKey{
		UserID:      u.config.UserID,
		JWK:         jwk,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := publicKey.Validate(); err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("marshal identity key: %w", err)
	}
	defer cryptoDomain.Zero(der)

	sealed, err := u.kmsService.Seal(ctx, u.config.KMSKeyURI, der)
	if err != nil {
		return nil, err
	}

	// The previous sealed key is put back if publishing fails, so the stored
	// private key always matches the published public key.
	previous, err := u.keyStore.Read(ctx)
	if err != nil && !errors.Is(err, identityDomain.ErrIdentityKeyMissing) {
		return nil, err
	}
	if err := u.keyStore.Write(ctx, sealed, overwrite); err != nil {
		return nil, err
	}
	if err := u.publicKeyRepo.Upsert(ctx, publicKey); err != nil {
		return nil, errors.Join(err, u.restoreKeyStore(ctx, previous))
	}

	u.privateKey = privateKey
	u.logger.Info("identity key created",
		slog.String("user_id", u.config.UserID.String()),
		slog.String("fingerprint", fingerprint),
		slog.Bool("replaced", overwrite),
	)

	return publicKey, nil
}

// restoreKeyStore puts previous back, or clears the store when there was none.
func (u *identityUseCase) restoreKeyStore(ctx context.Context, previous []byte) error {
	var err error
	if previous == nil {
		err = u.keyStore.Delete(ctx)
	} else {
		err = u.keyStore.Write(ctx, previous, true)
	}
	if err != nil {
		u.logger.Error("failed to restore identity key after publish failure",
			slog.String("user_id", u.config.UserID.String()),
			slog.Any("error", err),
		)
	}
	return err
}

func (u *identityUseCase) checkConfig() error {
	if u.config.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is not set", identityDomain.ErrIdentityNotConfigured)
	}
	if u.config.KMSKeyURI == "" {
		return fmt.Errorf("%w: KMS key URI is not set", identityDomain.ErrIdentityNotConfigured)
	}
	return nil
}

// NewIdentityUseCase creates an IdentityUseCase.
func NewIdentityUseCase(
	config Config,
	kmsService cryptoService.KMSService,
	keyStore KeyStore,
	publicKeyRepo PublicKeyRepository,
	logger *slog.Logger,
) IdentityUseCase {
	return &identityUseCase{
		config:        config,
		kmsService:    kmsService,
		keyStore:      keyStore,
		publicKeyRepo: publicKeyRepo,
		logger:        logger,
	}
}
