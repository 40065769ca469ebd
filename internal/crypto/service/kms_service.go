package service

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSService seals small secrets (identity private keys) with a KMS provider.
type KMSService interface {
	// OpenKeeper opens a keeper for the provider named by keyURI.
	// Supports gcpkms://, awskms://, azurekeyvault://, hashivault:// and base64key://.
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)

	// Seal encrypts plaintext with a keeper opened for keyURI.
	Seal(ctx context.Context, keyURI string, plaintext []byte) ([]byte, error)

	// Unseal decrypts a blob produced by Seal.
	Unseal(ctx context.Context, keyURI string, sealed []byte) ([]byte, error)
}

type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper opens the gocloud secrets keeper behind keyURI.
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// Seal encrypts plaintext with the keeper at keyURI.
func (k *kmsService) Seal(ctx context.Context, keyURI string, plaintext []byte) ([]byte, error) {
	keeper, err := k.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = keeper.Close()
	}()

	sealed, err := keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal with KMS: %w", err)
	}
	return sealed, nil
}

// Unseal decrypts material produced by Seal with the same keyURI.
func (k *kmsService) Unseal(ctx context.Context, keyURI string, sealed []byte) ([]byte, error) {
	keeper, err := k.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = keeper.Close()
	}()

	plaintext, err := keeper.Decrypt(ctx, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal with KMS: %w", err)
	}
	return plaintext, nil
}
