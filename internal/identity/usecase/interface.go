// Package usecase manages the local identity key pair and looks up the
// published public keys of other users.
package usecase

import (
	"context"
	"crypto/ecdsa"

	"github.com/google/uuid"

	identityDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/domain"
)

// PublicKeyRepository stores published identity public keys.
type PublicKeyRepository interface {
	Upsert(ctx context.Context, key *identityDomain.PublicKey) error
	// Get returns ErrPublicKeyNotFound if the user never published a key.
	Get(ctx context.Context, userID uuid.UUID) (*identityDomain.PublicKey, error)
}

// KeyStore holds the KMS-sealed local private key.
type KeyStore interface {
	// Read returns ErrIdentityKeyMissing if nothing is stored.
	Read(ctx context.Context) ([]byte, error)
	// Write returns ErrIdentityKeyExists if a key is stored and overwrite is false.
	Write(ctx context.Context, sealed []byte, overwrite bool) error
	// Delete removes the stored key. Deleting a missing key is not an error.
	Delete(ctx context.Context) error
}

// IdentityUseCase is the local user's identity. It satisfies the group key
// use cases' IdentityKeyService.
type IdentityUseCase interface {
	CurrentUserID() uuid.UUID
	GetOwnPrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error)
	// GetUserPublicKey returns the published JWK of userID.
	GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error)
	// CreateIdentityKey generates a P-256 key pair, stores the sealed private
	// key and publishes the public key. Existing wrapped copies addressed to a
	// replaced key become unreadable until redistributed.
	CreateIdentityKey(ctx context.Context, overwrite bool) (*identityDomain.PublicKey, error)
}
