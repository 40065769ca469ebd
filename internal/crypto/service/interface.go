// Package service provides the cryptographic building blocks of the group key layer:
// AEAD ciphers, group key generation, JWK handling and ECDH key transport.
package service

import (
	"crypto/ecdsa"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyGenerator produces and (de)serializes group keys.
type KeyGenerator interface {
	// GenerateGroupKey returns a fresh random AES-256 group key.
	GenerateGroupKey() (*cryptoDomain.GroupKey, error)

	// ExportKeyBytes returns the 32 raw bytes of a group key.
	ExportKeyBytes(key *cryptoDomain.GroupKey) ([]byte, error)

	// ImportKeyBytes rebuilds a group key from 32 raw bytes.
	ImportKeyBytes(raw []byte) (*cryptoDomain.GroupKey, error)
}

// KeyTransport wraps a group key between exactly two ECDH identities.
type KeyTransport interface {
	// EncryptGroupKeyForMember wraps groupKey for the owner of recipientPublicKey (a JWK)
	// and returns base64(IV || ciphertext || tag).
	EncryptGroupKeyForMember(
		groupKey *cryptoDomain.GroupKey,
		recipientPublicKey string,
		senderPrivateKey *ecdsa.PrivateKey,
		alg cryptoDomain.Algorithm,
	) (string, error)

	// DecryptGroupKey reverses EncryptGroupKeyForMember on the recipient side.
	DecryptGroupKey(
		wrapped string,
		senderPublicKey string,
		recipientPrivateKey *ecdsa.PrivateKey,
		alg cryptoDomain.Algorithm,
	) (*cryptoDomain.GroupKey, error)
}
