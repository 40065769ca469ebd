package service

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
)

// KeyTransportService wraps group keys for individual members.
//
// The wrapping key is the first 32 bytes of the ECDH shared secret between the
// sender and the recipient, which matches WebCrypto deriveKey for
// {name: "ECDH"} -> {name: "AES-GCM", length: 256}. Output is
// base64(IV || ciphertext || tag) so browser clients can unwrap it unchanged.
type KeyTransportService struct {
	aeadManager AEADManager
}

// NewKeyTransport creates a KeyTransportService.
func NewKeyTransport(aeadManager AEADManager) *KeyTransportService {
	return &KeyTransportService{aeadManager: aeadManager}
}

// EncryptGroupKeyForMember wraps groupKey for the holder of recipientPublicKey.
func (t *KeyTransportService) EncryptGroupKeyForMember(
	groupKey *cryptoDomain.GroupKey,
	recipientPublicKey string,
	senderPrivateKey *ecdsa.PrivateKey,
	alg cryptoDomain.Algorithm,
) (string, error) {
	raw := groupKey.Bytes()
	if len(raw) != cryptoDomain.GroupKeySize {
		return "", cryptoDomain.ErrInvalidKeySize
	}
	defer cryptoDomain.Zero(raw)

	recipient, _, err := ParsePublicJWK(recipientPublicKey)
	if err != nil {
		return "", err
	}

	aead, err := t.wrappingCipher(senderPrivateKey, recipient, alg)
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := aead.Encrypt(raw, nil)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptGroupKey unwraps a key produced by EncryptGroupKeyForMember.
// Authentication failures return ErrWrapKeyInvalid and never any key bytes.
func (t *KeyTransportService) DecryptGroupKey(
	wrapped string,
	senderPublicKey string,
	recipientPrivateKey *ecdsa.PrivateKey,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.GroupKey, error) {
	blob, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrMalformedWrappedKey, err)
	}
	if len(blob) < cryptoDomain.MinWrappedKeySize {
		return nil, fmt.Errorf("%w: %d bytes", cryptoDomain.ErrMalformedWrappedKey, len(blob))
	}

	sender, _, err := ParsePublicJWK(senderPublicKey)
	if err != nil {
		return nil, err
	}

	aead, err := t.wrappingCipher(recipientPrivateKey, sender, alg)
	if err != nil {
		return nil, err
	}

	nonce := blob[:cryptoDomain.NonceSize]
	ciphertext := blob[cryptoDomain.NonceSize:]

	raw, err := aead.Decrypt(ciphertext, nonce, nil)
	if err != nil {
		return nil, cryptoDomain.ErrWrapKeyInvalid
	}
	defer cryptoDomain.Zero(raw)

	return cryptoDomain.NewGroupKey(raw)
}

// wrappingCipher derives the pairwise wrapping key and builds the AEAD around it.
func (t *KeyTransportService) wrappingCipher(
	own *ecdsa.PrivateKey,
	peer *ecdh.PublicKey,
	alg cryptoDomain.Algorithm,
) (AEAD, error) {
	if own == nil {
		return nil, cryptoDomain.ErrInvalidPrivateKey
	}

	priv, err := own.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidPrivateKey, err)
	}
	if priv.Curve() != peer.Curve() {
		return nil, cryptoDomain.ErrCurveMismatch
	}

	secret, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrCryptoUnavailable, err)
	}
	defer cryptoDomain.Zero(secret)

	return t.aeadManager.CreateCipher(secret[:cryptoDomain.GroupKeySize], alg)
}
