package service

import (
	"crypto/rand"
	"fmt"
	"io"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
)

// KeyGeneratorService creates group keys from a cryptographically secure random source.
type KeyGeneratorService struct {
	random io.Reader
}

// NewKeyGenerator creates a KeyGeneratorService. A nil random reads from crypto/rand.
func NewKeyGenerator(random io.Reader) *KeyGeneratorService {
	if random == nil {
		random = rand.Reader
	}
	return &KeyGeneratorService{random: random}
}

// GenerateGroupKey returns 32 fresh random bytes as an AES-256 group key.
// Any failure of the random source is reported as ErrCryptoUnavailable.
func (g *KeyGeneratorService) GenerateGroupKey() (*cryptoDomain.GroupKey, error) {
	raw := make([]byte, cryptoDomain.GroupKeySize)
	defer cryptoDomain.Zero(raw)

	if _, err := io.ReadFull(g.random, raw); err != nil {
		return nil, fmt.Errorf("%w: random source: %v", cryptoDomain.ErrCryptoUnavailable, err)
	}

	return cryptoDomain.NewGroupKey(raw)
}

// ExportKeyBytes returns a copy of the raw key bytes.
func (g *KeyGeneratorService) ExportKeyBytes(key *cryptoDomain.GroupKey) ([]byte, error) {
	raw := key.Bytes()
	if len(raw) != cryptoDomain.GroupKeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return raw, nil
}

// ImportKeyBytes wraps raw bytes as a group key. The caller keeps ownership of raw.
func (g *KeyGeneratorService) ImportKeyBytes(raw []byte) (*cryptoDomain.GroupKey, error) {
	return cryptoDomain.NewGroupKey(raw)
}
