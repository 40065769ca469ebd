package service

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
)

// ParsePublicJWK parses an EC public key in JWK form (as exported by WebCrypto)
// and returns it as an ECDH key with its RFC 7638 SHA-256 thumbprint.
func ParsePublicJWK(raw string) (*ecdh.PublicKey, string, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, "", fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidPublicKey, err)
	}
	if !jwk.IsPublic() {
		return nil, "", fmt.Errorf("%w: private material in public JWK", cryptoDomain.ErrInvalidPublicKey)
	}

	ecPub, ok := jwk.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("%w: not an EC key", cryptoDomain.ErrInvalidPublicKey)
	}

	pub, err := ecPub.ECDH()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidPublicKey, err)
	}

	fingerprint, err := thumbprint(&jwk)
	if err != nil {
		return nil, "", err
	}

	return pub, fingerprint, nil
}

// PublicJWK returns the public half of priv as a compact JWK string.
func PublicJWK(priv *ecdsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", cryptoDomain.ErrInvalidPrivateKey
	}

	jwk := jose.JSONWebKey{Key: &priv.PublicKey}
	out, err := jwk.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidPrivateKey, err)
	}
	return string(out), nil
}

// Fingerprint returns the thumbprint of the public half of priv.
func Fingerprint(priv *ecdsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", cryptoDomain.ErrInvalidPrivateKey
	}
	return thumbprint(&jose.JSONWebKey{Key: &priv.PublicKey})
}

func thumbprint(jwk *jose.JSONWebKey) (string, error) {
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("%w: thumbprint: %v", cryptoDomain.ErrInvalidPublicKey, err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
