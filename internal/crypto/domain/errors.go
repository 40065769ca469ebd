package domain

import (
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
)

// Cryptographic error definitions.
//
// Every error wraps one of the internal/errors categories so callers can decide
// between "fix the input", "retry later" and "give up" with errors.Is.
var (
	// ErrCryptoUnavailable indicates the secure random source or a cipher primitive failed.
	// Fatal for the current operation and never retried internally.
	ErrCryptoUnavailable = errors.Wrap(errors.ErrUnavailable, "crypto primitives unavailable")

	// ErrUnsupportedAlgorithm indicates the requested wrap algorithm is unknown.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates raw key material is not exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrMalformedWrappedKey indicates a wrapped key is not valid base64 or is too short
	// to contain an IV, a key and a tag.
	ErrMalformedWrappedKey = errors.Wrap(errors.ErrInvalidInput, "malformed wrapped key")

	// ErrWrapKeyInvalid indicates AEAD authentication failed while unwrapping.
	//
	// The pair of ECDH keys does not match the one used to wrap, or the ciphertext
	// was modified. No key material is ever returned alongside this error.
	ErrWrapKeyInvalid = errors.Wrap(errors.ErrForbidden, "wrap key invalid")

	// ErrInvalidPublicKey indicates a JWK could not be parsed as an EC public key.
	ErrInvalidPublicKey = errors.Wrap(errors.ErrInvalidInput, "invalid public key")

	// ErrInvalidPrivateKey indicates an identity private key is missing or unusable for ECDH.
	ErrInvalidPrivateKey = errors.Wrap(errors.ErrInvalidInput, "invalid private key")

	// ErrCurveMismatch indicates the two ECDH keys are on different curves.
	ErrCurveMismatch = errors.Wrap(errors.ErrInvalidInput, "ecdh curve mismatch")
)
