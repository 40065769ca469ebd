// Package domain defines identity key types: the published public half of a
// user's identity key pair and the errors around managing the local one.
package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
	customValidation "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/validation"
)

// PublicKey is a user's published identity public key.
type PublicKey struct {
	UserID uuid.UUID
	// JWK is the EC P-256 public key in JWK form.
	JWK string
	// Fingerprint is the base64url RFC 7638 thumbprint of JWK.
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the public key record.
func (p *PublicKey) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.UserID, validation.Required, customValidation.NotNilUUID),
		validation.Field(&p.JWK, validation.Required, customValidation.JSONObject),
		validation.Field(&p.Fingerprint, validation.Required, customValidation.NotBlank),
	)
	return customValidation.WrapValidationError(err)
}

var (
	// ErrPublicKeyNotFound indicates a user has not published an identity key.
	ErrPublicKeyNotFound = groupkeyDomain.ErrPublicKeyNotFound

	// ErrIdentityKeyMissing indicates no local identity private key has been created.
	ErrIdentityKeyMissing = errors.Wrap(errors.ErrNotFound, "identity key not created")

	// ErrIdentityKeyExists indicates a local identity private key is already stored.
	ErrIdentityKeyExists = errors.Wrap(errors.ErrConflict, "identity key already exists")

	// ErrIdentityNotConfigured indicates the user id or KMS key URI is unset.
	ErrIdentityNotConfigured = errors.Wrap(errors.ErrInvalidInput, "identity not configured")
)
