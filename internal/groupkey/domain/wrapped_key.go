package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	customValidation "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/validation"
)

// KeyRef identifies one group key version of a conversation.
type KeyRef struct {
	ConversationID uuid.UUID
	Version        uint
}

// WrappedKeyRecord is one member's copy of a group key, wrapped with the
// ECDH-derived key shared between the sender and that member.
type WrappedKeyRecord struct {
	// ID is the unique identifier of the record (UUIDv7).
	ID uuid.UUID
	// ConversationID is the conversation the key belongs to.
	ConversationID uuid.UUID
	// KeyVersion is the group key version, starting at 1.
	KeyVersion uint
	// RecipientUserID is the member this copy is wrapped for.
	RecipientUserID uuid.UUID
	// Ciphertext is base64(IV || ciphertext || tag).
	Ciphertext string
	// SenderUserID is the member who wrapped the key.
	SenderUserID uuid.UUID
	// SenderPublicKey is the sender's public JWK at wrap time.
	SenderPublicKey string
	// SenderKeyFingerprint is the SHA-256 JWK thumbprint of SenderPublicKey.
	SenderKeyFingerprint string
	// RecipientKeyFingerprint is the thumbprint of the recipient key the copy was wrapped for.
	RecipientKeyFingerprint string
	// Algorithm is the AEAD used for wrapping.
	Algorithm cryptoDomain.Algorithm
	// CreatedAt is the UTC timestamp when the record was written.
	CreatedAt time.Time
}

// Validate checks a record before it is persisted.
func (r *WrappedKeyRecord) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, customValidation.NotNilUUID),
		validation.Field(&r.ConversationID, validation.Required, customValidation.NotNilUUID),
		validation.Field(&r.KeyVersion, validation.Required, validation.Min(uint(1))),
		validation.Field(&r.RecipientUserID, validation.Required, customValidation.NotNilUUID),
		validation.Field(&r.SenderUserID, validation.Required, customValidation.NotNilUUID),
		validation.Field(&r.Ciphertext, validation.Required, customValidation.Base64),
		validation.Field(&r.SenderPublicKey, validation.Required, customValidation.JSONObject),
		validation.Field(&r.SenderKeyFingerprint, validation.Required),
		validation.Field(&r.RecipientKeyFingerprint, validation.Required),
		validation.Field(&r.Algorithm, validation.Required),
	)
	return customValidation.WrapValidationError(err)
}

// ConversationKeyVersion is a row of the append-only key version history.
type ConversationKeyVersion struct {
	ConversationID uuid.UUID
	Version        uint
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
}
