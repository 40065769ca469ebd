package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	customValidation "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/validation"
)

// PendingReason explains why a member did not receive a wrapped key.
type PendingReason string

const (
	// PendingPublicKeyMissing means the member has not published an identity key yet.
	PendingPublicKeyMissing PendingReason = "public_key_missing"
	// PendingPublicKeyInvalid means the published identity key could not be used.
	PendingPublicKeyInvalid PendingReason = "public_key_invalid"
	// PendingLookupFailed means the public key lookup itself failed.
	PendingLookupFailed PendingReason = "lookup_failed"
	// PendingPersistFailed means wrapping worked but the record could not be stored.
	PendingPersistFailed PendingReason = "persist_failed"
	// PendingPublicKeyRotated means the member's copy was wrapped for an identity
	// key they replaced. The member records it when the copy fails to open.
	PendingPublicKeyRotated PendingReason = "public_key_rotated"
)

// PendingMember is a member still owed a wrapped key for one key version.
type PendingMember struct {
	ConversationID uuid.UUID
	KeyVersion     uint
	UserID         uuid.UUID
	// DistributorID is the member whose distribution left this entry behind.
	DistributorID uuid.UUID
	Reason        PendingReason
	// Attempts counts distribution attempts, including the first.
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DistributionOutcome reports a distribution pass.
type DistributionOutcome struct {
	// Delivered lists members that hold a wrapped key for the version after this pass.
	Delivered []uuid.UUID
	// Pending lists members left without one.
	Pending []PendingMember
}

// Complete reports whether every targeted member was delivered.
func (o *DistributionOutcome) Complete() bool {
	return len(o.Pending) == 0
}

// PendingUserIDs returns the user IDs of the pending members.
func (o *DistributionOutcome) PendingUserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Pending))
	for _, p := range o.Pending {
		ids = append(ids, p.UserID)
	}
	return ids
}

// RotationResult is returned by a group key rotation.
type RotationResult struct {
	ConversationID uuid.UUID
	// Version is the newly created key version.
	Version uint
	Outcome *DistributionOutcome
}

// DistributeInput is the request to hand a group key version to a set of members.
type DistributeInput struct {
	ConversationID uuid.UUID
	KeyVersion     uint
	GroupKey       *cryptoDomain.GroupKey
	// Members may include departed members; only active ones receive the key.
	Members []Member
}

// Validate checks the distribution request.
func (i *DistributeInput) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.ConversationID, validation.Required, customValidation.NotNilUUID),
		validation.Field(&i.KeyVersion, validation.Required, validation.Min(uint(1))),
		validation.Field(&i.GroupKey, validation.NotNil),
	)
	return customValidation.WrapValidationError(err)
}
