// Package usecase implements group key distribution, rotation and access.
//
// The use cases coordinate the crypto services with the repositories: a
// rotation bumps the conversation's key version, generates a fresh key and
// wraps it once per active member; access unwraps the caller's own copy and
// keeps it in a bounded in-memory cache.
package usecase

import (
	"context"
	"crypto/ecdsa"

	"github.com/google/uuid"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// IdentityKeyService gives access to the local user's identity key pair and to
// the published public keys of other users.
type IdentityKeyService interface {
	// CurrentUserID returns the user the local identity belongs to.
	CurrentUserID() uuid.UUID
	// GetOwnPrivateKey returns the local identity private key.
	GetOwnPrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error)
	// GetUserPublicKey returns a user's public key as a JWK string,
	// or ErrPublicKeyNotFound if the user has none.
	GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error)
}

// WrappedKeyRepository persists per-member wrapped group keys.
type WrappedKeyRepository interface {
	// Create stores a record. Returns ErrWrappedKeyExists on a duplicate
	// (conversation, version, recipient).
	Create(ctx context.Context, record *groupkeyDomain.WrappedKeyRecord) error
	Get(
		ctx context.Context,
		conversationID uuid.UUID,
		version uint,
		recipientID uuid.UUID,
	) (*groupkeyDomain.WrappedKeyRecord, error)
	ListRecipients(ctx context.Context, conversationID uuid.UUID, version uint) ([]uuid.UUID, error)
	// Supersede replaces the recipient's copy if it is still the one wrapped for
	// previousFingerprint. Returns ErrWrappedKeyNotFound otherwise.
	Supersede(ctx context.Context, record *groupkeyDomain.WrappedKeyRecord, previousFingerprint string) error
}

// VersionRepository manages the append-only key version history of conversations.
type VersionRepository interface {
	// GetCurrentVersion returns the latest version that has at least one wrapped
	// copy, or ErrConversationNotFound when there is none.
	GetCurrentVersion(ctx context.Context, conversationID uuid.UUID) (uint, error)
	// BumpConversationKeyVersion inserts max+1 and returns it.
	// Returns ErrVersionConflict if a concurrent rotation won the same version.
	BumpConversationKeyVersion(ctx context.Context, conversationID, createdBy uuid.UUID) (uint, error)
}

// MembershipRepository reads conversation membership.
type MembershipRepository interface {
	GetActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]groupkeyDomain.Member, error)
}

// PendingRepository tracks members still owed a wrapped key.
type PendingRepository interface {
	// Save upserts the given entries keyed by (conversation, version, user).
	Save(ctx context.Context, pending []groupkeyDomain.PendingMember) error
	List(ctx context.Context, conversationID uuid.UUID, version uint) ([]groupkeyDomain.PendingMember, error)
	// ListDistributions returns (conversation, version) pairs with pending entries
	// left by distributorID, oldest first.
	ListDistributions(
		ctx context.Context,
		distributorID uuid.UUID,
		limit int,
	) ([]groupkeyDomain.KeyRef, error)
	Remove(ctx context.Context, conversationID uuid.UUID, version uint, userIDs []uuid.UUID) error
}

// DistributionUseCase hands group keys to conversation members.
type DistributionUseCase interface {
	// DistributeGroupKey wraps input.GroupKey once for every active member in
	// input.Members. Members that could not be served are returned as pending
	// and recorded for a later retry; that is not an error. If recording them
	// fails, the outcome is returned together with ErrPendingNotRecorded.
	DistributeGroupKey(
		ctx context.Context,
		input *groupkeyDomain.DistributeInput,
	) (*groupkeyDomain.DistributionOutcome, error)
	// RetryPending re-sends a key version to its pending members who are still active.
	// Like DistributeGroupKey it returns the outcome with ErrPendingNotRecorded
	// when the members still pending cannot be recorded.
	RetryPending(
		ctx context.Context,
		conversationID uuid.UUID,
		version uint,
	) (*groupkeyDomain.DistributionOutcome, error)
}

// RotationUseCase creates new group key versions.
type RotationUseCase interface {
	RotateGroupKey(ctx context.Context, conversationID uuid.UUID) (*groupkeyDomain.RotationResult, error)
}

// KeyAccessUseCase resolves unwrapped group keys for the local user.
type KeyAccessUseCase interface {
	// GetGroupKeyForConversation returns the group key for one version.
	// Returns ErrNoKeyAccess if no copy was ever wrapped for the caller.
	GetGroupKeyForConversation(
		ctx context.Context,
		conversationID uuid.UUID,
		version uint,
	) (*cryptoDomain.GroupKey, error)
	// GetCurrentGroupKey resolves the latest version and returns its key.
	GetCurrentGroupKey(ctx context.Context, conversationID uuid.UUID) (uint, *cryptoDomain.GroupKey, error)
	// SeedCache stores a key the caller already holds, such as one it just generated.
	SeedCache(conversationID uuid.UUID, version uint, key *cryptoDomain.GroupKey) error
	// ClearCache drops every cached key. Call it on sign-out.
	ClearCache()
}
