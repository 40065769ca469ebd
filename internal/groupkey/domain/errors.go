package domain

import (
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
)

// Group key error definitions.
var (
	// ErrNoKeyAccess indicates the caller has no wrapped key for the requested version.
	// It is returned for members who joined after the version was created.
	ErrNoKeyAccess = errors.Wrap(errors.ErrForbidden, "no access to group key")

	// ErrRecipientKeyRotated indicates the caller's wrapped copy was made for an
	// identity key the caller no longer holds. A redistribution is required.
	ErrRecipientKeyRotated = errors.Wrap(errors.ErrForbidden, "wrapped for a previous identity key")

	// ErrWrappedKeyNotFound indicates no wrapped key record exists.
	ErrWrappedKeyNotFound = errors.Wrap(errors.ErrNotFound, "wrapped key not found")

	// ErrWrappedKeyExists indicates a record for the same conversation, version and recipient exists.
	ErrWrappedKeyExists = errors.Wrap(errors.ErrConflict, "wrapped key already exists")

	// ErrPendingNotRecorded indicates members were left pending but could not be
	// recorded for retry. The distribution outcome is still returned with it.
	ErrPendingNotRecorded = errors.Wrap(errors.ErrUnavailable, "pending members not recorded")

	// ErrVersionConflict indicates a concurrent rotation created the same version first.
	ErrVersionConflict = errors.Wrap(errors.ErrConflict, "key version conflict")

	// ErrPublicKeyNotFound indicates a user has no published identity key.
	ErrPublicKeyNotFound = errors.Wrap(errors.ErrNotFound, "public key not found")

	// ErrConversationNotFound indicates the conversation has no key version yet.
	ErrConversationNotFound = errors.Wrap(errors.ErrNotFound, "conversation has no group key")

	// ErrInvalidCacheCapacity indicates a non-positive key cache capacity.
	ErrInvalidCacheCapacity = errors.Wrap(errors.ErrInvalidInput, "cache capacity must be positive")
)
