package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

func membersOf(ids ...uuid.UUID) []groupkeyDomain.Member {
	members := make([]groupkeyDomain.Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, groupkeyDomain.Member{UserID: id, JoinedAt: time.Now().UTC()})
	}
	return members
}

func TestDistributionUseCase_DistributeGroupKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_BothMembersDecrypt", func(t *testing.T) {
		dir := newDirectory()
		alice, bob := dir.addUser(t, true), dir.addUser(t, true)
		conv := uuid.New()
		groupKey := newGroupKey(t)
		a := dir.participant(t, alice, DistributionConfig{})
		b := dir.participant(t, bob, DistributionConfig{})

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: conv,
			KeyVersion:     1,
			GroupKey:       groupKey,
			Members:        membersOf(alice, bob),
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice, bob}, outcome.Delivered)
		assert.Empty(t, outcome.Pending)
		assert.Equal(t, int64(2), dir.transport.encrypted.Load())

		for _, p := range []*participant{a, b} {
			key, err := p.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
			require.NoError(t, err)
			assert.True(t, groupKey.Equal(key))
		}

		record, err := dir.wrapped.Get(ctx, conv, 1, bob)
		require.NoError(t, err)
		assert.Equal(t, alice, record.SenderUserID)
		assert.Equal(t, cryptoDomain.AESGCM, record.Algorithm)
		assert.NotEmpty(t, record.SenderKeyFingerprint)
		assert.NotEqual(t, record.SenderKeyFingerprint, record.RecipientKeyFingerprint)
	})

	t.Run("Success_MissingPublicKeyLeavesMemberPending", func(t *testing.T) {
		dir := newDirectory()
		alice, bob, carol := dir.addUser(t, true), dir.addUser(t, true), dir.addUser(t, false)
		conv := uuid.New()
		groupKey := newGroupKey(t)
		a := dir.participant(t, alice, DistributionConfig{})
		b := dir.participant(t, bob, DistributionConfig{})
		c := dir.participant(t, carol, DistributionConfig{})

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: conv,
			KeyVersion:     1,
			GroupKey:       groupKey,
			Members:        membersOf(alice, bob, carol),
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice, bob}, outcome.Delivered)
		require.Len(t, outcome.Pending, 1)
		assert.Equal(t, carol, outcome.Pending[0].UserID)
		assert.Equal(t, groupkeyDomain.PendingPublicKeyMissing, outcome.Pending[0].Reason)
		assert.Equal(t, 1, outcome.Pending[0].Attempts)
		assert.Equal(t, alice, outcome.Pending[0].DistributorID)

		// The codec is never called for a member without a key.
		assert.Equal(t, int64(2), dir.transport.encrypted.Load())

		stored, ok := dir.pending.get(conv, 1, carol)
		require.True(t, ok)
		assert.Equal(t, groupkeyDomain.PendingPublicKeyMissing, stored.Reason)

		for _, p := range []*participant{a, b} {
			key, err := p.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
			require.NoError(t, err)
			assert.True(t, groupKey.Equal(key))
		}
		_, err = c.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
		assert.ErrorIs(t, err, groupkeyDomain.ErrNoKeyAccess)
	})

	t.Run("Success_PendingReasons", func(t *testing.T) {
		dir := newDirectory()
		alice := dir.addUser(t, true)
		invalid, lookup, persist := dir.addUser(t, false), dir.addUser(t, true), dir.addUser(t, true)
		dir.publish(invalid, `{"kty":"EC","crv":"P-256"}`)
		dir.failLookup(lookup, errors.New("key server unavailable"))
		dir.wrapped.failFor[persist] = errors.New("disk full")
		a := dir.participant(t, alice, DistributionConfig{})

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     1,
			GroupKey:       newGroupKey(t),
			Members:        membersOf(alice, invalid, lookup, persist),
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice}, outcome.Delivered)

		reasons := make(map[uuid.UUID]groupkeyDomain.PendingReason)
		for _, p := range outcome.Pending {
			reasons[p.UserID] = p.Reason
			assert.NotEmpty(t, p.LastError)
		}
		assert.Equal(t, map[uuid.UUID]groupkeyDomain.PendingReason{
			invalid: groupkeyDomain.PendingPublicKeyInvalid,
			lookup:  groupkeyDomain.PendingLookupFailed,
			persist: groupkeyDomain.PendingPersistFailed,
		}, reasons)
	})

	t.Run("Success_CurveMismatchIsInvalidKey", func(t *testing.T) {
		dir := newDirectory()
		alice, dave := dir.addUser(t, true), dir.addUser(t, false)
		dir.publish(dave, p384JWK(t))
		a := dir.participant(t, alice, DistributionConfig{})

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     1,
			GroupKey:       newGroupKey(t),
			Members:        membersOf(dave),
		})
		require.NoError(t, err)
		require.Len(t, outcome.Pending, 1)
		assert.Equal(t, groupkeyDomain.PendingPublicKeyInvalid, outcome.Pending[0].Reason)
	})

	t.Run("Success_ExistingCopyCountsAsDelivered", func(t *testing.T) {
		dir := newDirectory()
		alice, bob := dir.addUser(t, true), dir.addUser(t, true)
		conv := uuid.New()
		groupKey := newGroupKey(t)
		a := dir.participant(t, alice, DistributionConfig{})
		input := &groupkeyDomain.DistributeInput{
			ConversationID: conv,
			KeyVersion:     1,
			GroupKey:       groupKey,
			Members:        membersOf(alice, bob),
		}

		_, err := a.distribution.DistributeGroupKey(ctx, input)
		require.NoError(t, err)
		first, err := dir.wrapped.Get(ctx, conv, 1, bob)
		require.NoError(t, err)

		outcome, err := a.distribution.DistributeGroupKey(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice, bob}, outcome.Delivered)

		second, err := dir.wrapped.Get(ctx, conv, 1, bob)
		require.NoError(t, err)
		assert.Equal(t, first.Ciphertext, second.Ciphertext)
		assert.Equal(t, 2, dir.wrapped.count())
	})

	t.Run("Success_SkipsDepartedAndDuplicateMembers", func(t *testing.T) {
		dir := newDirectory()
		alice, bob := dir.addUser(t, true), dir.addUser(t, true)
		a := dir.participant(t, alice, DistributionConfig{})
		left := time.Now().UTC()
		members := membersOf(alice, alice, bob)
		members[2].LeftAt = &left

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     1,
			GroupKey:       newGroupKey(t),
			Members:        members,
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice}, outcome.Delivered)
		assert.Equal(t, int64(1), dir.transport.encrypted.Load())
	})

	t.Run("Success_LargeGroupInBatches", func(t *testing.T) {
		dir := newDirectory()
		alice := dir.addUser(t, true)
		ids := []uuid.UUID{alice}
		for range 60 {
			ids = append(ids, dir.addUser(t, true))
		}
		a := dir.participant(t, alice, DistributionConfig{BatchSize: 25, Concurrency: 4, WritesPerSec: 1000})

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     1,
			GroupKey:       newGroupKey(t),
			Members:        membersOf(ids...),
		})
		require.NoError(t, err)
		assert.Equal(t, ids, outcome.Delivered)
		assert.Equal(t, int64(61), dir.transport.encrypted.Load())
		assert.Equal(t, 61, dir.wrapped.count())
	})

	t.Run("Success_ChaCha20", func(t *testing.T) {
		dir := newDirectory()
		alice, bob := dir.addUser(t, true), dir.addUser(t, true)
		conv := uuid.New()
		groupKey := newGroupKey(t)
		a := dir.participant(t, alice, DistributionConfig{Algorithm: cryptoDomain.ChaCha20})
		b := dir.participant(t, bob, DistributionConfig{})

		_, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: conv,
			KeyVersion:     1,
			GroupKey:       groupKey,
			Members:        membersOf(bob),
		})
		require.NoError(t, err)

		// The reader takes the algorithm from the record, not its own config.
		key, err := b.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
		require.NoError(t, err)
		assert.True(t, groupKey.Equal(key))
	})

	t.Run("Error_PendingSaveFailureKeepsOutcome", func(t *testing.T) {
		dir := newDirectory()
		alice, carol := dir.addUser(t, true), dir.addUser(t, false)
		dir.pending.saveErr = errors.New("store down")
		a := dir.participant(t, alice, DistributionConfig{})

		outcome, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     1,
			GroupKey:       newGroupKey(t),
			Members:        membersOf(alice, carol),
		})
		assert.ErrorIs(t, err, groupkeyDomain.ErrPendingNotRecorded)
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
		require.NotNil(t, outcome)
		assert.Equal(t, []uuid.UUID{alice}, outcome.Delivered)
		assert.Equal(t, []uuid.UUID{carol}, outcome.PendingUserIDs())
	})

	t.Run("Error_InvalidInput", func(t *testing.T) {
		dir := newDirectory()
		alice := dir.addUser(t, true)
		a := dir.participant(t, alice, DistributionConfig{})

		_, err := a.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     0,
			GroupKey:       newGroupKey(t),
			Members:        membersOf(alice),
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Zero(t, dir.transport.encrypted.Load())
	})

	t.Run("Error_CancelledContext", func(t *testing.T) {
		dir := newDirectory()
		alice, bob := dir.addUser(t, true), dir.addUser(t, true)
		a := dir.participant(t, alice, DistributionConfig{})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := a.distribution.DistributeGroupKey(cctx, &groupkeyDomain.DistributeInput{
			ConversationID: uuid.New(),
			KeyVersion:     1,
			GroupKey:       newGroupKey(t),
			Members:        membersOf(alice, bob),
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, dir.wrapped.count())
	})
}

func TestDistributionUseCase_RetryPending(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*directory, *participant, uuid.UUID, uuid.UUID, *cryptoDomain.GroupKey) {
		dir := newDirectory()
		alice, carol := dir.addUser(t, true), dir.addUser(t, false)
		conv := uuid.New()
		dir.members.join(conv, alice, carol)
		a := dir.participant(t, alice, DistributionConfig{})

		result, err := a.rotation.RotateGroupKey(ctx, conv)
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{carol}, result.Outcome.PendingUserIDs())

		key, err := a.keyAccess.GetGroupKeyForConversation(ctx, conv, result.Version)
		require.NoError(t, err)
		return dir, a, conv, carol, key
	}

	t.Run("Success_DeliversOnceKeyIsPublished", func(t *testing.T) {
		dir, a, conv, carol, groupKey := setup(t)
		dir.publishOwn(t, carol)

		outcome, err := a.distribution.RetryPending(ctx, conv, 1)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{carol}, outcome.Delivered)
		assert.Empty(t, outcome.Pending)
		assert.Zero(t, dir.pending.count())

		c := dir.participant(t, carol, DistributionConfig{})
		key, err := c.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
		require.NoError(t, err)
		assert.True(t, groupKey.Equal(key))
	})

	t.Run("Success_StillPendingCountsAttempts", func(t *testing.T) {
		dir, a, conv, carol, _ := setup(t)
		before, ok := dir.pending.get(conv, 1, carol)
		require.True(t, ok)

		outcome, err := a.distribution.RetryPending(ctx, conv, 1)
		require.NoError(t, err)
		assert.Empty(t, outcome.Delivered)

		after, ok := dir.pending.get(conv, 1, carol)
		require.True(t, ok)
		assert.Equal(t, 2, after.Attempts)
		assert.Equal(t, before.CreatedAt, after.CreatedAt)
	})

	t.Run("Success_DropsDepartedMembers", func(t *testing.T) {
		dir, a, conv, carol, _ := setup(t)
		dir.members.leave(conv, carol)
		dir.publishOwn(t, carol)
		encrypted := dir.transport.encrypted.Load()

		outcome, err := a.distribution.RetryPending(ctx, conv, 1)
		require.NoError(t, err)
		assert.Empty(t, outcome.Delivered)
		assert.Empty(t, outcome.Pending)
		assert.Zero(t, dir.pending.count())
		assert.Equal(t, encrypted, dir.transport.encrypted.Load())

		_, err = dir.wrapped.Get(ctx, conv, 1, carol)
		assert.ErrorIs(t, err, groupkeyDomain.ErrWrappedKeyNotFound)
	})

	t.Run("Error_StillPendingNotRecorded", func(t *testing.T) {
		dir, a, conv, carol, _ := setup(t)
		dir.pending.saveErr = errors.New("store down")

		outcome, err := a.distribution.RetryPending(ctx, conv, 1)
		assert.ErrorIs(t, err, groupkeyDomain.ErrPendingNotRecorded)
		require.NotNil(t, outcome)
		assert.Equal(t, []uuid.UUID{carol}, outcome.PendingUserIDs())
	})

	t.Run("Success_SupersedesCopyOfReplacedIdentityKey", func(t *testing.T) {
		dir := newDirectory()
		alice, bob := dir.addUser(t, true), dir.addUser(t, true)
		conv := uuid.New()
		dir.members.join(conv, alice, bob)
		a := dir.participant(t, alice, DistributionConfig{})

		result, err := a.rotation.RotateGroupKey(ctx, conv)
		require.NoError(t, err)
		original, err := dir.wrapped.Get(ctx, conv, result.Version, bob)
		require.NoError(t, err)

		// Bob replaces his identity key; his copy of v1 no longer opens and
		// he asks alice to send it again.
		dir.newIdentityKey(t, bob, true)
		b := dir.participant(t, bob, DistributionConfig{})
		_, err = b.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
		require.ErrorIs(t, err, groupkeyDomain.ErrRecipientKeyRotated)

		requested, ok := dir.pending.get(conv, 1, bob)
		require.True(t, ok)
		assert.Equal(t, alice, requested.DistributorID)
		assert.Equal(t, groupkeyDomain.PendingPublicKeyRotated, requested.Reason)

		refs, err := dir.pending.ListDistributions(ctx, alice, 10)
		require.NoError(t, err)
		assert.Equal(t, []groupkeyDomain.KeyRef{{ConversationID: conv, Version: 1}}, refs)

		outcome, err := a.distribution.RetryPending(ctx, conv, 1)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{bob}, outcome.Delivered)
		assert.Zero(t, dir.pending.count())

		replaced, err := dir.wrapped.Get(ctx, conv, 1, bob)
		require.NoError(t, err)
		assert.Equal(t, original.ID, replaced.ID)
		assert.NotEqual(t, original.RecipientKeyFingerprint, replaced.RecipientKeyFingerprint)

		key, err := b.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
		require.NoError(t, err)
		aliceKey, err := a.keyAccess.GetGroupKeyForConversation(ctx, conv, 1)
		require.NoError(t, err)
		assert.True(t, aliceKey.Equal(key))
	})

	t.Run("Success_CurrentCopyIsNotRewrapped", func(t *testing.T) {
		dir, conv, alice, bob, _ := sharedConversation(t)
		a := dir.participant(t, alice, DistributionConfig{})
		original, err := dir.wrapped.Get(ctx, conv, 1, bob)
		require.NoError(t, err)
		require.NoError(t, dir.pending.Save(ctx, []groupkeyDomain.PendingMember{{
			ConversationID: conv,
			KeyVersion:     1,
			UserID:         bob,
			DistributorID:  alice,
			Reason:         groupkeyDomain.PendingPersistFailed,
			Attempts:       1,
		}}))

		outcome, err := a.distribution.RetryPending(ctx, conv, 1)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{bob}, outcome.Delivered)

		after, err := dir.wrapped.Get(ctx, conv, 1, bob)
		require.NoError(t, err)
		assert.Equal(t, original.Ciphertext, after.Ciphertext)
	})

	t.Run("Success_NothingPending", func(t *testing.T) {
		dir := newDirectory()
		alice := dir.addUser(t, true)
		a := dir.participant(t, alice, DistributionConfig{})

		outcome, err := a.distribution.RetryPending(ctx, uuid.New(), 1)
		require.NoError(t, err)
		assert.NotNil(t, outcome.Delivered)
		assert.Empty(t, outcome.Delivered)
		assert.Zero(t, dir.wrapped.gets.Load())
	})

	t.Run("Error_DistributorLostAccess", func(t *testing.T) {
		dir := newDirectory()
		alice, carol := dir.addUser(t, true), dir.addUser(t, false)
		conv := uuid.New()
		a := dir.participant(t, alice, DistributionConfig{})
		require.NoError(t, dir.pending.Save(ctx, []groupkeyDomain.PendingMember{{
			ConversationID: conv,
			KeyVersion:     1,
			UserID:         carol,
			DistributorID:  alice,
			Reason:         groupkeyDomain.PendingPublicKeyMissing,
			Attempts:       1,
		}}))

		_, err := a.distribution.RetryPending(ctx, conv, 1)
		assert.ErrorIs(t, err, groupkeyDomain.ErrNoKeyAccess)
		assert.Equal(t, 1, dir.pending.count())
	})
}
