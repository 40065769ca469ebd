package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
)

func TestActiveMembers(t *testing.T) {
	now := time.Now().UTC()
	left := now.Add(-time.Hour)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	members := []Member{
		{UserID: alice, JoinedAt: now},
		{UserID: bob, JoinedAt: now, LeftAt: &left},
		{UserID: carol, JoinedAt: now},
		{UserID: alice, JoinedAt: now},
	}

	active := ActiveMembers(members)

	assert.Len(t, active, 2)
	assert.Equal(t, alice, active[0].UserID)
	assert.Equal(t, carol, active[1].UserID)
	assert.Empty(t, ActiveMembers(nil))
}

func TestDistributionOutcome(t *testing.T) {
	pending := uuid.New()
	outcome := &DistributionOutcome{
		Delivered: []uuid.UUID{uuid.New()},
		Pending:   []PendingMember{{UserID: pending, Reason: PendingPublicKeyMissing}},
	}

	assert.False(t, outcome.Complete())
	assert.Equal(t, []uuid.UUID{pending}, outcome.PendingUserIDs())
	assert.True(t, (&DistributionOutcome{}).Complete())
}

func TestDistributeInput_Validate(t *testing.T) {
	key := testKey(t, 0x01)

	valid := DistributeInput{ConversationID: uuid.New(), KeyVersion: 1, GroupKey: key}
	assert.NoError(t, valid.Validate())

	missingConversation := valid
	missingConversation.ConversationID = uuid.Nil
	assert.ErrorIs(t, missingConversation.Validate(), apperrors.ErrInvalidInput)

	zeroVersion := valid
	zeroVersion.KeyVersion = 0
	assert.ErrorIs(t, zeroVersion.Validate(), apperrors.ErrInvalidInput)

	noKey := valid
	noKey.GroupKey = nil
	assert.ErrorIs(t, noKey.Validate(), apperrors.ErrInvalidInput)
}

func TestWrappedKeyRecord_Validate(t *testing.T) {
	record := WrappedKeyRecord{
		ID:                      uuid.New(),
		ConversationID:          uuid.New(),
		KeyVersion:              1,
		RecipientUserID:         uuid.New(),
		Ciphertext:              "AAECAwQFBgcICQoL",
		SenderUserID:            uuid.New(),
		SenderPublicKey:         `{"kty":"EC"}`,
		SenderKeyFingerprint:    "sender",
		RecipientKeyFingerprint: "recipient",
		Algorithm:               cryptoDomain.AESGCM,
	}
	assert.NoError(t, record.Validate())

	broken := record
	broken.Ciphertext = "not base64!"
	assert.ErrorIs(t, broken.Validate(), apperrors.ErrInvalidInput)

	broken = record
	broken.SenderPublicKey = "pem"
	assert.ErrorIs(t, broken.Validate(), apperrors.ErrInvalidInput)
}
