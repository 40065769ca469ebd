package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

func binaryID(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	raw, err := id.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestMySQLWrappedKeyRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		record := newRecord()

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversation_keys")).
			WithArgs(
				binaryID(t, record.ID), binaryID(t, record.ConversationID), record.KeyVersion,
				binaryID(t, record.RecipientUserID), record.Ciphertext, binaryID(t, record.SenderUserID),
				record.SenderPublicKey, record.SenderKeyFingerprint, record.RecipientKeyFingerprint,
				"aes-gcm", record.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, NewMySQLWrappedKeyRepository(db).Create(ctx, record))
	})

	t.Run("Error_DuplicateRecipient", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversation_keys")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		err := NewMySQLWrappedKeyRepository(db).Create(ctx, newRecord())
		assert.ErrorIs(t, err, groupkeyDomain.ErrWrappedKeyExists)
	})
}

func TestMySQLWrappedKeyRepository_Supersede(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		record := newRecord()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE conversation_keys SET encrypted_shared_secret")).
			WithArgs(
				record.Ciphertext, binaryID(t, record.SenderUserID), record.SenderPublicKey,
				record.SenderKeyFingerprint, record.RecipientKeyFingerprint, "aes-gcm", record.CreatedAt,
				binaryID(t, record.ConversationID), record.KeyVersion, binaryID(t, record.RecipientUserID), "old-fp",
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, NewMySQLWrappedKeyRepository(db).Supersede(ctx, record, "old-fp"))
	})

	t.Run("Error_AlreadyReplaced", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE conversation_keys")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewMySQLWrappedKeyRepository(db).Supersede(ctx, newRecord(), "old-fp")
		assert.ErrorIs(t, err, groupkeyDomain.ErrWrappedKeyNotFound)
	})
}

func TestMySQLWrappedKeyRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		record := newRecord()

		rows := sqlmock.NewRows(wrappedKeyColumns).AddRow(
			binaryID(t, record.ID), binaryID(t, record.ConversationID), 2, binaryID(t, record.RecipientUserID),
			record.Ciphertext, binaryID(t, record.SenderUserID), record.SenderPublicKey,
			record.SenderKeyFingerprint, record.RecipientKeyFingerprint, "aes-gcm", record.CreatedAt,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM conversation_keys")).
			WithArgs(binaryID(t, record.ConversationID), uint(2), binaryID(t, record.RecipientUserID)).
			WillReturnRows(rows)

		got, err := NewMySQLWrappedKeyRepository(db).Get(ctx, record.ConversationID, 2, record.RecipientUserID)
		require.NoError(t, err)
		assert.Equal(t, record, got)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM conversation_keys")).
			WillReturnRows(sqlmock.NewRows(wrappedKeyColumns))

		_, err := NewMySQLWrappedKeyRepository(db).Get(ctx, uuid.New(), 1, uuid.New())
		assert.ErrorIs(t, err, groupkeyDomain.ErrWrappedKeyNotFound)
	})
}

func TestMySQLVersionRepository_BumpConversationKeyVersion(t *testing.T) {
	ctx := context.Background()
	conv, creator := uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs(binaryID(t, conv)).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversation_key_versions")).
			WithArgs(binaryID(t, conv), uint(3), binaryID(t, creator), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		version, err := NewMySQLVersionRepository(db).BumpConversationKeyVersion(ctx, conv, creator)
		require.NoError(t, err)
		assert.Equal(t, uint(3), version)
	})

	for name, number := range map[string]uint16{"Error_Duplicate": 1062, "Error_Deadlock": 1213} {
		t.Run(name, func(t *testing.T) {
			db, mock := newMockDB(t)

			mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
				WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversation_key_versions")).
				WillReturnError(&mysql.MySQLError{Number: number})

			_, err := NewMySQLVersionRepository(db).BumpConversationKeyVersion(ctx, conv, creator)
			assert.ErrorIs(t, err, groupkeyDomain.ErrVersionConflict)
		})
	}
}

func TestMySQLVersionRepository_GetCurrentVersion(t *testing.T) {
	db, mock := newMockDB(t)
	conv := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(v.version)")).
		WithArgs(binaryID(t, conv)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	_, err := NewMySQLVersionRepository(db).GetCurrentVersion(context.Background(), conv)
	assert.ErrorIs(t, err, groupkeyDomain.ErrConversationNotFound)
}

func TestMySQLMembershipRepository_GetActiveMembers(t *testing.T) {
	db, mock := newMockDB(t)
	conv, member := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversation_members")).
		WithArgs(binaryID(t, conv)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "joined_at", "left_at"}).
			AddRow(binaryID(t, member), time.Now().UTC(), nil))

	members, err := NewMySQLMembershipRepository(db).GetActiveMembers(context.Background(), conv)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, member, members[0].UserID)
}

func TestMySQLPendingRepository(t *testing.T) {
	ctx := context.Background()
	conv := uuid.New()
	entry := newPending(conv)

	t.Run("Save", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE")).
			WithArgs(
				binaryID(t, conv), uint(1), binaryID(t, entry.UserID), binaryID(t, entry.DistributorID),
				"public_key_missing", 1, entry.LastError, entry.CreatedAt, entry.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, NewMySQLPendingRepository(db).Save(ctx, []groupkeyDomain.PendingMember{entry}))
	})

	t.Run("List", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM pending_key_distributions")).
			WithArgs(binaryID(t, conv), uint(1)).
			WillReturnRows(sqlmock.NewRows(pendingColumns).AddRow(
				binaryID(t, conv), 1, binaryID(t, entry.UserID), binaryID(t, entry.DistributorID),
				"public_key_missing", 1, entry.LastError, entry.CreatedAt, entry.UpdatedAt,
			))

		pending, err := NewMySQLPendingRepository(db).List(ctx, conv, 1)
		require.NoError(t, err)
		assert.Equal(t, []groupkeyDomain.PendingMember{entry}, pending)
	})

	t.Run("ListDistributions", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectQuery(regexp.QuoteMeta("GROUP BY conversation_id, key_version")).
			WithArgs(binaryID(t, entry.DistributorID), 5).
			WillReturnRows(sqlmock.NewRows([]string{"conversation_id", "key_version"}).AddRow(binaryID(t, conv), 1))

		refs, err := NewMySQLPendingRepository(db).ListDistributions(ctx, entry.DistributorID, 5)
		require.NoError(t, err)
		assert.Equal(t, []groupkeyDomain.KeyRef{{ConversationID: conv, Version: 1}}, refs)
	})

	t.Run("Remove", func(t *testing.T) {
		db, mock := newMockDB(t)
		a, b := uuid.New(), uuid.New()

		mock.ExpectExec(regexp.QuoteMeta("user_id IN (?, ?)")).
			WithArgs(binaryID(t, conv), uint(1), binaryID(t, a), binaryID(t, b)).
			WillReturnResult(sqlmock.NewResult(0, 2))

		assert.NoError(t, NewMySQLPendingRepository(db).Remove(ctx, conv, 1, []uuid.UUID{a, b}))
	})
}
