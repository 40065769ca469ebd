package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// MySQLWrappedKeyRepository stores wrapped group keys in conversation_keys.
// UUIDs are stored as BINARY(16).
type MySQLWrappedKeyRepository struct {
	db *sql.DB
}

// Create inserts a record. A duplicate (conversation, version, user) is ErrWrappedKeyExists.
func (m *MySQLWrappedKeyRepository) Create(ctx context.Context, record *groupkeyDomain.WrappedKeyRecord) error {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(record.ID, record.ConversationID, record.RecipientUserID, record.SenderUserID)
	if err != nil {
		return err
	}

	query := `INSERT INTO conversation_keys (id, conversation_id, key_version, user_id,
				encrypted_shared_secret, created_by, sender_public_key, sender_key_fingerprint,
				recipient_key_fingerprint, algorithm, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		ids[0],
		ids[1],
		record.KeyVersion,
		ids[2],
		record.Ciphertext,
		ids[3],
		record.SenderPublicKey,
		record.SenderKeyFingerprint,
		record.RecipientKeyFingerprint,
		string(record.Algorithm),
		record.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return groupkeyDomain.ErrWrappedKeyExists
		}
		return apperrors.Wrap(err, "failed to create wrapped key")
	}
	return nil
}

// Supersede overwrites a copy wrapped for a replaced recipient identity key.
// Zero matching rows means another distributor got there first.
func (m *MySQLWrappedKeyRepository) Supersede(
	ctx context.Context,
	record *groupkeyDomain.WrappedKeyRecord,
	previousFingerprint string,
) error {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(record.SenderUserID, record.ConversationID, record.RecipientUserID)
	if err != nil {
		return err
	}

	query := `UPDATE conversation_keys SET encrypted_shared_secret = ?, created_by = ?,
				sender_public_key = ?, sender_key_fingerprint = ?, recipient_key_fingerprint = ?,
				algorithm = ?, created_at = ?
			  WHERE conversation_id = ? AND key_version = ? AND user_id = ?
				AND recipient_key_fingerprint = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		record.Ciphertext,
		ids[0],
		record.SenderPublicKey,
		record.SenderKeyFingerprint,
		record.RecipientKeyFingerprint,
		string(record.Algorithm),
		record.CreatedAt,
		ids[1],
		record.KeyVersion,
		ids[2],
		previousFingerprint,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to supersede wrapped key")
	}
	return expectOneRow(result, "supersede wrapped key")
}

// Get returns the record wrapped for recipientID.
func (m *MySQLWrappedKeyRepository) Get(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	recipientID uuid.UUID,
) (*groupkeyDomain.WrappedKeyRecord, error) {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(conversationID, recipientID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, conversation_id, key_version, user_id, encrypted_shared_secret, created_by,
				sender_public_key, sender_key_fingerprint, recipient_key_fingerprint, algorithm, created_at
			  FROM conversation_keys
			  WHERE conversation_id = ? AND key_version = ? AND user_id = ?`

	var record groupkeyDomain.WrappedKeyRecord
	var id, conv, recipient, sender []byte
	var algorithm string
	err = querier.QueryRowContext(ctx, query, ids[0], version, ids[1]).Scan(
		&id,
		&conv,
		&record.KeyVersion,
		&recipient,
		&record.Ciphertext,
		&sender,
		&record.SenderPublicKey,
		&record.SenderKeyFingerprint,
		&record.RecipientKeyFingerprint,
		&algorithm,
		&record.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, groupkeyDomain.ErrWrappedKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get wrapped key")
	}

	if err := unmarshalUUIDs(
		[][]byte{id, conv, recipient, sender},
		&record.ID, &record.ConversationID, &record.RecipientUserID, &record.SenderUserID,
	); err != nil {
		return nil, err
	}
	record.Algorithm = cryptoDomain.Algorithm(algorithm)

	return &record, nil
}

// ListRecipients returns the users holding a copy of the version, ordered by user id.
func (m *MySQLWrappedKeyRepository) ListRecipients(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) ([]uuid.UUID, error) {
	querier := database.GetTx(ctx, m.db)

	conv, err := conversationID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal conversation id")
	}

	rows, err := querier.QueryContext(
		ctx,
		`SELECT user_id FROM conversation_keys WHERE conversation_id = ? AND key_version = ? ORDER BY user_id`,
		conv,
		version,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list wrapped key recipients")
	}
	defer func() {
		_ = rows.Close()
	}()

	recipients := make([]uuid.UUID, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan wrapped key recipient")
		}
		var userID uuid.UUID
		if err := userID.UnmarshalBinary(raw); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal recipient id")
		}
		recipients = append(recipients, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate wrapped key recipients")
	}

	return recipients, nil
}

// NewMySQLWrappedKeyRepository creates a new MySQLWrappedKeyRepository.
func NewMySQLWrappedKeyRepository(db *sql.DB) *MySQLWrappedKeyRepository {
	return &MySQLWrappedKeyRepository{db: db}
}
