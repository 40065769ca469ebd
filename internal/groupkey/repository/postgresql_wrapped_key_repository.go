// Package repository implements group key persistence for PostgreSQL, MySQL and Redis.
//
// Every SQL repository reaches the database through database.GetTx so it joins
// a transaction started by the use case when there is one.
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

// PostgreSQLWrappedKeyRepository stores wrapped group keys in conversation_keys.
type PostgreSQLWrappedKeyRepository struct {
	db *sql.DB
}

// Create inserts a record. The (conversation_id, key_version, user_id) unique
// constraint turns a second copy for the same member into ErrWrappedKeyExists.
func (p *PostgreSQLWrappedKeyRepository) Create(
	ctx context.Context,
	record *groupkeyDomain.WrappedKeyRecord,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO conversation_keys (id, conversation_id, key_version, user_id,
				encrypted_shared_secret, created_by, sender_public_key, sender_key_fingerprint,
				recipient_key_fingerprint, algorithm, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
		record.ConversationID,
		record.KeyVersion,
		record.RecipientUserID,
		record.Ciphertext,
		record.SenderUserID,
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

// Get returns the record wrapped for recipientID.
func (p *PostgreSQLWrappedKeyRepository) Get(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	recipientID uuid.UUID,
) (*groupkeyDomain.WrappedKeyRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, conversation_id, key_version, user_id, encrypted_shared_secret, created_by,
				sender_public_key, sender_key_fingerprint, recipient_key_fingerprint, algorithm, created_at
			  FROM conversation_keys
			  WHERE conversation_id = $1 AND key_version = $2 AND user_id = $3`

	var record groupkeyDomain.WrappedKeyRecord
	var algorithm string
	err := querier.QueryRowContext(ctx, query, conversationID, version, recipientID).Scan(
		&record.ID,
		&record.ConversationID,
		&record.KeyVersion,
		&record.RecipientUserID,
		&record.Ciphertext,
		&record.SenderUserID,
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
	record.Algorithm = cryptoDomain.Algorithm(algorithm)

	return &record, nil
}

// Supersede overwrites a copy wrapped for a replaced recipient identity key.
// The row keeps its id; the fingerprint guard makes concurrent supersedes safe.
func (p *PostgreSQLWrappedKeyRepository) Supersede(
	ctx context.Context,
	record *groupkeyDomain.WrappedKeyRecord,
	previousFingerprint string,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE conversation_keys SET encrypted_shared_secret = $1, created_by = $2,
				sender_public_key = $3, sender_key_fingerprint = $4, recipient_key_fingerprint = $5,
				algorithm = $6, created_at = $7
			  WHERE conversation_id = $8 AND key_version = $9 AND user_id = $10
				AND recipient_key_fingerprint = $11`

	result, err := querier.ExecContext(
		ctx,
		query,
		record.Ciphertext,
		record.SenderUserID,
		record.SenderPublicKey,
		record.SenderKeyFingerprint,
		record.RecipientKeyFingerprint,
		string(record.Algorithm),
		record.CreatedAt,
		record.ConversationID,
		record.KeyVersion,
		record.RecipientUserID,
		previousFingerprint,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to supersede wrapped key")
	}
	return expectOneRow(result, "supersede wrapped key")
}

// ListRecipients returns the users holding a copy of the version, ordered by user id.
func (p *PostgreSQLWrappedKeyRepository) ListRecipients(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) ([]uuid.UUID, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT user_id FROM conversation_keys
			  WHERE conversation_id = $1 AND key_version = $2
			  ORDER BY user_id`

	rows, err := querier.QueryContext(ctx, query, conversationID, version)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list wrapped key recipients")
	}
	defer func() {
		_ = rows.Close()
	}()

	recipients := make([]uuid.UUID, 0)
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan wrapped key recipient")
		}
		recipients = append(recipients, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate wrapped key recipients")
	}

	return recipients, nil
}

// NewPostgreSQLWrappedKeyRepository creates a new PostgreSQLWrappedKeyRepository.
func NewPostgreSQLWrappedKeyRepository(db *sql.DB) *PostgreSQLWrappedKeyRepository {
	return &PostgreSQLWrappedKeyRepository{db: db}
}
