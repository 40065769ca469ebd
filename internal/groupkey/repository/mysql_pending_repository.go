package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// MySQLPendingRepository tracks undelivered members in pending_key_distributions.
type MySQLPendingRepository struct {
	db *sql.DB
}

// Save upserts each entry on (conversation_id, key_version, user_id).
func (m *MySQLPendingRepository) Save(ctx context.Context, pending []groupkeyDomain.PendingMember) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO pending_key_distributions (conversation_id, key_version, user_id, distributor_id,
				reason, attempts, last_error, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
				distributor_id = VALUES(distributor_id),
				reason = VALUES(reason),
				attempts = VALUES(attempts),
				last_error = VALUES(last_error),
				updated_at = VALUES(updated_at)`

	for _, entry := range pending {
		ids, err := marshalUUIDs(entry.ConversationID, entry.UserID, entry.DistributorID)
		if err != nil {
			return err
		}
		_, err = querier.ExecContext(
			ctx,
			query,
			ids[0],
			entry.KeyVersion,
			ids[1],
			ids[2],
			string(entry.Reason),
			entry.Attempts,
			entry.LastError,
			entry.CreatedAt,
			entry.UpdatedAt,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to save pending member")
		}
	}
	return nil
}

// List returns the pending members of one key version, oldest first.
func (m *MySQLPendingRepository) List(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) ([]groupkeyDomain.PendingMember, error) {
	querier := database.GetTx(ctx, m.db)

	conv, err := conversationID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal conversation id")
	}

	query := `SELECT conversation_id, key_version, user_id, distributor_id, reason, attempts,
				last_error, created_at, updated_at
			  FROM pending_key_distributions
			  WHERE conversation_id = ? AND key_version = ?
			  ORDER BY created_at, user_id`

	rows, err := querier.QueryContext(ctx, query, conv, version)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending members")
	}
	defer func() {
		_ = rows.Close()
	}()

	pending := make([]groupkeyDomain.PendingMember, 0)
	for rows.Next() {
		var entry groupkeyDomain.PendingMember
		var convID, userID, distributorID []byte
		var reason string
		if err := rows.Scan(
			&convID,
			&entry.KeyVersion,
			&userID,
			&distributorID,
			&reason,
			&entry.Attempts,
			&entry.LastError,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan pending member")
		}
		if err := unmarshalUUIDs(
			[][]byte{convID, userID, distributorID},
			&entry.ConversationID, &entry.UserID, &entry.DistributorID,
		); err != nil {
			return nil, err
		}
		entry.Reason = groupkeyDomain.PendingReason(reason)
		pending = append(pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate pending members")
	}

	return pending, nil
}

// ListDistributions returns the key versions distributorID still owes members.
func (m *MySQLPendingRepository) ListDistributions(
	ctx context.Context,
	distributorID uuid.UUID,
	limit int,
) ([]groupkeyDomain.KeyRef, error) {
	querier := database.GetTx(ctx, m.db)

	distributor, err := distributorID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal distributor id")
	}

	query := `SELECT conversation_id, key_version FROM pending_key_distributions
			  WHERE distributor_id = ?
			  GROUP BY conversation_id, key_version
			  ORDER BY MIN(updated_at)
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, distributor, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending distributions")
	}
	defer func() {
		_ = rows.Close()
	}()

	refs := make([]groupkeyDomain.KeyRef, 0)
	for rows.Next() {
		var ref groupkeyDomain.KeyRef
		var conv []byte
		if err := rows.Scan(&conv, &ref.Version); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan pending distribution")
		}
		if err := ref.ConversationID.UnmarshalBinary(conv); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal conversation id")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate pending distributions")
	}

	return refs, nil
}

// Remove deletes the entries of userIDs for one key version.
func (m *MySQLPendingRepository) Remove(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	userIDs []uuid.UUID,
) error {
	if len(userIDs) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, m.db)

	conv, err := conversationID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal conversation id")
	}
	ids, err := marshalUUIDs(userIDs...)
	if err != nil {
		return err
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, conv, version)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	query := `DELETE FROM pending_key_distributions
			  WHERE conversation_id = ? AND key_version = ? AND user_id IN (` + placeholders + `)`

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to remove pending members")
	}
	return nil
}

// NewMySQLPendingRepository creates a new MySQLPendingRepository.
func NewMySQLPendingRepository(db *sql.DB) *MySQLPendingRepository {
	return &MySQLPendingRepository{db: db}
}
