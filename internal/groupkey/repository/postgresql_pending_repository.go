package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// PostgreSQLPendingRepository tracks undelivered members in pending_key_distributions.
type PostgreSQLPendingRepository struct {
	db *sql.DB
}

// Save upserts each entry on (conversation_id, key_version, user_id).
func (p *PostgreSQLPendingRepository) Save(ctx context.Context, pending []groupkeyDomain.PendingMember) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO pending_key_distributions (conversation_id, key_version, user_id, distributor_id,
				reason, attempts, last_error, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (conversation_id, key_version, user_id) DO UPDATE SET
				distributor_id = EXCLUDED.distributor_id,
				reason = EXCLUDED.reason,
				attempts = EXCLUDED.attempts,
				last_error = EXCLUDED.last_error,
				updated_at = EXCLUDED.updated_at`

	for _, entry := range pending {
		_, err := querier.ExecContext(
			ctx,
			query,
			entry.ConversationID,
			entry.KeyVersion,
			entry.UserID,
			entry.DistributorID,
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
func (p *PostgreSQLPendingRepository) List(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) ([]groupkeyDomain.PendingMember, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT conversation_id, key_version, user_id, distributor_id, reason, attempts,
				last_error, created_at, updated_at
			  FROM pending_key_distributions
			  WHERE conversation_id = $1 AND key_version = $2
			  ORDER BY created_at, user_id`

	rows, err := querier.QueryContext(ctx, query, conversationID, version)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending members")
	}
	defer func() {
		_ = rows.Close()
	}()

	pending := make([]groupkeyDomain.PendingMember, 0)
	for rows.Next() {
		var entry groupkeyDomain.PendingMember
		var reason string
		if err := rows.Scan(
			&entry.ConversationID,
			&entry.KeyVersion,
			&entry.UserID,
			&entry.DistributorID,
			&reason,
			&entry.Attempts,
			&entry.LastError,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan pending member")
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
func (p *PostgreSQLPendingRepository) ListDistributions(
	ctx context.Context,
	distributorID uuid.UUID,
	limit int,
) ([]groupkeyDomain.KeyRef, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT conversation_id, key_version FROM pending_key_distributions
			  WHERE distributor_id = $1
			  GROUP BY conversation_id, key_version
			  ORDER BY MIN(updated_at)
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, distributorID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending distributions")
	}
	defer func() {
		_ = rows.Close()
	}()

	refs := make([]groupkeyDomain.KeyRef, 0)
	for rows.Next() {
		var ref groupkeyDomain.KeyRef
		if err := rows.Scan(&ref.ConversationID, &ref.Version); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan pending distribution")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate pending distributions")
	}

	return refs, nil
}

// Remove deletes the entries of userIDs for one key version.
func (p *PostgreSQLPendingRepository) Remove(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	userIDs []uuid.UUID,
) error {
	if len(userIDs) == 0 {
		return nil
	}
	querier := database.GetTx(ctx, p.db)

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	query := `DELETE FROM pending_key_distributions
			  WHERE conversation_id = $1 AND key_version = $2 AND user_id = ANY($3::uuid[])`

	if _, err := querier.ExecContext(ctx, query, conversationID, version, pq.StringArray(ids)); err != nil {
		return apperrors.Wrap(err, "failed to remove pending members")
	}
	return nil
}

// NewPostgreSQLPendingRepository creates a new PostgreSQLPendingRepository.
func NewPostgreSQLPendingRepository(db *sql.DB) *PostgreSQLPendingRepository {
	return &PostgreSQLPendingRepository{db: db}
}
