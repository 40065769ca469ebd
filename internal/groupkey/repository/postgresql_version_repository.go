package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// PostgreSQLVersionRepository manages conversation_key_versions.
type PostgreSQLVersionRepository struct {
	db *sql.DB
}

// GetCurrentVersion returns the highest version of the conversation that has
// at least one wrapped copy. A version whose rotation never delivered is skipped.
func (p *PostgreSQLVersionRepository) GetCurrentVersion(ctx context.Context, conversationID uuid.UUID) (uint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT MAX(v.version) FROM conversation_key_versions v
			  WHERE v.conversation_id = $1 AND EXISTS (
			      SELECT 1 FROM conversation_keys k
			      WHERE k.conversation_id = v.conversation_id AND k.key_version = v.version
			  )`

	var version sql.NullInt64
	err := querier.QueryRowContext(ctx, query, conversationID).Scan(&version)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get current key version")
	}
	if !version.Valid {
		return 0, groupkeyDomain.ErrConversationNotFound
	}
	return uint(version.Int64), nil
}

// BumpConversationKeyVersion inserts max+1 in a single statement. Two rotations
// racing for the same number collide on the primary key and the loser gets
// ErrVersionConflict.
func (p *PostgreSQLVersionRepository) BumpConversationKeyVersion(
	ctx context.Context,
	conversationID, createdBy uuid.UUID,
) (uint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO conversation_key_versions (conversation_id, version, created_by, created_at)
			  SELECT $1::uuid, COALESCE(MAX(version), 0) + 1, $2::uuid, $3::timestamptz
			  FROM conversation_key_versions WHERE conversation_id = $1::uuid
			  RETURNING version`

	var version uint
	err := querier.QueryRowContext(ctx, query, conversationID, createdBy, time.Now().UTC()).Scan(&version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, groupkeyDomain.ErrVersionConflict
		}
		return 0, apperrors.Wrap(err, "failed to bump key version")
	}
	return version, nil
}

// NewPostgreSQLVersionRepository creates a new PostgreSQLVersionRepository.
func NewPostgreSQLVersionRepository(db *sql.DB) *PostgreSQLVersionRepository {
	return &PostgreSQLVersionRepository{db: db}
}
