package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// mysqlDeadlock is returned when InnoDB breaks a lock cycle between two rotations.
const mysqlDeadlock = 1213

// MySQLVersionRepository manages conversation_key_versions.
type MySQLVersionRepository struct {
	db *sql.DB
}

// GetCurrentVersion returns the highest version that has at least one wrapped copy.
func (m *MySQLVersionRepository) GetCurrentVersion(ctx context.Context, conversationID uuid.UUID) (uint, error) {
	querier := database.GetTx(ctx, m.db)

	conv, err := conversationID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal conversation id")
	}

	query := `SELECT MAX(v.version) FROM conversation_key_versions v
			  WHERE v.conversation_id = ? AND EXISTS (
			      SELECT 1 FROM conversation_keys k
			      WHERE k.conversation_id = v.conversation_id AND k.key_version = v.version
			  )`

	var version sql.NullInt64
	err = querier.QueryRowContext(ctx, query, conv).Scan(&version)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get current key version")
	}
	if !version.Valid {
		return 0, groupkeyDomain.ErrConversationNotFound
	}
	return uint(version.Int64), nil
}

// BumpConversationKeyVersion reads the next version under FOR UPDATE and inserts it.
// Must run inside a transaction for the lock to hold until commit.
func (m *MySQLVersionRepository) BumpConversationKeyVersion(
	ctx context.Context,
	conversationID, createdBy uuid.UUID,
) (uint, error) {
	querier := database.GetTx(ctx, m.db)

	ids, err := marshalUUIDs(conversationID, createdBy)
	if err != nil {
		return 0, err
	}

	var next uint
	err = querier.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM conversation_key_versions WHERE conversation_id = ? FOR UPDATE`,
		ids[0],
	).Scan(&next)
	if err != nil {
		return 0, m.mapError(err, "failed to read next key version")
	}

	_, err = querier.ExecContext(
		ctx,
		`INSERT INTO conversation_key_versions (conversation_id, version, created_by, created_at) VALUES (?, ?, ?, ?)`,
		ids[0],
		next,
		ids[1],
		time.Now().UTC(),
	)
	if err != nil {
		return 0, m.mapError(err, "failed to bump key version")
	}
	return next, nil
}

func (m *MySQLVersionRepository) mapError(err error, message string) error {
	if database.IsUniqueViolation(err) {
		return groupkeyDomain.ErrVersionConflict
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDeadlock {
		return groupkeyDomain.ErrVersionConflict
	}
	return apperrors.Wrap(err, message)
}

// NewMySQLVersionRepository creates a new MySQLVersionRepository.
func NewMySQLVersionRepository(db *sql.DB) *MySQLVersionRepository {
	return &MySQLVersionRepository{db: db}
}
