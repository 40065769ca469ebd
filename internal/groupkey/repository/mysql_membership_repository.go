package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// MySQLMembershipRepository reads conversation_members.
type MySQLMembershipRepository struct {
	db *sql.DB
}

// GetActiveMembers returns members without left_at, oldest first.
func (m *MySQLMembershipRepository) GetActiveMembers(
	ctx context.Context,
	conversationID uuid.UUID,
) ([]groupkeyDomain.Member, error) {
	querier := database.GetTx(ctx, m.db)

	conv, err := conversationID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal conversation id")
	}

	query := `SELECT user_id, joined_at, left_at FROM conversation_members
			  WHERE conversation_id = ? AND left_at IS NULL
			  ORDER BY joined_at, user_id`

	rows, err := querier.QueryContext(ctx, query, conv)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list conversation members")
	}
	defer func() {
		_ = rows.Close()
	}()

	members := make([]groupkeyDomain.Member, 0)
	for rows.Next() {
		var member groupkeyDomain.Member
		var userID []byte
		if err := rows.Scan(&userID, &member.JoinedAt, &member.LeftAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan conversation member")
		}
		if err := member.UserID.UnmarshalBinary(userID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal member id")
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate conversation members")
	}

	return members, nil
}

// NewMySQLMembershipRepository creates a new MySQLMembershipRepository.
func NewMySQLMembershipRepository(db *sql.DB) *MySQLMembershipRepository {
	return &MySQLMembershipRepository{db: db}
}
