package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// PostgreSQLMembershipRepository reads conversation_members. It never writes membership.
type PostgreSQLMembershipRepository struct {
	db *sql.DB
}

// GetActiveMembers returns members without left_at, oldest first.
func (p *PostgreSQLMembershipRepository) GetActiveMembers(
	ctx context.Context,
	conversationID uuid.UUID,
) ([]groupkeyDomain.Member, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT user_id, joined_at, left_at FROM conversation_members
			  WHERE conversation_id = $1 AND left_at IS NULL
			  ORDER BY joined_at, user_id`

	rows, err := querier.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list conversation members")
	}
	defer func() {
		_ = rows.Close()
	}()

	members := make([]groupkeyDomain.Member, 0)
	for rows.Next() {
		var member groupkeyDomain.Member
		if err := rows.Scan(&member.UserID, &member.JoinedAt, &member.LeftAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan conversation member")
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate conversation members")
	}

	return members, nil
}

// NewPostgreSQLMembershipRepository creates a new PostgreSQLMembershipRepository.
func NewPostgreSQLMembershipRepository(db *sql.DB) *PostgreSQLMembershipRepository {
	return &PostgreSQLMembershipRepository{db: db}
}
