package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	identityDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/domain"
)

// MySQLPublicKeyRepository manages user_public_keys with BINARY(16) user ids.
type MySQLPublicKeyRepository struct {
	db *sql.DB
}

// Upsert publishes a user's public key, replacing any previous one.
func (m *MySQLPublicKeyRepository) Upsert(ctx context.Context, key *identityDomain.PublicKey) error {
	querier := database.GetTx(ctx, m.db)

	userID, err := key.UserID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal user id")
	}

	query := `INSERT INTO user_public_keys (user_id, public_key, fingerprint, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
				public_key = VALUES(public_key),
				fingerprint = VALUES(fingerprint),
				updated_at = VALUES(updated_at)`

	_, err = querier.ExecContext(ctx, query, userID, key.JWK, key.Fingerprint, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert public key")
	}
	return nil
}

// Get returns the published key of userID or ErrPublicKeyNotFound.
func (m *MySQLPublicKeyRepository) Get(ctx context.Context, userID uuid.UUID) (*identityDomain.PublicKey, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := userID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal user id")
	}

	query := `SELECT user_id, public_key, fingerprint, created_at, updated_at
			  FROM user_public_keys WHERE user_id = ?`

	var key identityDomain.PublicKey
	var rawID []byte
	err = querier.QueryRowContext(ctx, query, id).Scan(
		&rawID,
		&key.JWK,
		&key.Fingerprint,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identityDomain.ErrPublicKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get public key")
	}
	if err := key.UserID.UnmarshalBinary(rawID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal user id")
	}
	return &key, nil
}

// NewMySQLPublicKeyRepository creates a new MySQLPublicKeyRepository.
func NewMySQLPublicKeyRepository(db *sql.DB) *MySQLPublicKeyRepository {
	return &MySQLPublicKeyRepository{db: db}
}
