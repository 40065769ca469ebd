// Package repository implements identity key persistence: published public keys
// in PostgreSQL or MySQL and the sealed local private key in a blob bucket.
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

// PostgreSQLPublicKeyRepository manages user_public_keys.
type PostgreSQLPublicKeyRepository struct {
	db *sql.DB
}

// Upsert publishes a user's public key, replacing any previous one.
func (p *PostgreSQLPublicKeyRepository) Upsert(ctx context.Context, key *identityDomain.PublicKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO user_public_keys (user_id, public_key, fingerprint, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id) DO UPDATE SET
				public_key = EXCLUDED.public_key,
				fingerprint = EXCLUDED.fingerprint,
				updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(ctx, query, key.UserID, key.JWK, key.Fingerprint, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert public key")
	}
	return nil
}

// Get returns the published key of userID or ErrPublicKeyNotFound.
func (p *PostgreSQLPublicKeyRepository) Get(ctx context.Context, userID uuid.UUID) (*identityDomain.PublicKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT user_id, public_key, fingerprint, created_at, updated_at
			  FROM user_public_keys WHERE user_id = $1`

	var key identityDomain.PublicKey
	err := querier.QueryRowContext(ctx, query, userID).Scan(
		&key.UserID,
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
	return &key, nil
}

// NewPostgreSQLPublicKeyRepository creates a new PostgreSQLPublicKeyRepository.
func NewPostgreSQLPublicKeyRepository(db *sql.DB) *PostgreSQLPublicKeyRepository {
	return &PostgreSQLPublicKeyRepository{db: db}
}
