package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	identityUseCase "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/usecase"
)

// RunCreateIdentityKey generates the local identity key pair, stores the sealed
// private key and publishes the public key. Refuses to replace an existing key
// unless overwrite is set.
//
// Requirements: Database must be migrated, IDENTITY_USER_ID and KMS_KEY_URI must be set.
func RunCreateIdentityKey(
	ctx context.Context,
	useCase identityUseCase.IdentityUseCase,
	logger *slog.Logger,
	writer io.Writer,
	overwrite bool,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("creating identity key", slog.Bool("overwrite", overwrite))

	publicKey, err := useCase.CreateIdentityKey(ctx, overwrite)
	if err != nil {
		return fmt.Errorf("failed to create identity key: %w", err)
	}

	if format == "json" {
		return writeJSON(writer, map[string]any{
			"user_id":     publicKey.UserID.String(),
			"fingerprint": publicKey.Fingerprint,
			"public_key":  publicKey.JWK,
		})
	}

	_, err = fmt.Fprintf(writer,
		"Identity key created for user %s\nFingerprint: %s\n",
		publicKey.UserID, publicKey.Fingerprint,
	)
	return err
}
