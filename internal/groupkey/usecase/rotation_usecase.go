package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	cryptoService "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/service"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/database"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// rotationUseCase implements the RotationUseCase interface.
type rotationUseCase struct {
	txManager      database.TxManager
	versionRepo    VersionRepository
	membershipRepo MembershipRepository
	keyGenerator   cryptoService.KeyGenerator
	identity       IdentityKeyService
	distribution   DistributionUseCase
	keyAccess      KeyAccessUseCase
	logger         *slog.Logger
}

// RotateGroupKey creates the next key version of a conversation and hands it to
// every member active right now. Earlier versions are left untouched, so
// departed members keep their history and never receive the new key.
//
// The distributor identity and the membership are resolved before the version
// is claimed, and no key exists until the claim succeeds. A version whose
// fan-out fails entirely has no wrapped copies and is never reported as current.
func (s *rotationUseCase) RotateGroupKey(
	ctx context.Context,
	conversationID uuid.UUID,
) (*groupkeyDomain.RotationResult, error) {
	// The distributor must be able to send before a version is claimed.
	privateKey, err := s.identity.GetOwnPrivateKey(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := cryptoService.Fingerprint(privateKey); err != nil {
		return nil, err
	}

	members, err := s.membershipRepo.GetActiveMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// A lost race aborts before any key is generated.
	var version uint
	err = s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		version, err = s.versionRepo.BumpConversationKeyVersion(txCtx, conversationID, s.identity.CurrentUserID())
		return err
	})
	if err != nil {
		return nil, err
	}

	groupKey, err := s.keyGenerator.GenerateGroupKey()
	if err != nil {
		return nil, err
	}
	defer groupKey.Destroy()

	outcome, distErr := s.distribution.DistributeGroupKey(ctx, &groupkeyDomain.DistributeInput{
		ConversationID: conversationID,
		KeyVersion:     version,
		GroupKey:       groupKey,
		Members:        members,
	})
	if distErr != nil && outcome == nil {
		s.logger.Error("group key version claimed but not distributed",
			slog.String("conversation_id", conversationID.String()),
			slog.Uint64("key_version", uint64(version)),
			slog.Any("error", distErr),
		)
		return nil, distErr
	}

	if err := s.keyAccess.SeedCache(conversationID, version, groupKey); err != nil {
		s.logger.Warn("failed to cache rotated group key",
			slog.String("conversation_id", conversationID.String()),
			slog.Any("error", err),
		)
	}

	s.logger.Info("rotated group key",
		slog.String("conversation_id", conversationID.String()),
		slog.Uint64("key_version", uint64(version)),
		slog.Int("delivered", len(outcome.Delivered)),
		slog.Int("pending", len(outcome.Pending)),
	)

	return &groupkeyDomain.RotationResult{
		ConversationID: conversationID,
		Version:        version,
		Outcome:        outcome,
	}, distErr
}

// NewRotationUseCase creates a RotationUseCase.
func NewRotationUseCase(
	txManager database.TxManager,
	versionRepo VersionRepository,
	membershipRepo MembershipRepository,
	keyGenerator cryptoService.KeyGenerator,
	identity IdentityKeyService,
	distribution DistributionUseCase,
	keyAccess KeyAccessUseCase,
	logger *slog.Logger,
) RotationUseCase {
	return &rotationUseCase{
		txManager:      txManager,
		versionRepo:    versionRepo,
		membershipRepo: membershipRepo,
		keyGenerator:   keyGenerator,
		identity:       identity,
		distribution:   distribution,
		keyAccess:      keyAccess,
		logger:         logger,
	}
}
