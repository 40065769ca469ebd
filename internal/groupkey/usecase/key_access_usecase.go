package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	cryptoService "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/service"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// keyAccessUseCase implements the KeyAccessUseCase interface.
type keyAccessUseCase struct {
	identity    IdentityKeyService
	transport   cryptoService.KeyTransport
	wrappedRepo WrappedKeyRepository
	versionRepo VersionRepository
	pendingRepo PendingRepository
	cache       *groupkeyDomain.KeyCache
	inflight    singleflight.Group
	logger      *slog.Logger
}

// GetGroupKeyForConversation returns the caller's copy of one key version,
// from the cache when possible. Concurrent misses for the same version share
// a single fetch and unwrap. The returned key is the caller's to destroy.
func (s *keyAccessUseCase) GetGroupKeyForConversation(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*cryptoDomain.GroupKey, error) {
	if key, ok := s.cache.Get(conversationID, version); ok {
		return key, nil
	}

	// The shared fetch is detached from ctx; a caller that gives up leaves it
	// running for the others and for the cache write.
	flightKey := fmt.Sprintf("%s/%d", conversationID, version)
	flight := s.inflight.DoChan(flightKey, func() (any, error) {
		return s.unwrapOwnCopy(context.WithoutCancel(ctx), conversationID, version)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers sharing a flight each get their own copy to destroy.
		return cryptoDomain.NewGroupKey(res.Val.(*cryptoDomain.GroupKey).Bytes())
	}
}

// GetCurrentGroupKey returns the latest delivered version of the conversation
// together with its key.
func (s *keyAccessUseCase) GetCurrentGroupKey(
	ctx context.Context,
	conversationID uuid.UUID,
) (uint, *cryptoDomain.GroupKey, error) {
	version, err := s.versionRepo.GetCurrentVersion(ctx, conversationID)
	if err != nil {
		return 0, nil, err
	}

	key, err := s.GetGroupKeyForConversation(ctx, conversationID, version)
	if err != nil {
		return 0, nil, err
	}
	return version, key, nil
}

// SeedCache stores a key the caller generated itself.
func (s *keyAccessUseCase) SeedCache(conversationID uuid.UUID, version uint, key *cryptoDomain.GroupKey) error {
	return s.cache.Put(conversationID, version, key)
}

// ClearCache zeroes and drops every cached key.
func (s *keyAccessUseCase) ClearCache() {
	s.cache.Clear()
	s.logger.Debug("group key cache cleared")
}

// unwrapOwnCopy reads the caller's wrapped copy, unwraps it and caches the result.
func (s *keyAccessUseCase) unwrapOwnCopy(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*cryptoDomain.GroupKey, error) {
	record, err := s.wrappedRepo.Get(ctx, conversationID, version, s.identity.CurrentUserID())
	if err != nil {
		if errors.Is(err, groupkeyDomain.ErrWrappedKeyNotFound) {
			return nil, groupkeyDomain.ErrNoKeyAccess
		}
		return nil, err
	}

	privateKey, err := s.identity.GetOwnPrivateKey(ctx)
	if err != nil {
		return nil, err
	}

	if record.RecipientKeyFingerprint != "" {
		own, err := cryptoService.Fingerprint(privateKey)
		if err != nil {
			return nil, err
		}
		if own != record.RecipientKeyFingerprint {
			s.requestRedistribution(ctx, record)
			return nil, groupkeyDomain.ErrRecipientKeyRotated
		}
	}

	key, err := s.transport.DecryptGroupKey(
		record.Ciphertext,
		record.SenderPublicKey,
		privateKey,
		record.Algorithm,
	)
	if err != nil {
		s.logger.Warn("failed to unwrap group key",
			slog.String("conversation_id", conversationID.String()),
			slog.Uint64("key_version", uint64(version)),
			slog.String("sender_id", record.SenderUserID.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	if err := s.cache.Put(conversationID, version, key); err != nil {
		return nil, err
	}
	return key, nil
}

// requestRedistribution leaves a pending entry for the caller under the
// record's distributor, whose worker then re-wraps the version for the
// caller's current identity key. Failures are logged, never returned.
func (s *keyAccessUseCase) requestRedistribution(ctx context.Context, record *groupkeyDomain.WrappedKeyRecord) {
	userID := s.identity.CurrentUserID()
	logAttrs := []any{
		slog.String("conversation_id", record.ConversationID.String()),
		slog.Uint64("key_version", uint64(record.KeyVersion)),
		slog.String("distributor_id", record.SenderUserID.String()),
	}

	pending, err := s.pendingRepo.List(ctx, record.ConversationID, record.KeyVersion)
	if err != nil {
		s.logger.Warn("failed to check pending redistribution", append(logAttrs, slog.Any("error", err))...)
		return
	}
	for _, p := range pending {
		if p.UserID == userID {
			return
		}
	}

	now := time.Now().UTC()
	entry := groupkeyDomain.PendingMember{
		ConversationID: record.ConversationID,
		KeyVersion:     record.KeyVersion,
		UserID:         userID,
		DistributorID:  record.SenderUserID,
		Reason:         groupkeyDomain.PendingPublicKeyRotated,
		Attempts:       1,
		LastError:      groupkeyDomain.ErrRecipientKeyRotated.Error(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.pendingRepo.Save(ctx, []groupkeyDomain.PendingMember{entry}); err != nil {
		s.logger.Warn("failed to request redistribution", append(logAttrs, slog.Any("error", err))...)
		return
	}
	s.logger.Info("requested redistribution for replaced identity key", logAttrs...)
}

// NewKeyAccessUseCase creates a KeyAccessUseCase that owns cache. pendingRepo
// receives redistribution requests for copies wrapped to a replaced identity key.
func NewKeyAccessUseCase(
	identity IdentityKeyService,
	transport cryptoService.KeyTransport,
	wrappedRepo WrappedKeyRepository,
	versionRepo VersionRepository,
	pendingRepo PendingRepository,
	cache *groupkeyDomain.KeyCache,
	logger *slog.Logger,
) KeyAccessUseCase {
	return &keyAccessUseCase{
		identity:    identity,
		transport:   transport,
		wrappedRepo: wrappedRepo,
		versionRepo: versionRepo,
		pendingRepo: pendingRepo,
		cache:       cache,
		logger:      logger,
	}
}
