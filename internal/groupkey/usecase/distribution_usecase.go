package usecase

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	cryptoService "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/service"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// DistributionConfig holds distribution tuning.
type DistributionConfig struct {
	// BatchSize is the number of members per chunk. Chunks run one after another.
	BatchSize int
	// Concurrency caps the members processed at once inside a chunk.
	Concurrency int
	// WritesPerSec throttles record writes; zero disables throttling.
	WritesPerSec float64
	// Algorithm is the AEAD new wraps are made with.
	Algorithm cryptoDomain.Algorithm
}

// distributionUseCase implements the DistributionUseCase interface.
type distributionUseCase struct {
	config         DistributionConfig
	identity       IdentityKeyService
	transport      cryptoService.KeyTransport
	wrappedRepo    WrappedKeyRepository
	membershipRepo MembershipRepository
	pendingRepo    PendingRepository
	keyAccess      KeyAccessUseCase
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// sender is the distributor's identity, resolved once per pass.
type sender struct {
	userID      uuid.UUID
	privateKey  *ecdsa.PrivateKey
	publicJWK   string
	fingerprint string
}

// memberResult is the per-member result of a distribution pass.
type memberResult struct {
	delivered bool
	reason    groupkeyDomain.PendingReason
	lastError string
}

// DistributeGroupKey wraps the key for each active member in chunks of
// BatchSize. Members that cannot be served come back as pending and are
// recorded for the distributor's worker.
func (s *distributionUseCase) DistributeGroupKey(
	ctx context.Context,
	input *groupkeyDomain.DistributeInput,
) (*groupkeyDomain.DistributionOutcome, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	targets := groupkeyDomain.ActiveMembers(input.Members)
	outcome, err := s.distribute(ctx, input.ConversationID, input.KeyVersion, input.GroupKey, targets, nil)
	if err != nil {
		return nil, err
	}

	if err := s.savePending(ctx, outcome); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// RetryPending re-sends a version to its recorded pending members. The group
// key is recovered from the caller's own copy, so only a member who holds the
// version can retry it. Members who left since are dropped without a wrap.
func (s *distributionUseCase) RetryPending(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*groupkeyDomain.DistributionOutcome, error) {
	pending, err := s.pendingRepo.List(ctx, conversationID, version)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return emptyOutcome(), nil
	}

	groupKey, err := s.keyAccess.GetGroupKeyForConversation(ctx, conversationID, version)
	if err != nil {
		return nil, fmt.Errorf("recover group key for retry: %w", err)
	}
	defer groupKey.Destroy()

	members, err := s.membershipRepo.GetActiveMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	active := make(map[uuid.UUID]groupkeyDomain.Member, len(members))
	for _, m := range groupkeyDomain.ActiveMembers(members) {
		active[m.UserID] = m
	}

	// Members who left since the first attempt are dropped, never sent.
	previous := make(map[uuid.UUID]groupkeyDomain.PendingMember, len(pending))
	targets := make([]groupkeyDomain.Member, 0, len(pending))
	var dropped []uuid.UUID
	for _, p := range pending {
		m, ok := active[p.UserID]
		if !ok {
			dropped = append(dropped, p.UserID)
			continue
		}
		previous[p.UserID] = p
		targets = append(targets, m)
	}

	outcome, err := s.distribute(ctx, conversationID, version, groupKey, targets, previous)
	if err != nil {
		return nil, err
	}

	if resolved := append(dropped, outcome.Delivered...); len(resolved) > 0 {
		if err := s.pendingRepo.Remove(ctx, conversationID, version, resolved); err != nil {
			return nil, err
		}
	}
	saveErr := s.savePending(ctx, outcome)

	s.logger.Info("retried pending distribution",
		slog.String("conversation_id", conversationID.String()),
		slog.Uint64("key_version", uint64(version)),
		slog.Int("delivered", len(outcome.Delivered)),
		slog.Int("pending", len(outcome.Pending)),
		slog.Int("dropped", len(dropped)),
	)

	return outcome, saveErr
}

// savePending records the outcome's pending members for a later retry.
func (s *distributionUseCase) savePending(ctx context.Context, outcome *groupkeyDomain.DistributionOutcome) error {
	if len(outcome.Pending) == 0 {
		return nil
	}
	if err := s.pendingRepo.Save(ctx, outcome.Pending); err != nil {
		first := outcome.Pending[0]
		s.logger.Error("failed to record pending members",
			slog.String("conversation_id", first.ConversationID.String()),
			slog.Uint64("key_version", uint64(first.KeyVersion)),
			slog.Int("pending", len(outcome.Pending)),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", groupkeyDomain.ErrPendingNotRecorded, err)
	}
	return nil
}

// distribute wraps groupKey for every target and reports who was served.
// previous carries earlier pending entries so attempts keep counting.
func (s *distributionUseCase) distribute(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	groupKey *cryptoDomain.GroupKey,
	targets []groupkeyDomain.Member,
	previous map[uuid.UUID]groupkeyDomain.PendingMember,
) (*groupkeyDomain.DistributionOutcome, error) {
	if len(targets) == 0 {
		return emptyOutcome(), nil
	}

	from, err := s.resolveSender(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]memberResult, len(targets))
	for start := 0; start < len(targets); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(targets))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := s.deliver(gctx, conversationID, version, groupKey, from, targets[i].UserID)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	outcome := emptyOutcome()
	for i, res := range results {
		userID := targets[i].UserID
		if res.delivered {
			outcome.Delivered = append(outcome.Delivered, userID)
			continue
		}

		p := groupkeyDomain.PendingMember{
			ConversationID: conversationID,
			KeyVersion:     version,
			UserID:         userID,
			DistributorID:  from.userID,
			Reason:         res.reason,
			Attempts:       1,
			LastError:      res.lastError,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if prev, ok := previous[userID]; ok {
			p.Attempts = prev.Attempts + 1
			p.CreatedAt = prev.CreatedAt
		}
		outcome.Pending = append(outcome.Pending, p)
	}

	s.logger.Debug("distributed group key",
		slog.String("conversation_id", conversationID.String()),
		slog.Uint64("key_version", uint64(version)),
		slog.Int("delivered", len(outcome.Delivered)),
		slog.Int("pending", len(outcome.Pending)),
	)

	return outcome, nil
}

// deliver serves one member. Per-member problems come back as a pending result;
// only failures that doom the whole pass are returned as errors.
func (s *distributionUseCase) deliver(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
	groupKey *cryptoDomain.GroupKey,
	from *sender,
	recipientID uuid.UUID,
) (memberResult, error) {
	if err := ctx.Err(); err != nil {
		return memberResult{}, err
	}

	publicKey, err := s.identity.GetUserPublicKey(ctx, recipientID)
	if err != nil {
		if errors.Is(err, groupkeyDomain.ErrPublicKeyNotFound) {
			return pendingResult(groupkeyDomain.PendingPublicKeyMissing, err), nil
		}
		if ctx.Err() != nil {
			return memberResult{}, ctx.Err()
		}
		return pendingResult(groupkeyDomain.PendingLookupFailed, err), nil
	}

	_, recipientFingerprint, err := cryptoService.ParsePublicJWK(publicKey)
	if err != nil {
		return pendingResult(groupkeyDomain.PendingPublicKeyInvalid, err), nil
	}

	wrapped, err := s.transport.EncryptGroupKeyForMember(groupKey, publicKey, from.privateKey, s.config.Algorithm)
	if err != nil {
		if errors.Is(err, cryptoDomain.ErrInvalidPublicKey) || errors.Is(err, cryptoDomain.ErrCurveMismatch) {
			return pendingResult(groupkeyDomain.PendingPublicKeyInvalid, err), nil
		}
		return memberResult{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return memberResult{}, err
		}
	}

	record := &groupkeyDomain.WrappedKeyRecord{
		ID:                      uuid.Must(uuid.NewV7()),
		ConversationID:          conversationID,
		KeyVersion:              version,
		RecipientUserID:         recipientID,
		Ciphertext:              wrapped,
		SenderUserID:            from.userID,
		SenderPublicKey:         from.publicJWK,
		SenderKeyFingerprint:    from.fingerprint,
		RecipientKeyFingerprint: recipientFingerprint,
		Algorithm:               s.config.Algorithm,
		CreatedAt:               time.Now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return memberResult{}, err
	}

	if err := s.wrappedRepo.Create(ctx, record); err != nil {
		if errors.Is(err, groupkeyDomain.ErrWrappedKeyExists) {
			return s.reconcileExisting(ctx, record)
		}
		if ctx.Err() != nil {
			return memberResult{}, ctx.Err()
		}
		return pendingResult(groupkeyDomain.PendingPersistFailed, err), nil
	}

	return memberResult{delivered: true}, nil
}

// reconcileExisting handles a member who already holds a copy of the version.
// A copy wrapped for the member's current identity key serves them as is. A copy
// wrapped for a key they replaced can no longer be opened and is superseded.
func (s *distributionUseCase) reconcileExisting(
	ctx context.Context,
	record *groupkeyDomain.WrappedKeyRecord,
) (memberResult, error) {
	existing, err := s.wrappedRepo.Get(ctx, record.ConversationID, record.KeyVersion, record.RecipientUserID)
	if err != nil {
		if ctx.Err() != nil {
			return memberResult{}, ctx.Err()
		}
		return pendingResult(groupkeyDomain.PendingPersistFailed, err), nil
	}
	if existing.RecipientKeyFingerprint == "" || existing.RecipientKeyFingerprint == record.RecipientKeyFingerprint {
		return memberResult{delivered: true}, nil
	}

	err = s.wrappedRepo.Supersede(ctx, record, existing.RecipientKeyFingerprint)
	switch {
	case err == nil:
		s.logger.Info("superseded group key copy of replaced identity key",
			slog.String("conversation_id", record.ConversationID.String()),
			slog.Uint64("key_version", uint64(record.KeyVersion)),
			slog.String("user_id", record.RecipientUserID.String()),
		)
		return memberResult{delivered: true}, nil
	case errors.Is(err, groupkeyDomain.ErrWrappedKeyNotFound):
		// A concurrent distributor superseded it first.
		return memberResult{delivered: true}, nil
	case ctx.Err() != nil:
		return memberResult{}, ctx.Err()
	default:
		return pendingResult(groupkeyDomain.PendingPersistFailed, err), nil
	}
}

func (s *distributionUseCase) resolveSender(ctx context.Context) (*sender, error) {
	privateKey, err := s.identity.GetOwnPrivateKey(ctx)
	if err != nil {
		return nil, err
	}
	publicJWK, err := cryptoService.PublicJWK(privateKey)
	if err != nil {
		return nil, err
	}
	fingerprint, err := cryptoService.Fingerprint(privateKey)
	if err != nil {
		return nil, err
	}
	return &sender{
		userID:      s.identity.CurrentUserID(),
		privateKey:  privateKey,
		publicJWK:   publicJWK,
		fingerprint: fingerprint,
	}, nil
}

func pendingResult(reason groupkeyDomain.PendingReason, err error) memberResult {
	return memberResult{reason: reason, lastError: err.Error()}
}

func emptyOutcome() *groupkeyDomain.DistributionOutcome {
	return &groupkeyDomain.DistributionOutcome{
		Delivered: []uuid.UUID{},
		Pending:   []groupkeyDomain.PendingMember{},
	}
}

// NewDistributionUseCase creates a DistributionUseCase.
// Non-positive batch size or concurrency fall back to 25 and 8.
func NewDistributionUseCase(
	config DistributionConfig,
	identity IdentityKeyService,
	transport cryptoService.KeyTransport,
	wrappedRepo WrappedKeyRepository,
	membershipRepo MembershipRepository,
	pendingRepo PendingRepository,
	keyAccess KeyAccessUseCase,
	logger *slog.Logger,
) DistributionUseCase {
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if config.Algorithm == "" {
		config.Algorithm = cryptoDomain.AESGCM
	}

	var limiter *rate.Limiter
	if config.WritesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.WritesPerSec), max(1, config.Concurrency))
	}

	return &distributionUseCase{
		config:         config,
		identity:       identity,
		transport:      transport,
		wrappedRepo:    wrappedRepo,
		membershipRepo: membershipRepo,
		pendingRepo:    pendingRepo,
		keyAccess:      keyAccess,
		limiter:        limiter,
		logger:         logger,
	}
}
