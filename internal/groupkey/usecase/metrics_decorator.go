package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
	"github.com/TortoiseWolfe/SpokeToWork-sub001/internal/metrics"
)

const metricsDomain = "groupkeys"

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func record(ctx context.Context, m metrics.BusinessMetrics, operation string, start time.Time, err error) {
	status := statusOf(err)
	m.RecordOperation(ctx, metricsDomain, operation, status)
	m.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

// distributionUseCaseWithMetrics decorates DistributionUseCase with metrics instrumentation.
type distributionUseCaseWithMetrics struct {
	next    DistributionUseCase
	metrics metrics.BusinessMetrics
}

// NewDistributionUseCaseWithMetrics wraps a DistributionUseCase with metrics recording.
func NewDistributionUseCaseWithMetrics(useCase DistributionUseCase, m metrics.BusinessMetrics) DistributionUseCase {
	return &distributionUseCaseWithMetrics{next: useCase, metrics: m}
}

// DistributeGroupKey records metrics for group key distribution operations.
func (d *distributionUseCaseWithMetrics) DistributeGroupKey(
	ctx context.Context,
	input *groupkeyDomain.DistributeInput,
) (*groupkeyDomain.DistributionOutcome, error) {
	start := time.Now()
	outcome, err := d.next.DistributeGroupKey(ctx, input)
	record(ctx, d.metrics, "key_distribute", start, err)
	if outcome != nil {
		d.recordMembers(ctx, outcome)
	}
	return outcome, err
}

// RetryPending records metrics for pending member retries.
func (d *distributionUseCaseWithMetrics) RetryPending(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*groupkeyDomain.DistributionOutcome, error) {
	start := time.Now()
	outcome, err := d.next.RetryPending(ctx, conversationID, version)
	record(ctx, d.metrics, "key_retry_pending", start, err)
	if outcome != nil {
		d.recordMembers(ctx, outcome)
	}
	return outcome, err
}

// recordMembers counts members per result so dashboards can track pending backlog.
func (d *distributionUseCaseWithMetrics) recordMembers(ctx context.Context, outcome *groupkeyDomain.DistributionOutcome) {
	for range outcome.Delivered {
		d.metrics.RecordOperation(ctx, metricsDomain, "member_wrap", "delivered")
	}
	for _, p := range outcome.Pending {
		d.metrics.RecordOperation(ctx, metricsDomain, "member_wrap", string(p.Reason))
	}
}

// rotationUseCaseWithMetrics decorates RotationUseCase with metrics instrumentation.
type rotationUseCaseWithMetrics struct {
	next    RotationUseCase
	metrics metrics.BusinessMetrics
}

// NewRotationUseCaseWithMetrics wraps a RotationUseCase with metrics recording.
func NewRotationUseCaseWithMetrics(useCase RotationUseCase, m metrics.BusinessMetrics) RotationUseCase {
	return &rotationUseCaseWithMetrics{next: useCase, metrics: m}
}

// RotateGroupKey records metrics for group key rotations.
func (r *rotationUseCaseWithMetrics) RotateGroupKey(
	ctx context.Context,
	conversationID uuid.UUID,
) (*groupkeyDomain.RotationResult, error) {
	start := time.Now()
	result, err := r.next.RotateGroupKey(ctx, conversationID)
	record(ctx, r.metrics, "key_rotate", start, err)
	return result, err
}

// keyAccessUseCaseWithMetrics decorates KeyAccessUseCase with metrics instrumentation.
type keyAccessUseCaseWithMetrics struct {
	next    KeyAccessUseCase
	metrics metrics.BusinessMetrics
}

// NewKeyAccessUseCaseWithMetrics wraps a KeyAccessUseCase with metrics recording.
func NewKeyAccessUseCaseWithMetrics(useCase KeyAccessUseCase, m metrics.BusinessMetrics) KeyAccessUseCase {
	return &keyAccessUseCaseWithMetrics{next: useCase, metrics: m}
}

// GetGroupKeyForConversation records metrics for versioned group key reads.
func (k *keyAccessUseCaseWithMetrics) GetGroupKeyForConversation(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*cryptoDomain.GroupKey, error) {
	start := time.Now()
	key, err := k.next.GetGroupKeyForConversation(ctx, conversationID, version)
	record(ctx, k.metrics, "key_get", start, err)
	return key, err
}

// GetCurrentGroupKey records metrics for current group key reads.
func (k *keyAccessUseCaseWithMetrics) GetCurrentGroupKey(
	ctx context.Context,
	conversationID uuid.UUID,
) (uint, *cryptoDomain.GroupKey, error) {
	start := time.Now()
	version, key, err := k.next.GetCurrentGroupKey(ctx, conversationID)
	record(ctx, k.metrics, "key_get_current", start, err)
	return version, key, err
}

// SeedCache forwards to the wrapped use case.
func (k *keyAccessUseCaseWithMetrics) SeedCache(
	conversationID uuid.UUID,
	version uint,
	key *cryptoDomain.GroupKey,
) error {
	return k.next.SeedCache(conversationID, version, key)
}

// ClearCache forwards to the wrapped use case.
func (k *keyAccessUseCaseWithMetrics) ClearCache() {
	k.next.ClearCache()
	k.metrics.RecordOperation(context.Background(), metricsDomain, "cache_clear", "success")
}
