// Package mocks provides mock implementations of the group key use cases for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/crypto/domain"
	groupkeyDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/groupkey/domain"
)

// MockDistributionUseCase is a mock implementation of DistributionUseCase.
type MockDistributionUseCase struct {
	mock.Mock
}

// DistributeGroupKey mocks the DistributeGroupKey method of DistributionUseCase.
func (m *MockDistributionUseCase) DistributeGroupKey(
	ctx context.Context,
	input *groupkeyDomain.DistributeInput,
) (*groupkeyDomain.DistributionOutcome, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupkeyDomain.DistributionOutcome), args.Error(1)
}

// RetryPending mocks the RetryPending method of DistributionUseCase.
func (m *MockDistributionUseCase) RetryPending(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*groupkeyDomain.DistributionOutcome, error) {
	args := m.Called(ctx, conversationID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupkeyDomain.DistributionOutcome), args.Error(1)
}

// MockRotationUseCase is a mock implementation of RotationUseCase.
type MockRotationUseCase struct {
	mock.Mock
}

// RotateGroupKey mocks the RotateGroupKey method of RotationUseCase.
func (m *MockRotationUseCase) RotateGroupKey(
	ctx context.Context,
	conversationID uuid.UUID,
) (*groupkeyDomain.RotationResult, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupkeyDomain.RotationResult), args.Error(1)
}

// MockKeyAccessUseCase is a mock implementation of KeyAccessUseCase.
type MockKeyAccessUseCase struct {
	mock.Mock
}

// GetGroupKeyForConversation mocks the GetGroupKeyForConversation method of KeyAccessUseCase.
func (m *MockKeyAccessUseCase) GetGroupKeyForConversation(
	ctx context.Context,
	conversationID uuid.UUID,
	version uint,
) (*cryptoDomain.GroupKey, error) {
	args := m.Called(ctx, conversationID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.GroupKey), args.Error(1)
}

// GetCurrentGroupKey mocks the GetCurrentGroupKey method of KeyAccessUseCase.
func (m *MockKeyAccessUseCase) GetCurrentGroupKey(
	ctx context.Context,
	conversationID uuid.UUID,
) (uint, *cryptoDomain.GroupKey, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(1) == nil {
		return args.Get(0).(uint), nil, args.Error(2)
	}
	return args.Get(0).(uint), args.Get(1).(*cryptoDomain.GroupKey), args.Error(2)
}

// SeedCache mocks the SeedCache method of KeyAccessUseCase.
func (m *MockKeyAccessUseCase) SeedCache(conversationID uuid.UUID, version uint, key *cryptoDomain.GroupKey) error {
	args := m.Called(conversationID, version, key)
	return args.Error(0)
}

// ClearCache mocks the ClearCache method of KeyAccessUseCase.
func (m *MockKeyAccessUseCase) ClearCache() {
	m.Called()
}
