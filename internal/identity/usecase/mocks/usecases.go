// Package mocks provides mock implementations of the identity use case for testing.
package mocks

import (
	"context"
	"crypto/ecdsa"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	identityDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/domain"
)

// MockIdentityUseCase is a mock implementation of IdentityUseCase.
type MockIdentityUseCase struct {
	mock.Mock
}

// CurrentUserID mocks the CurrentUserID method of IdentityUseCase.
func (m *MockIdentityUseCase) CurrentUserID() uuid.UUID {
	args := m.Called()
	return args.Get(0).(uuid.UUID)
}

// GetOwnPrivateKey mocks the GetOwnPrivateKey method of IdentityUseCase.
func (m *MockIdentityUseCase) GetOwnPrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ecdsa.PrivateKey), args.Error(1)
}

// GetUserPublicKey mocks the GetUserPublicKey method of IdentityUseCase.
func (m *MockIdentityUseCase) GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// CreateIdentityKey mocks the CreateIdentityKey method of IdentityUseCase.
func (m *MockIdentityUseCase) CreateIdentityKey(
	ctx context.Context,
	overwrite bool,
) (*identityDomain.PublicKey, error) {
	args := m.Called(ctx, overwrite)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityDomain.PublicKey), args.Error(1)
}
