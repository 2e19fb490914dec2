package wallet

import (
	"context"
	"testing"
	"time"

	"spliton/internal/domain"
	"spliton/internal/ton"
	"spliton/pkg/errors"
	"spliton/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindByUserID(ctx context.Context, userID string) (*domain.WalletLink, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletLink), args.Error(1)
}

func (m *MockRepository) Upsert(ctx context.Context, link *domain.WalletLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	if args.Error(0) == nil {
		if s, ok := dest.(*string); ok {
			*s = args.String(1)
		}
	}
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Tests

func TestResolveAddressFromRepository(t *testing.T) {
	mockRepo := new(MockRepository)
	addr := ton.AddressFromSeed("alice")
	mockRepo.On("FindByUserID", mock.Anything, "alice").Return(&domain.WalletLink{
		UserID:  "alice",
		Address: addr.String(),
	}, nil)

	directory := NewDirectory(mockRepo, nil, logger.NewNop())

	resolved, err := directory.ResolveAddress(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, addr, resolved)
}

func TestResolveAddressCacheHit(t *testing.T) {
	mockRepo := new(MockRepository)
	mockCache := new(MockCache)
	addr := ton.AddressFromSeed("alice")

	mockCache.On("Get", mock.Anything, "wallet:addr:alice", mock.Anything).Return(nil, addr.String())

	directory := NewDirectory(mockRepo, mockCache, logger.NewNop())

	resolved, err := directory.ResolveAddress(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, addr, resolved)
	mockRepo.AssertNotCalled(t, "FindByUserID")
}

func TestResolveAddressCacheMissFallsThrough(t *testing.T) {
	mockRepo := new(MockRepository)
	mockCache := new(MockCache)
	addr := ton.AddressFromSeed("alice")

	mockCache.On("Get", mock.Anything, "wallet:addr:alice", mock.Anything).Return(errors.ErrWalletNotFound, "")
	mockRepo.On("FindByUserID", mock.Anything, "alice").Return(&domain.WalletLink{
		UserID:  "alice",
		Address: addr.String(),
	}, nil)
	mockCache.On("Set", mock.Anything, "wallet:addr:alice", addr.String(), cacheTTL).Return(nil)

	directory := NewDirectory(mockRepo, mockCache, logger.NewNop())

	resolved, err := directory.ResolveAddress(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, addr, resolved)
	mockCache.AssertExpectations(t)
}

func TestResolveAddressUnlinkedUser(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("FindByUserID", mock.Anything, "ghost").Return(nil, errors.ErrWalletNotFound)

	directory := NewDirectory(mockRepo, nil, logger.NewNop())

	_, err := directory.ResolveAddress(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ErrAddressNotResolved)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveAddressCorruptStoredAddress(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("FindByUserID", mock.Anything, "alice").Return(&domain.WalletLink{
		UserID:  "alice",
		Address: "not-an-address",
	}, nil)

	directory := NewDirectory(mockRepo, nil, logger.NewNop())

	_, err := directory.ResolveAddress(context.Background(), "alice")
	assert.ErrorIs(t, err, errors.ErrInvalidAddress)
}

func TestLinkAddress(t *testing.T) {
	mockRepo := new(MockRepository)
	mockCache := new(MockCache)
	addr := ton.AddressFromSeed("alice")

	mockRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(link *domain.WalletLink) bool {
		return link.UserID == "alice" && link.Address == addr.String()
	})).Return(nil)
	mockCache.On("Delete", mock.Anything, "wallet:addr:alice").Return(nil)

	directory := NewDirectory(mockRepo, mockCache, logger.NewNop())

	err := directory.LinkAddress(context.Background(), "alice", addr.String())
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestLinkAddressRejectsMalformed(t *testing.T) {
	mockRepo := new(MockRepository)
	directory := NewDirectory(mockRepo, nil, logger.NewNop())

	err := directory.LinkAddress(context.Background(), "alice", "0:short")
	assert.ErrorIs(t, err, errors.ErrInvalidAddress)
	mockRepo.AssertNotCalled(t, "Upsert")
}
