package custody

import (
	"context"
	"testing"

	"stokvel/internal/domain"
	"stokvel/pkg/errors"
	"stokvel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Vault(ctx context.Context) (*domain.Vault, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vault), args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, amount decimal.Decimal, ref string) error {
	args := m.Called(ctx, amount, ref)
	return args.Error(0)
}

func (m *MockRepository) Debit(ctx context.Context, amount decimal.Decimal, ref string) error {
	args := m.Called(ctx, amount, ref)
	return args.Error(0)
}

func (m *MockRepository) Deploy(ctx context.Context, amount decimal.Decimal, ref string) error {
	args := m.Called(ctx, amount, ref)
	return args.Error(0)
}

func (m *MockRepository) Collect(ctx context.Context, principal, proceeds decimal.Decimal, ref string) error {
	args := m.Called(ctx, principal, proceeds, ref)
	return args.Error(0)
}

func (m *MockRepository) PayFee(ctx context.Context, amount decimal.Decimal, ref string) error {
	args := m.Called(ctx, amount, ref)
	return args.Error(0)
}

func (m *MockRepository) Movements(ctx context.Context, limit, offset int) ([]domain.VaultMovement, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VaultMovement), args.Error(1)
}

// --- Tests ---

func TestTransferIn_RejectsNonPositive(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, logger.NewNop())

	err := svc.TransferIn(context.Background(), uuid.New(), decimal.Zero)

	assert.ErrorIs(t, err, errors.ErrZeroAmount)
	repo.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransferOut_PropagatesInsufficiency(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, logger.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	repo.On("Debit", ctx, mock.Anything, "withdraw:"+userID.String()).Return(errors.ErrInsufficientBalance)

	err := svc.TransferOut(ctx, userID, decimal.NewFromInt(500))

	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
}

func TestCollect_BooksPrincipalAndProceeds(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, logger.NewNop())
	ctx := context.Background()

	principal := decimal.NewFromInt(2000)
	proceeds := decimal.NewFromInt(2150)
	repo.On("Collect", ctx, principal, proceeds, "round:7").Return(nil)

	err := svc.Collect(ctx, 7, principal, proceeds)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestLiquidBalance_ReadsVault(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, logger.NewNop())
	ctx := context.Background()

	repo.On("Vault", ctx).Return(&domain.Vault{
		Liquid:   decimal.NewFromInt(12_345),
		Deployed: decimal.NewFromInt(8000),
	}, nil)

	liquid, err := svc.LiquidBalance(ctx)

	require.NoError(t, err)
	assert.Equal(t, "12345", liquid.String())
}

func TestMovements_ClampsPagination(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, logger.NewNop())
	ctx := context.Background()

	repo.On("Movements", ctx, 50, 0).Return([]domain.VaultMovement{}, nil)

	_, err := svc.Movements(ctx, -3, -10)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}
