package settlement

import (
	"context"
	"math/big"
	"testing"
	"time"

	"spliton/internal/domain"
	"spliton/internal/ton"
	"spliton/pkg/errors"
	"spliton/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, settlement *domain.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockRepository) Update(ctx context.Context, settlement *domain.Settlement) error {
	args := m.Called(ctx, settlement)
	return args.Error(0)
}

func (m *MockRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settlement), args.Error(1)
}

func (m *MockRepository) FindSubmitted(ctx context.Context) ([]*domain.Settlement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Settlement), args.Error(1)
}

func (m *MockRepository) FindUnreconciled(ctx context.Context) ([]*domain.Settlement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Settlement), args.Error(1)
}

func (m *MockRepository) CreateTransfer(ctx context.Context, transfer *domain.SettlementTransfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockRepository) FindTransfers(ctx context.Context, settlementID uuid.UUID) ([]*domain.SettlementTransfer, error) {
	args := m.Called(ctx, settlementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SettlementTransfer), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) UnsettledDebts(ctx context.Context, groupID string) ([]*domain.Debt, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Debt), args.Error(1)
}

func (m *MockLedger) NetBalances(ctx context.Context, groupID string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockLedger) FindDebt(ctx context.Context, id uuid.UUID) (*domain.Debt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Debt), args.Error(1)
}

func (m *MockLedger) MarkSettled(ctx context.Context, debtID uuid.UUID, txHash string, settledAt time.Time) error {
	args := m.Called(ctx, debtID, txHash, settledAt)
	return args.Error(0)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolveAddress(ctx context.Context, userID string) (ton.Address, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(ton.Address), args.Error(1)
}

type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) SubmitBatch(ctx context.Context, groupID string, recipients map[ton.Address]*big.Int) (string, error) {
	args := m.Called(ctx, groupID, recipients)
	return args.String(0), args.Error(1)
}

func (m *MockConnector) SubmitDirect(ctx context.Context, from, to ton.Address, amount *big.Int, groupID string) (string, error) {
	args := m.Called(ctx, from, to, amount, groupID)
	return args.String(0), args.Error(1)
}

func (m *MockConnector) CheckConfirmation(ctx context.Context, txHash string) (bool, error) {
	args := m.Called(ctx, txHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockConnector) Transactions(ctx context.Context) ([]*ton.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ton.Transaction), args.Error(1)
}

func newTestService(repo *MockRepository, ledger *MockLedger, resolver *MockResolver, connector *MockConnector) *Service {
	return NewService(repo, ledger, resolver, connector, logger.NewNop(), time.Millisecond, 3, 0)
}

func debt(groupID, debtor, creditor string, amount string) *domain.Debt {
	return &domain.Debt{
		ID:         uuid.New(),
		GroupID:    groupID,
		DebtorID:   debtor,
		CreditorID: creditor,
		Amount:     decimal.RequireFromString(amount),
		CreatedAt:  time.Now().UTC(),
	}
}

// Tests

func TestExecutePlanSubmitsBatch(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	aliceAddr := ton.AddressFromSeed("alice")
	debts := []*domain.Debt{
		debt("trip", "bob", "alice", "25"),
		debt("trip", "carol", "alice", "10"),
	}

	mockLedger.On("UnsettledDebts", mock.Anything, "trip").Return(debts, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "alice").Return(aliceAddr, nil)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateTransfer", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("SubmitBatch", mock.Anything, "trip", mock.MatchedBy(func(r map[ton.Address]*big.Int) bool {
		return len(r) == 1 && r[aliceAddr].Cmp(ton.Nano("35")) == 0
	})).Return("tx-abc", nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.Settlement) bool {
		return s.Status == domain.SettlementStatusSubmitted && s.TransactionHash == "tx-abc"
	})).Return(nil)

	// monitorSettlement runs in the background after submission.
	mockConnector.On("CheckConfirmation", mock.Anything, "tx-abc").Return(true, nil)
	mockRepo.On("FindByID", mock.Anything, mock.Anything).Return(&domain.Settlement{
		ID:      uuid.New(),
		Status:  domain.SettlementStatusSubmitted,
		DebtIDs: domain.UUIDList{debts[0].ID, debts[1].ID},
	}, nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.Settlement) bool {
		return s.Status == domain.SettlementStatusConfirmed
	})).Return(nil)
	mockLedger.On("MarkSettled", mock.Anything, mock.Anything, "tx-abc", mock.Anything).Return(nil)

	result, err := service.ExecutePlan(context.Background(), "trip")
	require.NoError(t, err)
	assert.Empty(t, result.Excluded)
	assert.Equal(t, 2, len(result.Plan.Transfers))
	assert.Equal(t, domain.SettlementStatusSubmitted, result.Settlement.Status)
	assert.Equal(t, "tx-abc", result.Settlement.TransactionHash)
	assert.Len(t, result.Settlement.DebtIDs, 2)

	time.Sleep(100 * time.Millisecond)
	mockConnector.AssertExpectations(t)
	mockLedger.AssertExpectations(t)
}

func TestExecutePlanExcludesUnresolvableCreditors(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	aliceAddr := ton.AddressFromSeed("alice")
	resolvable := debt("trip", "bob", "alice", "25")
	orphaned := debt("trip", "carol", "dave", "40")

	mockLedger.On("UnsettledDebts", mock.Anything, "trip").Return([]*domain.Debt{resolvable, orphaned}, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "alice").Return(aliceAddr, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "dave").Return(ton.Address(""), errors.ErrAddressNotResolved)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateTransfer", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("SubmitBatch", mock.Anything, "trip", mock.Anything).Return("tx-1", nil)
	mockRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("CheckConfirmation", mock.Anything, "tx-1").Return(false, nil)

	result, err := service.ExecutePlan(context.Background(), "trip")
	require.NoError(t, err)

	// Dropping a whole debt keeps the remaining balances zero-sum, and the
	// exclusion is reported rather than silently swallowed.
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, orphaned.ID, result.Excluded[0].DebtID)
	assert.Equal(t, "dave", result.Excluded[0].CreditorID)
	assert.Len(t, result.Settlement.DebtIDs, 1)
	assert.Equal(t, resolvable.ID, result.Settlement.DebtIDs[0])
}

func TestExecutePlanRespectsBatchLimit(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := NewService(mockRepo, mockLedger, mockResolver, mockConnector, logger.NewNop(), time.Millisecond, 3, 1)

	aliceAddr := ton.AddressFromSeed("alice")
	first := debt("trip", "bob", "alice", "25")
	second := debt("trip", "carol", "dave", "40")

	mockLedger.On("UnsettledDebts", mock.Anything, "trip").Return([]*domain.Debt{first, second}, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "alice").Return(aliceAddr, nil)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateTransfer", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("SubmitBatch", mock.Anything, "trip", mock.MatchedBy(func(r map[ton.Address]*big.Int) bool {
		return len(r) == 1 && r[aliceAddr].Cmp(ton.Nano("25")) == 0
	})).Return("tx-capped", nil)
	mockRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("CheckConfirmation", mock.Anything, "tx-capped").Return(false, nil)

	result, err := service.ExecutePlan(context.Background(), "trip")
	require.NoError(t, err)

	// Only the first debt made the batch; the second waits for the next run.
	require.Len(t, result.Settlement.DebtIDs, 1)
	assert.Equal(t, first.ID, result.Settlement.DebtIDs[0])
	assert.Empty(t, result.Excluded)
	mockResolver.AssertNotCalled(t, "ResolveAddress", mock.Anything, "dave")
}

func TestExecutePlanEmptyGroup(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	mockLedger.On("UnsettledDebts", mock.Anything, "quiet").Return([]*domain.Debt{}, nil)

	_, err := service.ExecutePlan(context.Background(), "quiet")
	assert.ErrorIs(t, err, errors.ErrEmptyPlan)
	mockConnector.AssertNotCalled(t, "SubmitBatch")
}

func TestExecutePlanSubmissionFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	aliceAddr := ton.AddressFromSeed("alice")
	mockLedger.On("UnsettledDebts", mock.Anything, "trip").Return([]*domain.Debt{
		debt("trip", "bob", "alice", "25"),
	}, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "alice").Return(aliceAddr, nil)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateTransfer", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("SubmitBatch", mock.Anything, "trip", mock.Anything).Return("", errors.ErrInsufficientBalance)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.Settlement) bool {
		return s.Status == domain.SettlementStatusFailed
	})).Return(nil)

	_, err := service.ExecutePlan(context.Background(), "trip")
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
	mockRepo.AssertExpectations(t)
}

func TestExecuteDirect(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	d := debt("trip", "bob", "alice", "12.5")
	bobAddr := ton.AddressFromSeed("bob")
	aliceAddr := ton.AddressFromSeed("alice")

	mockLedger.On("FindDebt", mock.Anything, d.ID).Return(d, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "bob").Return(bobAddr, nil)
	mockResolver.On("ResolveAddress", mock.Anything, "alice").Return(aliceAddr, nil)
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(tr *domain.SettlementTransfer) bool {
		return tr.FromUserID == "bob" && tr.ToUserID == "alice" && tr.ToAddress == aliceAddr.String()
	})).Return(nil)
	mockConnector.On("SubmitDirect", mock.Anything, bobAddr, aliceAddr, ton.Nano("12.5"), "trip").Return("tx-direct", nil)
	mockRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	mockConnector.On("CheckConfirmation", mock.Anything, "tx-direct").Return(false, nil)

	stl, err := service.ExecuteDirect(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusSubmitted, stl.Status)
	assert.Equal(t, 1, stl.TransferCount)

	time.Sleep(100 * time.Millisecond)
	mockConnector.AssertExpectations(t)
}

func TestExecuteDirectAlreadySettled(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	d := debt("trip", "bob", "alice", "5")
	d.Settled = true
	mockLedger.On("FindDebt", mock.Anything, d.ID).Return(d, nil)

	_, err := service.ExecuteDirect(context.Background(), d.ID)
	assert.ErrorIs(t, err, errors.ErrDebtAlreadySettled)
	mockConnector.AssertNotCalled(t, "SubmitDirect")
}

func TestMonitorSettlementRejection(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	settlementID := uuid.New()
	stl := &domain.Settlement{ID: settlementID, Status: domain.SettlementStatusSubmitted}

	mockConnector.On("CheckConfirmation", mock.Anything, "tx-bad").Return(false, errors.ErrContractPaused)
	mockRepo.On("FindByID", mock.Anything, settlementID).Return(stl, nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.Settlement) bool {
		return s.Status == domain.SettlementStatusFailed && s.StatusReason != ""
	})).Return(nil)

	service.monitorSettlement(settlementID, "tx-bad")
	mockRepo.AssertExpectations(t)
	mockLedger.AssertNotCalled(t, "MarkSettled")
}

func TestReconcileSettled(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	debtID := uuid.New()
	stuck := &domain.Settlement{
		ID:              uuid.New(),
		Status:          domain.SettlementStatusSubmitted,
		TransactionHash: "tx-stuck",
		DebtIDs:         domain.UUIDList{debtID},
	}

	mockRepo.On("FindUnreconciled", mock.Anything).Return([]*domain.Settlement{stuck}, nil)
	mockConnector.On("CheckConfirmation", mock.Anything, "tx-stuck").Return(true, nil)
	mockLedger.On("MarkSettled", mock.Anything, debtID, "tx-stuck", mock.Anything).Return(nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.Settlement) bool {
		return s.Status == domain.SettlementStatusReconciled
	})).Return(nil)

	err := service.ReconcileSettled(context.Background())
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockLedger.AssertExpectations(t)
}

func TestRecoverPendingSettlements(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	debtID := uuid.New()
	settlementID := uuid.New()
	stl := &domain.Settlement{
		ID:              settlementID,
		TransactionHash: "tx-resume",
		Status:          domain.SettlementStatusSubmitted,
		DebtIDs:         domain.UUIDList{debtID},
	}

	mockRepo.On("FindSubmitted", mock.Anything).Return([]*domain.Settlement{stl}, nil)
	mockConnector.On("CheckConfirmation", mock.Anything, "tx-resume").Return(true, nil)
	mockRepo.On("FindByID", mock.Anything, settlementID).Return(stl, nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *domain.Settlement) bool {
		return s.Status == domain.SettlementStatusConfirmed
	})).Return(nil)
	mockLedger.On("MarkSettled", mock.Anything, debtID, "tx-resume", mock.Anything).Return(nil)

	err := service.RecoverPendingSettlements(context.Background())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	mockRepo.AssertExpectations(t)
	mockConnector.AssertExpectations(t)
}

func TestPreviewPlan(t *testing.T) {
	mockRepo := new(MockRepository)
	mockLedger := new(MockLedger)
	mockResolver := new(MockResolver)
	mockConnector := new(MockConnector)
	service := newTestService(mockRepo, mockLedger, mockResolver, mockConnector)

	mockLedger.On("NetBalances", mock.Anything, "trip").Return(map[string]decimal.Decimal{
		"alice": decimal.RequireFromString("30"),
		"bob":   decimal.RequireFromString("-30"),
	}, nil)

	plan, err := service.PreviewPlan(context.Background(), "trip")
	require.NoError(t, err)
	require.Len(t, plan.Transfers, 1)
	assert.Equal(t, "bob", plan.Transfers[0].From)
	assert.Equal(t, "alice", plan.Transfers[0].To)
	assert.True(t, plan.Transfers[0].Amount.Equal(decimal.RequireFromString("30")))
}
