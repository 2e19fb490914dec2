// Package ledger maintains the off-chain debt ledger: recording expense
// splits as directed debts, projecting net balances, and marking debts
// settled once payment is confirmed on chain.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spliton/internal/domain"
	"spliton/pkg/errors"
	"spliton/pkg/logger"
	"spliton/pkg/validator"
)

type Service struct {
	debts     DebtRepository
	expenses  ExpenseRepository
	validator *validator.Validator
	logger    logger.Logger
}

func NewService(debts DebtRepository, expenses ExpenseRepository, log logger.Logger) *Service {
	return &Service{
		debts:     debts,
		expenses:  expenses,
		validator: validator.New(),
		logger:    log,
	}
}

type RecordExpenseRequest struct {
	GroupID      string          `json:"group_id" validate:"required"`
	PayerID      string          `json:"payer_id" validate:"required"`
	Description  string          `json:"description"`
	Total        decimal.Decimal `json:"total" validate:"required,gt=0"`
	Participants []string        `json:"participants" validate:"required,min=1"`
}

// RecordExpense splits an expense evenly among its participants and creates
// one debt per non-payer participant. Debt amounts are immutable afterwards;
// corrections go through OffsetDebt.
func (s *Service) RecordExpense(ctx context.Context, req *RecordExpenseRequest) (*domain.Expense, []*domain.Debt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, nil, err
	}

	nonPayers := 0
	for _, p := range req.Participants {
		if p != req.PayerID {
			nonPayers++
		}
	}
	if nonPayers == 0 {
		return nil, nil, errors.ErrNoParticipants
	}

	now := time.Now().UTC()
	expense := &domain.Expense{
		ID:          uuid.New(),
		GroupID:     req.GroupID,
		PayerID:     req.PayerID,
		Description: req.Description,
		Total:       req.Total,
		CreatedAt:   now,
	}
	if err := s.expenses.Create(ctx, expense); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create expense")
	}

	share := req.Total.DivRound(decimal.NewFromInt(int64(len(req.Participants))), 9)

	debts := make([]*domain.Debt, 0, len(req.Participants))
	for _, participant := range req.Participants {
		if participant == req.PayerID {
			continue
		}
		debt := &domain.Debt{
			ID:         uuid.New(),
			GroupID:    req.GroupID,
			ExpenseID:  expense.ID,
			DebtorID:   participant,
			CreditorID: req.PayerID,
			Amount:     share,
			CreatedAt:  now,
		}
		if err := s.debts.Create(ctx, debt); err != nil {
			return nil, nil, errors.Wrap(err, "failed to create debt")
		}
		debts = append(debts, debt)
	}

	s.logger.Info("Expense recorded", map[string]interface{}{
		"expense_id": expense.ID,
		"group_id":   req.GroupID,
		"payer_id":   req.PayerID,
		"total":      req.Total.String(),
		"debts":      len(debts),
	})

	return expense, debts, nil
}

// FindDebt returns one debt by ID.
func (s *Service) FindDebt(ctx context.Context, id uuid.UUID) (*domain.Debt, error) {
	return s.debts.FindByID(ctx, id)
}

// UnsettledDebts lists open debts for a group.
func (s *Service) UnsettledDebts(ctx context.Context, groupID string) ([]*domain.Debt, error) {
	return s.debts.FindUnsettledByGroup(ctx, groupID)
}

// UserDebts lists open debts a user is party to, on either side.
func (s *Service) UserDebts(ctx context.Context, userID string) ([]*domain.Debt, error) {
	return s.debts.FindUnsettledByUser(ctx, userID)
}

// NetBalances projects per-user net positions from the group's unsettled
// debts. Positive means owed to the user. The projection sums to zero exactly
// because every debt credits one side and debits the other.
func (s *Service) NetBalances(ctx context.Context, groupID string) (map[string]decimal.Decimal, error) {
	debts, err := s.debts.FindUnsettledByGroup(ctx, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load unsettled debts")
	}

	balances := make(map[string]decimal.Decimal)
	for _, d := range debts {
		balances[d.DebtorID] = balances[d.DebtorID].Sub(d.Amount)
		balances[d.CreditorID] = balances[d.CreditorID].Add(d.Amount)
	}
	return balances, nil
}

// MarkSettled flags a debt as paid after on-chain confirmation. Marking an
// already-settled debt is a no-op, so confirmation retries and the
// reconciliation sweep can call it freely.
func (s *Service) MarkSettled(ctx context.Context, debtID uuid.UUID, txHash string, settledAt time.Time) error {
	updated, err := s.debts.MarkSettled(ctx, debtID, txHash, settledAt)
	if err != nil {
		return errors.Wrap(err, "failed to mark debt settled")
	}
	if !updated {
		s.logger.Debug("Debt already settled", map[string]interface{}{
			"debt_id": debtID,
		})
		return nil
	}

	s.logger.Info("Debt settled", map[string]interface{}{
		"debt_id": debtID,
		"tx_hash": txHash,
	})
	return nil
}

// OffsetDebt records the correction for a mis-entered debt by creating the
// opposite obligation. The original amount is never edited.
func (s *Service) OffsetDebt(ctx context.Context, debtID uuid.UUID) (*domain.Debt, error) {
	original, err := s.debts.FindByID(ctx, debtID)
	if err != nil {
		return nil, err
	}

	offset := &domain.Debt{
		ID:         uuid.New(),
		GroupID:    original.GroupID,
		ExpenseID:  original.ExpenseID,
		DebtorID:   original.CreditorID,
		CreditorID: original.DebtorID,
		Amount:     original.Amount,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.debts.Create(ctx, offset); err != nil {
		return nil, errors.Wrap(err, "failed to create offsetting debt")
	}

	s.logger.Info("Offsetting debt created", map[string]interface{}{
		"original_id": original.ID,
		"offset_id":   offset.ID,
	})
	return offset, nil
}

// Repository interfaces

type DebtRepository interface {
	Create(ctx context.Context, debt *domain.Debt) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Debt, error)
	FindUnsettledByGroup(ctx context.Context, groupID string) ([]*domain.Debt, error)
	FindUnsettledByUser(ctx context.Context, userID string) ([]*domain.Debt, error)
	MarkSettled(ctx context.Context, id uuid.UUID, txHash string, settledAt time.Time) (bool, error)
}

type ExpenseRepository interface {
	Create(ctx context.Context, expense *domain.Expense) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Expense, error)
}
