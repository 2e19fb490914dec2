// Package settlement orchestrates the off-chain side of on-chain settlement:
// computing plans, submitting them to the contract, polling confirmations,
// and reconciling settled debts afterwards.
package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spliton/internal/domain"
	"spliton/internal/netting"
	"spliton/internal/ton"
	"spliton/pkg/errors"
	"spliton/pkg/logger"
)

type Service struct {
	repo        Repository
	ledger      LedgerService
	resolver    AddressResolver
	connector   ChainConnector
	logger      logger.Logger
	pollEvery   time.Duration
	pollRetries int
	batchLimit  int
}

// NewService builds a settlement coordinator. batchLimit caps how many debts a
// single ExecutePlan run settles; zero or negative means no cap.
func NewService(
	repo Repository,
	ledger LedgerService,
	resolver AddressResolver,
	connector ChainConnector,
	log logger.Logger,
	pollEvery time.Duration,
	pollRetries int,
	batchLimit int,
) *Service {
	return &Service{
		repo:        repo,
		ledger:      ledger,
		resolver:    resolver,
		connector:   connector,
		logger:      log,
		pollEvery:   pollEvery,
		pollRetries: pollRetries,
		batchLimit:  batchLimit,
	}
}

// ExcludedDebt is a debt dropped from a plan because its creditor has no
// resolvable chain address. Exclusions are surfaced, never silent.
type ExcludedDebt struct {
	DebtID     uuid.UUID `json:"debt_id"`
	CreditorID string    `json:"creditor_id"`
	Reason     string    `json:"reason"`
}

// ExecutionResult reports one plan execution: the submitted settlement plus
// every debt left out of it.
type ExecutionResult struct {
	Settlement *domain.Settlement     `json:"settlement"`
	Plan       *domain.SettlementPlan `json:"plan"`
	Excluded   []ExcludedDebt         `json:"excluded,omitempty"`
}

// PreviewPlan computes the current settlement plan for a group without
// touching the chain. The plan is ephemeral: void as soon as any underlying
// debt changes.
func (s *Service) PreviewPlan(ctx context.Context, groupID string) (*domain.SettlementPlan, error) {
	balances, err := s.ledger.NetBalances(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return netting.ComputePlan(groupID, balances)
}

// ExecutePlan settles a group: snapshot unsettled debts, drop debts whose
// creditor cannot be resolved, net the rest, and submit one BatchSettlement.
// The caller must serialize this against debt mutations for the same group;
// the plan and the debt snapshot have to describe the same state.
func (s *Service) ExecutePlan(ctx context.Context, groupID string) (*ExecutionResult, error) {
	debts, err := s.ledger.UnsettledDebts(ctx, groupID)
	if err != nil {
		return nil, err
	}
	// Whole debts only: truncating the snapshot keeps the netted balances
	// zero-sum. The remainder is picked up by the next run.
	if s.batchLimit > 0 && len(debts) > s.batchLimit {
		s.logger.Info("Debt snapshot capped at batch limit", map[string]interface{}{
			"group_id":  groupID,
			"unsettled": len(debts),
			"limit":     s.batchLimit,
		})
		debts = debts[:s.batchLimit]
	}

	included, excluded, addresses := s.partitionByResolvable(ctx, debts)
	if len(excluded) > 0 {
		s.logger.Warn("Debts excluded from plan: unresolvable creditor address", map[string]interface{}{
			"group_id": groupID,
			"excluded": len(excluded),
		})
	}

	balances := make(map[string]decimal.Decimal)
	debtIDs := make(domain.UUIDList, 0, len(included))
	for _, d := range included {
		balances[d.DebtorID] = balances[d.DebtorID].Sub(d.Amount)
		balances[d.CreditorID] = balances[d.CreditorID].Add(d.Amount)
		debtIDs = append(debtIDs, d.ID)
	}

	plan, err := netting.ComputePlan(groupID, balances)
	if err != nil {
		return nil, err
	}
	if len(plan.Transfers) == 0 {
		return nil, errors.ErrEmptyPlan
	}

	recipients := make(map[ton.Address]*big.Int, len(plan.Transfers))
	for _, t := range plan.Transfers {
		addr := addresses[t.To]
		nano := ton.ToNano(t.Amount)
		if existing, ok := recipients[addr]; ok {
			existing.Add(existing, nano)
		} else {
			recipients[addr] = nano
		}
	}

	now := time.Now().UTC()
	stl := &domain.Settlement{
		ID:             uuid.New(),
		BatchReference: s.generateBatchReference(),
		GroupID:        groupID,
		TotalAmount:    plan.Total,
		TransferCount:  len(plan.Transfers),
		Status:         domain.SettlementStatusPending,
		DebtIDs:        debtIDs,
		Metadata:       make(domain.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, stl); err != nil {
		return nil, errors.Wrap(err, "failed to create settlement")
	}

	for _, t := range plan.Transfers {
		transfer := &domain.SettlementTransfer{
			ID:           uuid.New(),
			SettlementID: stl.ID,
			FromUserID:   t.From,
			ToUserID:     t.To,
			ToAddress:    addresses[t.To].String(),
			Amount:       t.Amount,
			CreatedAt:    now,
		}
		if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
			return nil, errors.Wrap(err, "failed to record settlement transfer")
		}
	}

	txHash, err := s.connector.SubmitBatch(ctx, groupID, recipients)
	if err != nil {
		stl.Status = domain.SettlementStatusFailed
		stl.StatusReason = err.Error()
		stl.UpdatedAt = time.Now().UTC()
		_ = s.repo.Update(ctx, stl)
		return nil, err
	}

	stl.TransactionHash = txHash
	stl.Status = domain.SettlementStatusSubmitted
	stl.SubmissionCount++
	submittedAt := time.Now().UTC()
	stl.LastSubmittedAt = &submittedAt
	stl.UpdatedAt = submittedAt
	if err := s.repo.Update(ctx, stl); err != nil {
		return nil, errors.Wrap(err, "failed to update settlement")
	}

	go s.monitorSettlement(stl.ID, txHash)

	s.logger.Info("Batch settlement submitted", map[string]interface{}{
		"settlement_id": stl.ID,
		"batch_ref":     stl.BatchReference,
		"group_id":      groupID,
		"tx_hash":       txHash,
		"transfers":     len(plan.Transfers),
		"total":         plan.Total.String(),
	})

	return &ExecutionResult{Settlement: stl, Plan: plan, Excluded: excluded}, nil
}

// ExecuteDirect pays one debt through the self-service DirectPayment path.
// The debtor's own wallet funds the transfer (plus the contract's flat fee).
func (s *Service) ExecuteDirect(ctx context.Context, debtID uuid.UUID) (*domain.Settlement, error) {
	debt, err := s.ledger.FindDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.Settled {
		return nil, errors.ErrDebtAlreadySettled
	}

	fromAddr, err := s.resolver.ResolveAddress(ctx, debt.DebtorID)
	if err != nil {
		return nil, err
	}
	toAddr, err := s.resolver.ResolveAddress(ctx, debt.CreditorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stl := &domain.Settlement{
		ID:             uuid.New(),
		BatchReference: s.generateBatchReference(),
		GroupID:        debt.GroupID,
		TotalAmount:    debt.Amount,
		TransferCount:  1,
		Status:         domain.SettlementStatusPending,
		DebtIDs:        domain.UUIDList{debt.ID},
		Metadata:       domain.Metadata{"mode": "direct"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, stl); err != nil {
		return nil, errors.Wrap(err, "failed to create settlement")
	}

	transfer := &domain.SettlementTransfer{
		ID:           uuid.New(),
		SettlementID: stl.ID,
		FromUserID:   debt.DebtorID,
		ToUserID:     debt.CreditorID,
		ToAddress:    toAddr.String(),
		Amount:       debt.Amount,
		CreatedAt:    now,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, errors.Wrap(err, "failed to record settlement transfer")
	}

	txHash, err := s.connector.SubmitDirect(ctx, fromAddr, toAddr, ton.ToNano(debt.Amount), debt.GroupID)
	if err != nil {
		stl.Status = domain.SettlementStatusFailed
		stl.StatusReason = err.Error()
		stl.UpdatedAt = time.Now().UTC()
		_ = s.repo.Update(ctx, stl)
		return nil, err
	}

	stl.TransactionHash = txHash
	stl.Status = domain.SettlementStatusSubmitted
	stl.SubmissionCount++
	submittedAt := time.Now().UTC()
	stl.LastSubmittedAt = &submittedAt
	stl.UpdatedAt = submittedAt
	if err := s.repo.Update(ctx, stl); err != nil {
		return nil, errors.Wrap(err, "failed to update settlement")
	}

	go s.monitorSettlement(stl.ID, txHash)

	s.logger.Info("Direct payment submitted", map[string]interface{}{
		"settlement_id": stl.ID,
		"debt_id":       debt.ID,
		"tx_hash":       txHash,
		"amount":        debt.Amount.String(),
	})

	return stl, nil
}

// monitorSettlement polls for confirmation with bounded attempts. There is no
// synchronous "money has moved" callback and no cancel primitive: after the
// attempts run out the settlement stays submitted ("may still be processing")
// for the reconciliation sweep to pick up. Never assume timeout means the
// funds are safe.
func (s *Service) monitorSettlement(settlementID uuid.UUID, txHash string) {
	ctx := context.Background()

	for i := 0; i < s.pollRetries; i++ {
		time.Sleep(s.pollEvery)

		confirmed, err := s.connector.CheckConfirmation(ctx, txHash)
		if err != nil {
			// The chain reported a rejection: the whole transaction aborted
			// atomically, no transfer happened, safe to retry after fixing
			// the cause it names.
			s.failSettlement(ctx, settlementID, err.Error())
			return
		}
		if !confirmed {
			continue
		}

		s.confirmSettlement(ctx, settlementID, txHash)
		return
	}

	s.logger.Error("Settlement confirmation timeout", map[string]interface{}{
		"settlement_id": settlementID,
		"tx_hash":       txHash,
		"error":         errors.ErrConfirmationTimeout.Error(),
	})
}

func (s *Service) confirmSettlement(ctx context.Context, settlementID uuid.UUID, txHash string) {
	stl, err := s.repo.FindByID(ctx, settlementID)
	if err != nil {
		s.logger.Error("Failed to load settlement for confirmation", map[string]interface{}{
			"settlement_id": settlementID,
			"error":         err.Error(),
		})
		return
	}

	now := time.Now().UTC()
	stl.Status = domain.SettlementStatusConfirmed
	stl.ConfirmedAt = &now
	stl.UpdatedAt = now
	if err := s.repo.Update(ctx, stl); err != nil {
		s.logger.Error("Failed to update settlement", map[string]interface{}{
			"settlement_id": settlementID,
			"error":         err.Error(),
		})
		return
	}

	// Mark-as-settled is a follow-up, not atomic with the on-chain transfer.
	// A crash between confirmation and here leaves the gap the reconciliation
	// sweep exists to close.
	s.markDebtsSettled(ctx, stl, txHash, now)

	s.logger.Info("Settlement confirmed", map[string]interface{}{
		"settlement_id": settlementID,
		"tx_hash":       txHash,
	})
}

func (s *Service) failSettlement(ctx context.Context, settlementID uuid.UUID, reason string) {
	stl, err := s.repo.FindByID(ctx, settlementID)
	if err != nil {
		return
	}
	stl.Status = domain.SettlementStatusFailed
	stl.StatusReason = reason
	stl.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, stl); err != nil {
		s.logger.Error("Failed to mark settlement failed", map[string]interface{}{
			"settlement_id": settlementID,
			"error":         err.Error(),
		})
	}
	s.logger.Warn("Settlement rejected on chain", map[string]interface{}{
		"settlement_id": settlementID,
		"reason":        reason,
	})
}

func (s *Service) markDebtsSettled(ctx context.Context, stl *domain.Settlement, txHash string, settledAt time.Time) bool {
	allMarked := true
	for _, debtID := range stl.DebtIDs {
		if err := s.ledger.MarkSettled(ctx, debtID, txHash, settledAt); err != nil {
			allMarked = false
			s.logger.Error("Failed to mark debt settled", map[string]interface{}{
				"settlement_id": stl.ID,
				"debt_id":       debtID,
				"error":         err.Error(),
			})
		}
	}
	return allMarked
}

// ReconcileSettled closes the off-chain/on-chain gap: it re-checks every
// settlement that was submitted or confirmed but not yet fully applied to the
// ledger, backfills settled flags, and promotes fully-applied settlements to
// reconciled. The source does not guarantee this sweep; running it
// periodically is a deliberate improvement over inheriting the gap.
func (s *Service) ReconcileSettled(ctx context.Context) error {
	pending, err := s.repo.FindUnreconciled(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load unreconciled settlements")
	}

	for _, stl := range pending {
		if stl.TransactionHash == "" {
			continue
		}

		confirmed, err := s.connector.CheckConfirmation(ctx, stl.TransactionHash)
		if err != nil {
			s.failSettlement(ctx, stl.ID, err.Error())
			continue
		}
		if !confirmed {
			continue
		}

		now := time.Now().UTC()
		if stl.Status != domain.SettlementStatusConfirmed {
			stl.Status = domain.SettlementStatusConfirmed
			stl.ConfirmedAt = &now
		}

		if s.markDebtsSettled(ctx, stl, stl.TransactionHash, now) {
			stl.Status = domain.SettlementStatusReconciled
		}
		stl.UpdatedAt = now
		if err := s.repo.Update(ctx, stl); err != nil {
			s.logger.Error("Failed to update settlement during reconciliation", map[string]interface{}{
				"settlement_id": stl.ID,
				"error":         err.Error(),
			})
		}
	}
	return nil
}

// StartWorker resumes confirmation monitoring for interrupted settlements,
// then keeps two tickers running until ctx is cancelled: recovery of stuck
// submitted settlements every recoverEvery, and the reconciliation sweep
// every reconcileEvery. Both paths are idempotent, so re-running them against
// a settlement that is already being monitored is harmless.
func (s *Service) StartWorker(ctx context.Context, recoverEvery, reconcileEvery time.Duration) {
	if err := s.RecoverPendingSettlements(ctx); err != nil {
		s.logger.Error("Failed to recover pending settlements", map[string]interface{}{
			"error": err.Error(),
		})
	}

	recoverTicker := time.NewTicker(recoverEvery)
	defer recoverTicker.Stop()
	reconcileTicker := time.NewTicker(reconcileEvery)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-recoverTicker.C:
			if err := s.RecoverPendingSettlements(ctx); err != nil {
				s.logger.Error("Failed to recover pending settlements", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-reconcileTicker.C:
			if err := s.ReconcileSettled(ctx); err != nil {
				s.logger.Error("Reconciliation sweep error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// RecoverPendingSettlements resumes monitoring for settlements that were
// submitted before a restart.
func (s *Service) RecoverPendingSettlements(ctx context.Context) error {
	submitted, err := s.repo.FindSubmitted(ctx)
	if err != nil {
		return err
	}

	for _, stl := range submitted {
		if stl.TransactionHash != "" {
			go s.monitorSettlement(stl.ID, stl.TransactionHash)
			s.logger.Info("Resumed monitoring for settlement", map[string]interface{}{
				"settlement_id": stl.ID,
				"tx_hash":       stl.TransactionHash,
			})
		}
	}
	return nil
}

// GetSettlement returns one settlement with its transfers.
func (s *Service) GetSettlement(ctx context.Context, id uuid.UUID) (*domain.Settlement, []*domain.SettlementTransfer, error) {
	stl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	transfers, err := s.repo.FindTransfers(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return stl, transfers, nil
}

func (s *Service) partitionByResolvable(ctx context.Context, debts []*domain.Debt) ([]*domain.Debt, []ExcludedDebt, map[string]ton.Address) {
	included := make([]*domain.Debt, 0, len(debts))
	var excluded []ExcludedDebt
	addresses := make(map[string]ton.Address)

	for _, d := range debts {
		addr, ok := addresses[d.CreditorID]
		if !ok {
			var err error
			addr, err = s.resolver.ResolveAddress(ctx, d.CreditorID)
			if err != nil {
				excluded = append(excluded, ExcludedDebt{
					DebtID:     d.ID,
					CreditorID: d.CreditorID,
					Reason:     err.Error(),
				})
				continue
			}
			addresses[d.CreditorID] = addr
		}
		included = append(included, d)
	}
	return included, excluded, addresses
}

func (s *Service) generateBatchReference() string {
	return fmt.Sprintf("SPLT-%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}

// Interfaces

type Repository interface {
	Create(ctx context.Context, settlement *domain.Settlement) error
	Update(ctx context.Context, settlement *domain.Settlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error)
	FindSubmitted(ctx context.Context) ([]*domain.Settlement, error)
	FindUnreconciled(ctx context.Context) ([]*domain.Settlement, error)
	CreateTransfer(ctx context.Context, transfer *domain.SettlementTransfer) error
	FindTransfers(ctx context.Context, settlementID uuid.UUID) ([]*domain.SettlementTransfer, error)
}

type LedgerService interface {
	UnsettledDebts(ctx context.Context, groupID string) ([]*domain.Debt, error)
	NetBalances(ctx context.Context, groupID string) (map[string]decimal.Decimal, error)
	FindDebt(ctx context.Context, id uuid.UUID) (*domain.Debt, error)
	MarkSettled(ctx context.Context, debtID uuid.UUID, txHash string, settledAt time.Time) error
}

type AddressResolver interface {
	ResolveAddress(ctx context.Context, userID string) (ton.Address, error)
}

type ChainConnector interface {
	SubmitBatch(ctx context.Context, groupID string, recipients map[ton.Address]*big.Int) (string, error)
	SubmitDirect(ctx context.Context, from, to ton.Address, amount *big.Int, groupID string) (string, error)
	CheckConfirmation(ctx context.Context, txHash string) (bool, error)
	Transactions(ctx context.Context) ([]*ton.Transaction, error)
}
