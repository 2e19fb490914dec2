package postgres

import (
	"context"
	"database/sql"

	"spliton/internal/domain"
	"spliton/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type SettlementRepository struct {
	db *sqlx.DB
}

func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, settlement *domain.Settlement) error {
	query := `
		INSERT INTO settlements (
			id, batch_reference, group_id, total_amount, transfer_count,
			status, status_reason, transaction_hash, debt_ids,
			submission_count, last_submitted_at, confirmed_at, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		settlement.ID, settlement.BatchReference, settlement.GroupID,
		settlement.TotalAmount, settlement.TransferCount, settlement.Status,
		settlement.StatusReason, settlement.TransactionHash, settlement.DebtIDs,
		settlement.SubmissionCount, settlement.LastSubmittedAt,
		settlement.ConfirmedAt, settlement.Metadata,
		settlement.CreatedAt, settlement.UpdatedAt,
	)

	return errors.Wrap(err, "failed to create settlement")
}

func (r *SettlementRepository) Update(ctx context.Context, settlement *domain.Settlement) error {
	query := `
		UPDATE settlements SET
			status = $1, status_reason = $2, transaction_hash = $3,
			submission_count = $4, last_submitted_at = $5, confirmed_at = $6,
			metadata = $7, updated_at = $8
		WHERE id = $9
	`

	_, err := r.db.ExecContext(ctx, query,
		settlement.Status, settlement.StatusReason, settlement.TransactionHash,
		settlement.SubmissionCount, settlement.LastSubmittedAt,
		settlement.ConfirmedAt, settlement.Metadata, settlement.UpdatedAt,
		settlement.ID,
	)

	return errors.Wrap(err, "failed to update settlement")
}

func (r *SettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	var settlement domain.Settlement
	query := `SELECT * FROM settlements WHERE id = $1`

	err := r.db.GetContext(ctx, &settlement, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSettlementNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find settlement")
	}

	return &settlement, nil
}

func (r *SettlementRepository) FindSubmitted(ctx context.Context) ([]*domain.Settlement, error) {
	var settlements []*domain.Settlement
	query := `
		SELECT * FROM settlements
		WHERE status = 'submitted'
		ORDER BY created_at
	`

	err := r.db.SelectContext(ctx, &settlements, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list submitted settlements")
	}

	return settlements, nil
}

// FindUnreconciled returns settlements that may have moved money on chain
// without the ledger reflecting it yet.
func (r *SettlementRepository) FindUnreconciled(ctx context.Context) ([]*domain.Settlement, error) {
	var settlements []*domain.Settlement
	query := `
		SELECT * FROM settlements
		WHERE status IN ('submitted', 'confirmed')
		ORDER BY created_at
	`

	err := r.db.SelectContext(ctx, &settlements, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unreconciled settlements")
	}

	return settlements, nil
}

func (r *SettlementRepository) CreateTransfer(ctx context.Context, transfer *domain.SettlementTransfer) error {
	query := `
		INSERT INTO settlement_transfers (
			id, settlement_id, from_user_id, to_user_id, to_address, amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		transfer.ID, transfer.SettlementID, transfer.FromUserID,
		transfer.ToUserID, transfer.ToAddress, transfer.Amount, transfer.CreatedAt,
	)

	return errors.Wrap(err, "failed to create settlement transfer")
}

func (r *SettlementRepository) FindTransfers(ctx context.Context, settlementID uuid.UUID) ([]*domain.SettlementTransfer, error) {
	var transfers []*domain.SettlementTransfer
	query := `
		SELECT * FROM settlement_transfers
		WHERE settlement_id = $1
		ORDER BY created_at, id
	`

	err := r.db.SelectContext(ctx, &transfers, query, settlementID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list settlement transfers")
	}

	return transfers, nil
}
