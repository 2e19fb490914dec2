package postgres

import (
	"context"
	"database/sql"
	"time"

	"spliton/internal/domain"
	"spliton/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type DebtRepository struct {
	db *sqlx.DB
}

func NewDebtRepository(db *sqlx.DB) *DebtRepository {
	return &DebtRepository{db: db}
}

func (r *DebtRepository) Create(ctx context.Context, debt *domain.Debt) error {
	query := `
		INSERT INTO debts (
			id, group_id, expense_id, debtor_id, creditor_id, amount,
			settled, settled_at, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		debt.ID, debt.GroupID, debt.ExpenseID, debt.DebtorID, debt.CreditorID,
		debt.Amount, debt.Settled, debt.SettledAt, debt.TxHash, debt.CreatedAt,
	)

	return errors.Wrap(err, "failed to create debt")
}

func (r *DebtRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Debt, error) {
	var debt domain.Debt
	query := `SELECT * FROM debts WHERE id = $1`

	err := r.db.GetContext(ctx, &debt, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrDebtNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find debt")
	}

	return &debt, nil
}

func (r *DebtRepository) FindUnsettledByGroup(ctx context.Context, groupID string) ([]*domain.Debt, error) {
	var debts []*domain.Debt
	query := `
		SELECT * FROM debts
		WHERE group_id = $1 AND settled = FALSE
		ORDER BY created_at, id
	`

	err := r.db.SelectContext(ctx, &debts, query, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unsettled debts")
	}

	return debts, nil
}

func (r *DebtRepository) FindUnsettledByUser(ctx context.Context, userID string) ([]*domain.Debt, error) {
	var debts []*domain.Debt
	query := `
		SELECT * FROM debts
		WHERE (debtor_id = $1 OR creditor_id = $1) AND settled = FALSE
		ORDER BY created_at, id
	`

	err := r.db.SelectContext(ctx, &debts, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user debts")
	}

	return debts, nil
}

// MarkSettled flips an open debt to settled and reports whether this call did
// the flip. The settled guard in the WHERE clause is what makes retries and
// the reconciliation sweep safe.
func (r *DebtRepository) MarkSettled(ctx context.Context, id uuid.UUID, txHash string, settledAt time.Time) (bool, error) {
	query := `
		UPDATE debts SET settled = TRUE, tx_hash = $1, settled_at = $2
		WHERE id = $3 AND settled = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, txHash, settledAt, id)
	if err != nil {
		return false, errors.Wrap(err, "failed to mark debt settled")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return rows > 0, nil
}
