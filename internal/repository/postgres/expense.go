package postgres

import (
	"context"
	"database/sql"

	"spliton/internal/domain"
	"spliton/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ExpenseRepository struct {
	db *sqlx.DB
}

func NewExpenseRepository(db *sqlx.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *domain.Expense) error {
	query := `
		INSERT INTO expenses (id, group_id, payer_id, description, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		expense.ID, expense.GroupID, expense.PayerID,
		expense.Description, expense.Total, expense.CreatedAt,
	)

	return errors.Wrap(err, "failed to create expense")
}

func (r *ExpenseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Expense, error) {
	var expense domain.Expense
	query := `SELECT * FROM expenses WHERE id = $1`

	err := r.db.GetContext(ctx, &expense, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrExpenseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find expense")
	}

	return &expense, nil
}
