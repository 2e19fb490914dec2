package postgres

import (
	"context"
	"database/sql"

	"spliton/internal/domain"
	"spliton/pkg/errors"

	"github.com/jmoiron/sqlx"
)

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID string) (*domain.WalletLink, error) {
	var link domain.WalletLink
	query := `SELECT * FROM wallet_links WHERE user_id = $1`

	err := r.db.GetContext(ctx, &link, query, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrWalletNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallet link")
	}

	return &link, nil
}

func (r *WalletRepository) Upsert(ctx context.Context, link *domain.WalletLink) error {
	query := `
		INSERT INTO wallet_links (user_id, address, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			address = EXCLUDED.address,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, link.UserID, link.Address, link.UpdatedAt)
	return errors.Wrap(err, "failed to upsert wallet link")
}
