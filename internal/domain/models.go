// Package domain holds the core data model shared across services.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Debt is a directed obligation created when an expense is split. The amount is
// immutable once created; corrections are recorded as offsetting debts.
type Debt struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	GroupID    string          `json:"group_id" db:"group_id"`
	ExpenseID  uuid.UUID       `json:"expense_id" db:"expense_id"`
	DebtorID   string          `json:"debtor_id" db:"debtor_id"`
	CreditorID string          `json:"creditor_id" db:"creditor_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Settled    bool            `json:"settled" db:"settled"`
	SettledAt  *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
	TxHash     string          `json:"tx_hash" db:"tx_hash"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Expense is the off-chain record a split originates from.
type Expense struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	GroupID     string          `json:"group_id" db:"group_id"`
	PayerID     string          `json:"payer_id" db:"payer_id"`
	Description string          `json:"description" db:"description"`
	Total       decimal.Decimal `json:"total" db:"total"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// NetBalance is a projection over unsettled debts: positive means the user is
// owed money, negative means the user owes.
type NetBalance struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// Transfer is a single edge of a settlement plan.
type Transfer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// SettlementPlan is ephemeral: recomputed from current balances on every
// request and void as soon as any underlying debt changes.
type SettlementPlan struct {
	GroupID   string          `json:"group_id"`
	Transfers []Transfer      `json:"transfers"`
	Total     decimal.Decimal `json:"total"`
}

// Settlement records one on-chain execution of a plan.
type Settlement struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	BatchReference  string           `json:"batch_reference" db:"batch_reference"`
	GroupID         string           `json:"group_id" db:"group_id"`
	TotalAmount     decimal.Decimal  `json:"total_amount" db:"total_amount"`
	TransferCount   int              `json:"transfer_count" db:"transfer_count"`
	Status          SettlementStatus `json:"status" db:"status"`
	StatusReason    string           `json:"status_reason" db:"status_reason"`
	TransactionHash string           `json:"transaction_hash" db:"transaction_hash"`
	DebtIDs         UUIDList         `json:"debt_ids" db:"debt_ids"`
	SubmissionCount int              `json:"submission_count" db:"submission_count"`
	LastSubmittedAt *time.Time       `json:"last_submitted_at,omitempty" db:"last_submitted_at"`
	ConfirmedAt     *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	Metadata        Metadata         `json:"metadata" db:"metadata"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusSubmitted  SettlementStatus = "submitted"
	SettlementStatusConfirmed  SettlementStatus = "confirmed"
	SettlementStatusFailed     SettlementStatus = "failed"
	SettlementStatusReconciled SettlementStatus = "reconciled"
)

// SettlementTransfer is one executed plan edge, kept for deterministic
// replay and the reconciliation report.
type SettlementTransfer struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	SettlementID uuid.UUID       `json:"settlement_id" db:"settlement_id"`
	FromUserID   string          `json:"from_user_id" db:"from_user_id"`
	ToUserID     string          `json:"to_user_id" db:"to_user_id"`
	ToAddress    string          `json:"to_address" db:"to_address"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// WalletLink maps an application user to a TON address.
type WalletLink struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Address   string    `json:"address" db:"address"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Metadata stores unstructured extras as JSONB.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("metadata: expected []byte")
	}
	return json.Unmarshal(b, m)
}

// UUIDList stores a list of UUIDs as JSONB.
type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *UUIDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("uuid list: expected []byte")
	}
	return json.Unmarshal(b, l)
}
