// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Ledger errors
var (
	ErrDebtNotFound       = errors.New("debt not found")
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrDebtAlreadySettled = errors.New("debt already settled")
	ErrNoParticipants     = errors.New("expense has no participants besides the payer")
	ErrAmountNotPositive  = errors.New("amount must be greater than zero")
)

// Netting errors
var ErrUnbalancedLedger = errors.New("net balances do not sum to zero")

// Contract errors
var (
	ErrContractPaused       = errors.New("contract is paused")
	ErrContractActive       = errors.New("contract is active")
	ErrNotOwner             = errors.New("caller is not the contract owner")
	ErrPaymentLimitExceeded = errors.New("amount exceeds single payment limit")
	ErrInsufficientValue    = errors.New("inbound value does not cover amount plus fee")
	ErrInsufficientBalance  = errors.New("insufficient contract balance")
	ErrInsufficientFees     = errors.New("amount exceeds accumulated fees")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrTransactionNotFound  = errors.New("transaction not found")
)

// Settlement errors
var (
	ErrSettlementNotFound  = errors.New("settlement not found")
	ErrAddressNotResolved  = errors.New("user has no chain address")
	ErrEmptyPlan           = errors.New("settlement plan is empty")
	ErrConfirmationTimeout = errors.New("confirmation polling timed out; transaction may still be processing")
)

// Wallet errors
var (
	ErrWalletNotFound = errors.New("wallet not found")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
