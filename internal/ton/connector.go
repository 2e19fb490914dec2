package ton

import (
	"context"
	"fmt"
	"math/big"

	"spliton/pkg/errors"
)

// Gas headroom attached on top of the exact payout value. Exact gas
// estimation from a client is unreliable; excess stays on the contract.
var (
	directGasHeadroom = Nano("0.1")
	batchGasHeadroom  = Nano("0.2")
)

// Connector submits settlement messages to a chain and answers confirmation
// polls. It fronts the in-process simulator here; a horizon-style RPC client
// would satisfy the same methods against a live network.
type Connector struct {
	chain    *Chain
	operator Address
}

// NewConnector binds a connector to a chain. operator is the owner wallet the
// coordinator signs BatchSettlement messages with.
func NewConnector(chain *Chain, operator Address) *Connector {
	return &Connector{chain: chain, operator: operator}
}

// SubmitBatch sends a BatchSettlement and returns the pending transaction
// hash. Rejection by the contract surfaces through CheckConfirmation, not
// here, matching the fire-and-forget submission model.
func (c *Connector) SubmitBatch(ctx context.Context, groupID string, recipients map[Address]*big.Int) (string, error) {
	total := big.NewInt(0)
	for _, amount := range recipients {
		if amount != nil && amount.Sign() > 0 {
			total.Add(total, amount)
		}
	}
	value := new(big.Int).Add(total, batchGasHeadroom)

	tx, err := c.chain.SendMessage(c.operator, value, BatchSettlement{
		Recipients: recipients,
		GroupID:    groupID,
	})
	if err != nil {
		return "", errors.Wrap(err, "submit batch settlement")
	}
	return tx.Hash, nil
}

// SubmitDirect sends a DirectPayment from the given wallet.
func (c *Connector) SubmitDirect(ctx context.Context, from, to Address, amount *big.Int, groupID string) (string, error) {
	value := new(big.Int).Add(amount, FixedFee)
	value.Add(value, directGasHeadroom)

	tx, err := c.chain.SendMessage(from, value, DirectPayment{
		To:      to,
		Amount:  amount,
		GroupID: groupID,
	})
	if err != nil {
		return "", errors.Wrap(err, "submit direct payment")
	}
	return tx.Hash, nil
}

// CheckConfirmation reports whether the transaction landed successfully. A
// transaction the chain has not seen yet is still pending (false, nil); a
// rejected transaction returns the violated precondition so the caller knows
// whether to retry, top up, or wait for unpause.
func (c *Connector) CheckConfirmation(ctx context.Context, hash string) (bool, error) {
	tx, err := c.chain.FindTransaction(hash)
	if err != nil {
		if err == errors.ErrTransactionNotFound {
			return false, nil
		}
		return false, err
	}
	if !tx.Success {
		return false, fmt.Errorf("transaction rejected: %s", tx.ExitReason)
	}
	return true, nil
}

// Transactions returns the full processed history, oldest first. The
// reconciliation sweep replays it against unsettled debts.
func (c *Connector) Transactions(ctx context.Context) ([]*Transaction, error) {
	return c.chain.History(), nil
}
