// Package netting reduces a set of per-user net balances to a small set of
// settling transfers, minimizing on-chain transaction count. The greedy
// largest-pair heuristic is not guaranteed minimal (true minimum transaction
// settlement is NP-hard) but is deterministic and close in practice.
package netting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spliton/internal/domain"
	"spliton/pkg/errors"
)

// Epsilon bounds the rounding noise tolerated when checking that balances sum
// to zero, in the smallest unit the application accounts in.
var Epsilon = decimal.NewFromFloat(0.01)

// ComputePlan resolves the given balances to zero with the fewest transfers
// the greedy heuristic finds: each round pairs the current largest deficit
// with the current largest surplus, re-selected after every transfer so that
// independent implementations produce the same plan. It is a pure function:
// same input, same plan. Balances that do not sum to ~0 signal a bookkeeping
// bug upstream and fail loudly rather than produce a corrupt plan.
func ComputePlan(groupID string, balances map[string]decimal.Decimal) (*domain.SettlementPlan, error) {
	sum := decimal.Zero
	for _, b := range balances {
		sum = sum.Add(b)
	}
	if sum.Abs().GreaterThan(Epsilon) {
		return nil, errors.Wrap(errors.ErrUnbalancedLedger,
			fmt.Sprintf("balances sum to %s", sum.String()))
	}

	type entry struct {
		userID  string
		balance decimal.Decimal
	}

	var creditors, debtors []entry
	for userID, b := range balances {
		switch {
		case b.GreaterThan(Epsilon):
			creditors = append(creditors, entry{userID, b})
		case b.LessThan(Epsilon.Neg()):
			debtors = append(debtors, entry{userID, b})
		}
		// Near-zero balances are excluded entirely.
	}

	// Largest outstanding amount wins; ties break lexicographically by userID
	// so the plan is reproducible across implementations.
	maxCreditor := func() int {
		best := -1
		for i, c := range creditors {
			if c.balance.LessThanOrEqual(Epsilon) {
				continue
			}
			if best == -1 ||
				c.balance.GreaterThan(creditors[best].balance) ||
				(c.balance.Equal(creditors[best].balance) && c.userID < creditors[best].userID) {
				best = i
			}
		}
		return best
	}
	maxDebtor := func() int {
		best := -1
		for i, d := range debtors {
			if d.balance.GreaterThanOrEqual(Epsilon.Neg()) {
				continue
			}
			if best == -1 ||
				d.balance.LessThan(debtors[best].balance) ||
				(d.balance.Equal(debtors[best].balance) && d.userID < debtors[best].userID) {
				best = i
			}
		}
		return best
	}

	plan := &domain.SettlementPlan{GroupID: groupID, Total: decimal.Zero}

	for {
		i, j := maxDebtor(), maxCreditor()
		if i == -1 || j == -1 {
			break
		}

		owed := debtors[i].balance.Neg()
		due := creditors[j].balance

		amount := decimal.Min(owed, due)
		plan.Transfers = append(plan.Transfers, domain.Transfer{
			From:   debtors[i].userID,
			To:     creditors[j].userID,
			Amount: amount,
		})
		plan.Total = plan.Total.Add(amount)

		debtors[i].balance = debtors[i].balance.Add(amount)
		creditors[j].balance = creditors[j].balance.Sub(amount)
	}

	return plan, nil
}

// Replay applies the plan's transfers to a copy of the input balances and
// returns the residual per user. Every residual must be within Epsilon of
// zero for a correct plan; exposed for tests and invariant checks.
func Replay(balances map[string]decimal.Decimal, plan *domain.SettlementPlan) map[string]decimal.Decimal {
	residual := make(map[string]decimal.Decimal, len(balances))
	for userID, b := range balances {
		residual[userID] = b
	}
	for _, t := range plan.Transfers {
		residual[t.From] = residual[t.From].Add(t.Amount)
		residual[t.To] = residual[t.To].Sub(t.Amount)
	}
	return residual
}
