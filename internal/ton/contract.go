package ton

import (
	"math/big"
	"sort"
	"sync"

	"spliton/pkg/errors"
)

// SplitPayment is the settlement contract state machine. The host chain
// processes one inbound message at a time per contract, so the mutex makes
// that guarantee explicit when the contract runs in-process. Every handler
// validates all preconditions before touching state: a rejected message
// leaves no partial state change and its value is bounced by the chain.
type SplitPayment struct {
	mu          sync.Mutex
	owner       Address
	active      bool
	totalVolume *big.Int
	totalFees   *big.Int
	balance     *big.Int
}

// Inbound is one message delivered to the contract together with the value
// attached to it.
type Inbound struct {
	Sender  Address
	Value   *big.Int
	Message Message
}

// Outbound is a value transfer queued by a handler. All outbound transfers of
// one inbound message are sent together or not at all.
type Outbound struct {
	To     Address
	Amount *big.Int
}

// ContractInfo aggregates the query getters.
type ContractInfo struct {
	Owner       Address  `json:"owner"`
	IsActive    bool     `json:"is_active"`
	TotalVolume *big.Int `json:"total_volume"`
	TotalFees   *big.Int `json:"total_fees"`
	Balance     *big.Int `json:"balance"`
}

// NewSplitPayment deploys the contract in the Active state. The owner is
// fixed for the lifetime of the deployment; there is no ownership transfer.
func NewSplitPayment(owner Address) *SplitPayment {
	return &SplitPayment{
		owner:       owner,
		active:      true,
		totalVolume: big.NewInt(0),
		totalFees:   big.NewInt(0),
		balance:     big.NewInt(0),
	}
}

// Receive executes one inbound message atomically and returns the outbound
// transfers it queued. On error nothing was changed and the chain must bounce
// the inbound value back to the sender.
func (c *SplitPayment) Receive(in Inbound) ([]Outbound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value := in.Value
	if value == nil {
		value = big.NewInt(0)
	}

	switch msg := in.Message.(type) {
	case DirectPayment:
		return c.directPayment(value, msg)
	case BatchSettlement:
		return c.batchSettlement(in.Sender, value, msg)
	case PauseContract:
		return nil, c.pause(in.Sender, value)
	case ResumeContract:
		return nil, c.resume(in.Sender, value)
	case WithdrawFees:
		return c.withdrawFees(in.Sender, value, msg)
	case EmergencyWithdraw:
		return c.emergencyWithdraw(in.Sender, value)
	default:
		return nil, errors.ErrInvalidAddress
	}
}

func (c *SplitPayment) directPayment(value *big.Int, msg DirectPayment) ([]Outbound, error) {
	if !c.active {
		return nil, errors.ErrContractPaused
	}
	if msg.Amount == nil || msg.Amount.Sign() <= 0 {
		return nil, errors.ErrAmountNotPositive
	}
	if msg.Amount.Cmp(MaxSinglePayment) > 0 {
		return nil, errors.ErrPaymentLimitExceeded
	}
	required := new(big.Int).Add(msg.Amount, FixedFee)
	if value.Cmp(required) < 0 {
		return nil, errors.ErrInsufficientValue
	}

	// Excess value beyond amount+fee stays on the contract as gas reserve;
	// exact gas estimation from a client is unreliable, so no refund.
	c.balance.Add(c.balance, value)
	c.balance.Sub(c.balance, msg.Amount)
	c.totalVolume.Add(c.totalVolume, msg.Amount)
	c.totalFees.Add(c.totalFees, FixedFee)

	return []Outbound{{To: msg.To, Amount: new(big.Int).Set(msg.Amount)}}, nil
}

func (c *SplitPayment) batchSettlement(sender Address, value *big.Int, msg BatchSettlement) ([]Outbound, error) {
	if !c.active {
		return nil, errors.ErrContractPaused
	}
	if sender != c.owner {
		return nil, errors.ErrNotOwner
	}

	// Stable sorted iteration: amounts paid do not depend on order, but
	// deterministic replay does.
	addrs := make([]Address, 0, len(msg.Recipients))
	for addr := range msg.Recipients {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	total := big.NewInt(0)
	outbound := make([]Outbound, 0, len(addrs))
	for _, addr := range addrs {
		amount := msg.Recipients[addr]
		if amount == nil || amount.Sign() == 0 {
			// Zero entries are skipped entirely: no transfer, no event.
			continue
		}
		if amount.Sign() < 0 {
			return nil, errors.ErrAmountNotPositive
		}
		total.Add(total, amount)
		outbound = append(outbound, Outbound{To: addr, Amount: new(big.Int).Set(amount)})
	}

	// The whole batch settles from the balance after the inbound value is
	// credited; if it does not cover every payout the entire message fails.
	available := new(big.Int).Add(c.balance, value)
	if available.Cmp(total) < 0 {
		return nil, errors.ErrInsufficientBalance
	}

	c.balance.Add(c.balance, value)
	c.balance.Sub(c.balance, total)
	// Batch settlement is not fee-metered; the fee model only applies to the
	// single-user self-service path.
	c.totalVolume.Add(c.totalVolume, total)

	return outbound, nil
}

func (c *SplitPayment) pause(sender Address, value *big.Int) error {
	if sender != c.owner {
		return errors.ErrNotOwner
	}
	if !c.active {
		return errors.ErrContractPaused
	}
	c.active = false
	c.balance.Add(c.balance, value)
	return nil
}

func (c *SplitPayment) resume(sender Address, value *big.Int) error {
	if sender != c.owner {
		return errors.ErrNotOwner
	}
	if c.active {
		return errors.ErrContractActive
	}
	c.active = true
	c.balance.Add(c.balance, value)
	return nil
}

func (c *SplitPayment) withdrawFees(sender Address, value *big.Int, msg WithdrawFees) ([]Outbound, error) {
	if sender != c.owner {
		return nil, errors.ErrNotOwner
	}
	if msg.Amount == nil || msg.Amount.Sign() <= 0 {
		return nil, errors.ErrAmountNotPositive
	}
	if msg.Amount.Cmp(c.totalFees) > 0 {
		return nil, errors.ErrInsufficientFees
	}

	c.totalFees.Sub(c.totalFees, msg.Amount)
	c.balance.Add(c.balance, value)
	c.balance.Sub(c.balance, msg.Amount)

	return []Outbound{{To: c.owner, Amount: new(big.Int).Set(msg.Amount)}}, nil
}

func (c *SplitPayment) emergencyWithdraw(sender Address, value *big.Int) ([]Outbound, error) {
	if sender != c.owner {
		return nil, errors.ErrNotOwner
	}
	if c.active {
		return nil, errors.ErrContractActive
	}

	sweep := new(big.Int).Add(c.balance, value)
	sweep.Sub(sweep, StorageReserve)
	if sweep.Sign() <= 0 {
		return nil, errors.ErrInsufficientBalance
	}

	c.balance.Add(c.balance, value)
	c.balance.Sub(c.balance, sweep)

	return []Outbound{{To: c.owner, Amount: sweep}}, nil
}

// credit adds plain inbound value with no message body (deploy funding,
// top-ups). Accepted in either state.
func (c *SplitPayment) credit(value *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance.Add(c.balance, value)
}

// Query getters. They never change state and stay available while paused.

func (c *SplitPayment) Owner() Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

func (c *SplitPayment) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *SplitPayment) TotalVolume() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.totalVolume)
}

func (c *SplitPayment) TotalFees() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.totalFees)
}

func (c *SplitPayment) Balance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance)
}

func (c *SplitPayment) Info() ContractInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ContractInfo{
		Owner:       c.owner,
		IsActive:    c.active,
		TotalVolume: new(big.Int).Set(c.totalVolume),
		TotalFees:   new(big.Int).Set(c.totalFees),
		Balance:     new(big.Int).Set(c.balance),
	}
}

// ValidatePayment reports whether a DirectPayment of the given amount would
// currently pass the active-state and limit checks, without moving value.
func (c *SplitPayment) ValidatePayment(amount *big.Int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return false
	}
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	return amount.Cmp(MaxSinglePayment) <= 0
}
