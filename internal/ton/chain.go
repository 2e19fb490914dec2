package ton

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"spliton/pkg/errors"
	"spliton/pkg/logger"
)

// Transaction is one processed inbound message and its outcome.
type Transaction struct {
	Hash       string     `json:"hash"`
	Seq        uint64     `json:"seq"`
	Time       time.Time  `json:"time"`
	Sender     Address    `json:"sender"`
	Value      *big.Int   `json:"value"`
	Opcode     uint32     `json:"opcode"`
	GroupID    string     `json:"group_id,omitempty"`
	Success    bool       `json:"success"`
	ExitReason string     `json:"exit_reason,omitempty"`
	Outbound   []Outbound `json:"outbound,omitempty"`
}

// Chain simulates the host network for one SplitPayment deployment: account
// balances, serialized message execution, bounce-on-failure, and a queryable
// transaction history.
type Chain struct {
	mu           sync.Mutex
	accounts     map[Address]*big.Int
	contractAddr Address
	contract     *SplitPayment
	seq          uint64
	txs          []*Transaction
	txIndex      map[string]*Transaction
	logger       logger.Logger
}

// NewChain deploys a SplitPayment contract owned by owner at the default
// address and seeds the contract account with the storage reserve.
func NewChain(owner Address, log logger.Logger) *Chain {
	return NewChainAt(AddressFromSeed("spliton-split-payment"), owner, log)
}

// NewChainAt deploys the contract at a caller-chosen address. Used when the
// deployment address comes from configuration.
func NewChainAt(contractAddr, owner Address, log logger.Logger) *Chain {
	contract := NewSplitPayment(owner)
	contract.credit(new(big.Int).Set(StorageReserve))

	c := &Chain{
		accounts:     make(map[Address]*big.Int),
		contractAddr: contractAddr,
		contract:     contract,
		txIndex:      make(map[string]*Transaction),
		logger:       log,
	}
	return c
}

// ContractAddress returns the address the contract is deployed at.
func (c *Chain) ContractAddress() Address {
	return c.contractAddr
}

// Contract exposes the deployed contract for query getters.
func (c *Chain) Contract() *SplitPayment {
	return c.contract
}

// Faucet credits an external account. Simulation only.
func (c *Chain) Faucet(addr Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creditAccount(addr, amount)
}

// BalanceOf returns an account's native balance.
func (c *Chain) BalanceOf(addr Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if addr == c.contractAddr {
		return c.contract.Balance()
	}
	if bal, ok := c.accounts[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// SendMessage delivers one message to the contract. The whole handler runs
// exclusively: all outbound transfers are applied before the next message is
// processed. A precondition failure inside the contract produces a failed
// transaction whose value (minus gas) bounces back to the sender; that is not
// a submission error. Submission errors (unknown sender, value not covered)
// return before any transaction exists.
func (c *Chain) SendMessage(sender Address, value *big.Int, msg Message) (*Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost := new(big.Int).Add(value, ProcessingFee)
	bal, ok := c.accounts[sender]
	if !ok || bal.Cmp(cost) < 0 {
		return nil, errors.Wrap(errors.ErrInsufficientBalance, "sender cannot cover value plus gas")
	}
	bal.Sub(bal, cost)

	c.seq++
	tx := &Transaction{
		Seq:     c.seq,
		Time:    time.Now().UTC(),
		Sender:  sender,
		Value:   new(big.Int).Set(value),
		Opcode:  msg.Opcode(),
		GroupID: groupIDOf(msg),
	}
	tx.Hash = txHash(tx)

	outbound, err := c.contract.Receive(Inbound{Sender: sender, Value: value, Message: msg})
	if err != nil {
		// Bounce: the inbound value returns to the sender, gas is burnt.
		bal.Add(bal, value)
		tx.Success = false
		tx.ExitReason = err.Error()
		c.record(tx)
		c.logger.Warn("message rejected", map[string]interface{}{
			"tx_hash": tx.Hash,
			"opcode":  fmt.Sprintf("0x%08x", tx.Opcode),
			"reason":  tx.ExitReason,
		})
		return tx, nil
	}

	for _, out := range outbound {
		c.creditAccount(out.To, out.Amount)
	}
	tx.Success = true
	tx.Outbound = outbound
	c.record(tx)
	c.logger.Info("message applied", map[string]interface{}{
		"tx_hash":   tx.Hash,
		"opcode":    fmt.Sprintf("0x%08x", tx.Opcode),
		"outbound":  len(outbound),
		"group_id":  tx.GroupID,
	})
	return tx, nil
}

// FindTransaction looks a processed transaction up by hash.
func (c *Chain) FindTransaction(hash string) (*Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txIndex[hash]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return tx, nil
}

// History returns processed transactions in execution order.
func (c *Chain) History() []*Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Transaction, len(c.txs))
	copy(out, c.txs)
	return out
}

func (c *Chain) creditAccount(addr Address, amount *big.Int) {
	if addr == c.contractAddr {
		c.contract.credit(amount)
		return
	}
	if bal, ok := c.accounts[addr]; ok {
		bal.Add(bal, amount)
		return
	}
	c.accounts[addr] = new(big.Int).Set(amount)
}

func (c *Chain) record(tx *Transaction) {
	c.txs = append(c.txs, tx)
	c.txIndex[tx.Hash] = tx
}

func groupIDOf(msg Message) string {
	switch m := msg.(type) {
	case DirectPayment:
		return m.GroupID
	case BatchSettlement:
		return m.GroupID
	default:
		return ""
	}
}

func txHash(tx *Transaction) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%08x|%d", tx.Seq, tx.Sender, tx.Opcode, tx.Time.UnixNano())))
	return hex.EncodeToString(sum[:])
}
