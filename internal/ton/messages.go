package ton

import "math/big"

// Opcodes tag inbound message variants on the wire.
const (
	OpDirectPayment     uint32 = 0x44501a90
	OpBatchSettlement   uint32 = 0x44501a91
	OpPauseContract     uint32 = 0x44501a92
	OpResumeContract    uint32 = 0x44501a93
	OpWithdrawFees      uint32 = 0x44501a94
	OpEmergencyWithdraw uint32 = 0x44501a95
)

// Message is one opcode-tagged inbound instruction. Each message is a one-shot
// fire-and-forget unit: validated and fully executed, or rejected, within a
// single transaction.
type Message interface {
	Opcode() uint32
}

// DirectPayment pays a single recipient. Any caller may send it for
// themselves; it is fee-metered with FixedFee.
type DirectPayment struct {
	To      Address
	Amount  *big.Int
	GroupID string
}

func (DirectPayment) Opcode() uint32 { return OpDirectPayment }

// BatchSettlement pays many recipients from one inbound message. Owner-only:
// it moves funds on behalf of many users at once and is invoked by the
// off-chain settlement coordinator, not end users.
type BatchSettlement struct {
	Recipients map[Address]*big.Int
	GroupID    string
}

func (BatchSettlement) Opcode() uint32 { return OpBatchSettlement }

// PauseContract halts money-moving operations. Owner-only.
type PauseContract struct{}

func (PauseContract) Opcode() uint32 { return OpPauseContract }

// ResumeContract re-enables money-moving operations. Owner-only.
type ResumeContract struct{}

func (ResumeContract) Opcode() uint32 { return OpResumeContract }

// WithdrawFees moves accumulated fees to the owner. Allowed in either state.
type WithdrawFees struct {
	Amount *big.Int
}

func (WithdrawFees) Opcode() uint32 { return OpWithdrawFees }

// EmergencyWithdraw sweeps the contract balance to the owner. Only allowed
// while paused: recovery is pause-then-drain, never drain while money moves.
type EmergencyWithdraw struct{}

func (EmergencyWithdraw) Opcode() uint32 { return OpEmergencyWithdraw }
