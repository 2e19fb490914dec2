package ton

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// NanoPerTon is the number of nano-units in one TON.
const NanoPerTon = 1_000_000_000

// Contract constants, in nanoton.
var (
	// FixedFee is the flat contract fee charged on every DirectPayment.
	FixedFee = Nano("0.05")
	// MaxSinglePayment caps a single DirectPayment; a deliberate circuit
	// breaker against fat-finger or exploit-scale transfers.
	MaxSinglePayment = Nano("100")
	// StorageReserve is the minimum balance the contract must keep to stay
	// allocated on chain; EmergencyWithdraw sweeps everything above it.
	StorageReserve = Nano("0.01")
	// ProcessingFee approximates the gas consumed by one inbound message.
	ProcessingFee = Nano("0.005")
)

// Nano converts a decimal TON amount (as string) to nanoton. Panics on bad
// input; intended for constants and tests.
func Nano(ton string) *big.Int {
	d, err := decimal.NewFromString(ton)
	if err != nil {
		panic(err)
	}
	return ToNano(d)
}

// ToNano converts a decimal TON amount to nanoton, truncating below 1 nano.
func ToNano(ton decimal.Decimal) *big.Int {
	return ton.Shift(9).Truncate(0).BigInt()
}

// FromNano converts nanoton back to a decimal TON amount.
func FromNano(nano *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(nano, -9)
}
