package main

import (
	"fmt"
	"log"
	"math/big"

	"github.com/shopspring/decimal"

	"spliton/internal/netting"
	"spliton/internal/ton"
	"spliton/pkg/logger"
)

// Runs the full settlement flow against the in-memory chain: a four-person
// trip, the netted batch, a self-service direct payment, and the owner's
// pause/withdraw controls.
func main() {
	fmt.Println("================================================================")
	fmt.Println("   SPLITON - TON SETTLEMENT SIMULATION")
	fmt.Println("================================================================")

	owner := ton.AddressFromSeed("spliton-operator")
	chain := ton.NewChain(owner, logger.NewNop())
	chain.Faucet(owner, ton.Nano("1000"))

	alice := ton.AddressFromSeed("alice")
	bob := ton.AddressFromSeed("bob")
	carol := ton.AddressFromSeed("carol")
	dave := ton.AddressFromSeed("dave")
	chain.Faucet(dave, ton.Nano("10"))

	fmt.Println("\n[1] Contract deployed")
	fmt.Printf("    - Address: %s\n", chain.ContractAddress())
	fmt.Printf("    - Owner:   %s\n", owner)

	// 2. Net a four-person trip ledger down to three transfers
	fmt.Println("\n[2] Netting the trip ledger")
	balances := map[string]decimal.Decimal{
		"alice": decimal.RequireFromString("212.5"),
		"bob":   decimal.RequireFromString("-87.5"),
		"carol": decimal.RequireFromString("12.5"),
		"dave":  decimal.RequireFromString("-137.5"),
	}
	plan, err := netting.ComputePlan("trip", balances)
	if err != nil {
		log.Fatalf("netting failed: %v", err)
	}
	for _, t := range plan.Transfers {
		fmt.Printf("    - %s pays %s: %s TON\n", t.From, t.To, t.Amount.String())
	}
	fmt.Printf("    - Total moved: %s TON in %d transfers\n", plan.Total.String(), len(plan.Transfers))

	// 3. Execute the plan as one BatchSettlement
	fmt.Println("\n[3] Submitting BatchSettlement (owner-signed)")
	addresses := map[string]ton.Address{"alice": alice, "bob": bob, "carol": carol, "dave": dave}
	recipients := make(map[ton.Address]*big.Int)
	for _, t := range plan.Transfers {
		addr := addresses[t.To]
		nano := ton.ToNano(t.Amount)
		if existing, ok := recipients[addr]; ok {
			existing.Add(existing, nano)
		} else {
			recipients[addr] = nano
		}
	}
	value := new(big.Int).Add(ton.ToNano(plan.Total), ton.Nano("0.2"))
	tx, err := chain.SendMessage(owner, value, ton.BatchSettlement{Recipients: recipients, GroupID: "trip"})
	if err != nil {
		log.Fatalf("batch submission failed: %v", err)
	}
	fmt.Printf("    - Tx: %s (success=%t)\n", tx.Hash, tx.Success)
	fmt.Printf("    - alice balance: %s TON\n", ton.FromNano(chain.BalanceOf(alice)))
	fmt.Printf("    - carol balance: %s TON\n", ton.FromNano(chain.BalanceOf(carol)))

	// 4. Self-service DirectPayment with the flat fee
	fmt.Println("\n[4] DirectPayment (dave pays alice 5 TON, fee 0.05)")
	value = new(big.Int).Add(ton.Nano("5"), ton.FixedFee)
	value.Add(value, ton.Nano("0.1"))
	tx, err = chain.SendMessage(dave, value, ton.DirectPayment{To: alice, Amount: ton.Nano("5"), GroupID: "trip"})
	if err != nil {
		log.Fatalf("direct payment failed: %v", err)
	}
	fmt.Printf("    - Tx: %s (success=%t)\n", tx.Hash, tx.Success)

	info := chain.Contract().Info()
	fmt.Printf("    - Contract volume: %s TON, fees: %s TON\n",
		ton.FromNano(info.TotalVolume), ton.FromNano(info.TotalFees))

	// 5. Owner controls: pause, rejected payment bounces, fee withdrawal
	fmt.Println("\n[5] Pause and recovery path")
	if _, err := chain.SendMessage(owner, big.NewInt(0), ton.PauseContract{}); err != nil {
		log.Fatalf("pause failed: %v", err)
	}
	fmt.Println("    - Contract paused")

	tx, _ = chain.SendMessage(dave, ton.Nano("1.05"), ton.DirectPayment{To: alice, Amount: ton.Nano("1"), GroupID: "trip"})
	fmt.Printf("    - Payment while paused: success=%t, reason=%q (value bounced)\n", tx.Success, tx.ExitReason)

	tx, err = chain.SendMessage(owner, big.NewInt(0), ton.WithdrawFees{Amount: chain.Contract().TotalFees()})
	if err != nil {
		log.Fatalf("fee withdrawal failed: %v", err)
	}
	fmt.Printf("    - Fees withdrawn: success=%t\n", tx.Success)

	tx, err = chain.SendMessage(owner, big.NewInt(0), ton.EmergencyWithdraw{})
	if err != nil {
		log.Fatalf("emergency withdraw failed: %v", err)
	}
	fmt.Printf("    - Emergency sweep: success=%t, residual contract balance: %s TON\n",
		tx.Success, ton.FromNano(chain.Contract().Balance()))

	fmt.Println("\n[6] Transaction history")
	for _, h := range chain.History() {
		status := "OK"
		if !h.Success {
			status = "REJECTED"
		}
		fmt.Printf("    - #%d 0x%08x %s\n", h.Seq, h.Opcode, status)
	}

	fmt.Println("\n================================================================")
	fmt.Println("SIMULATION COMPLETE")
}
