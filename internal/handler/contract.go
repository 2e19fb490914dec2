package handler

import (
	"math/big"
	"net/http"

	"spliton/internal/ton"
)

type ContractHandler struct {
	chain *ton.Chain
}

func NewContractHandler(chain *ton.Chain) *ContractHandler {
	return &ContractHandler{chain: chain}
}

// GetContractInfo answers the query getters. Getters stay readable while the
// contract is paused.
func (h *ContractHandler) GetContractInfo(w http.ResponseWriter, r *http.Request) {
	info := h.chain.Contract().Info()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":      h.chain.ContractAddress(),
		"owner":        info.Owner,
		"is_active":    info.IsActive,
		"total_volume": ton.FromNano(info.TotalVolume),
		"total_fees":   ton.FromNano(info.TotalFees),
		"balance":      ton.FromNano(info.Balance),
	})
}

// ValidatePayment answers whether a DirectPayment of the given amount would
// pass the contract's checks, without moving value.
func (h *ContractHandler) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("amount")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "amount query parameter is required")
		return
	}

	nano, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		respondError(w, http.StatusBadRequest, "amount must be an integer nanoton value")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"amount": nano.String(),
		"valid":  h.chain.Contract().ValidatePayment(nano),
	})
}

func (h *ContractHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": h.chain.History(),
	})
}
