package handler

import (
	"encoding/json"
	"net/http"

	"spliton/internal/ledger"
	"spliton/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type LedgerHandler struct {
	service *ledger.Service
}

func NewLedgerHandler(service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{service: service}
}

func (h *LedgerHandler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req ledger.RecordExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expense, debts, err := h.service.RecordExpense(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrNoParticipants) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"expense": expense,
		"debts":   debts,
	})
}

func (h *LedgerHandler) ListDebts(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]

	debts, err := h.service.UnsettledDebts(r.Context(), groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list debts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"group_id": groupID,
		"debts":    debts,
	})
}

func (h *LedgerHandler) ListUserDebts(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	debts, err := h.service.UserDebts(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list debts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"debts":   debts,
	})
}

func (h *LedgerHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]

	balances, err := h.service.NetBalances(r.Context(), groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute balances")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"group_id": groupID,
		"balances": balances,
	})
}

func (h *LedgerHandler) OffsetDebt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid debt id")
		return
	}

	offset, err := h.service.OffsetDebt(r.Context(), id)
	if err != nil {
		if errors.Is(err, errors.ErrDebtNotFound) {
			respondError(w, http.StatusNotFound, "Debt not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to offset debt")
		return
	}

	respondJSON(w, http.StatusCreated, offset)
}
