package handler

import (
	"encoding/json"
	"net/http"

	"spliton/internal/settlement"
	"spliton/internal/wallet"
	"spliton/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type SettlementHandler struct {
	service   *settlement.Service
	directory *wallet.Directory
}

func NewSettlementHandler(service *settlement.Service, directory *wallet.Directory) *SettlementHandler {
	return &SettlementHandler{service: service, directory: directory}
}

// PreviewPlan returns the transfers that would settle the group right now.
// The plan is advisory and expires as soon as any debt changes.
func (h *SettlementHandler) PreviewPlan(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]

	plan, err := h.service.PreviewPlan(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, errors.ErrUnbalancedLedger) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to compute plan")
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

func (h *SettlementHandler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]

	result, err := h.service.ExecutePlan(r.Context(), groupID)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrEmptyPlan):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, errors.ErrUnbalancedLedger):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "Failed to execute settlement")
		}
		return
	}

	respondJSON(w, http.StatusAccepted, result)
}

func (h *SettlementHandler) PayDebt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid debt id")
		return
	}

	stl, err := h.service.ExecuteDirect(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrDebtNotFound):
			respondError(w, http.StatusNotFound, "Debt not found")
		case errors.Is(err, errors.ErrDebtAlreadySettled):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errors.ErrAddressNotResolved):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "Failed to submit payment")
		}
		return
	}

	respondJSON(w, http.StatusAccepted, stl)
}

func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid settlement id")
		return
	}

	stl, transfers, err := h.service.GetSettlement(r.Context(), id)
	if err != nil {
		if errors.Is(err, errors.ErrSettlementNotFound) {
			respondError(w, http.StatusNotFound, "Settlement not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load settlement")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settlement": stl,
		"transfers":  transfers,
	})
}

type linkWalletRequest struct {
	Address string `json:"address"`
}

func (h *SettlementHandler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req linkWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.directory.LinkAddress(r.Context(), userID, req.Address); err != nil {
		if errors.Is(err, errors.ErrInvalidAddress) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to link wallet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}
