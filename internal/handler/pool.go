package handler

import (
	"net/http"

	"stokvel/internal/fund"
	"stokvel/internal/middleware"
	"stokvel/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// PoolHandler serves the user-facing pool endpoints.
type PoolHandler struct {
	service   *fund.Service
	validator *validator.Validator
	logger    Logger
}

// NewPoolHandler creates a PoolHandler.
func NewPoolHandler(service *fund.Service, val *validator.Validator, log Logger) *PoolHandler {
	return &PoolHandler{service: service, validator: val, logger: log}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0,base_units"`
}

// Deposit stakes funds into the pool for the authenticated user.
func (h *PoolHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	account, err := h.service.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		h.logger.Error("Deposit failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, account)
}

// RequestWithdraw marks part of the user's stake for withdrawal.
func (h *PoolHandler) RequestWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	account, err := h.service.RequestWithdraw(r.Context(), userID, req.Amount)
	if err != nil {
		h.logger.Error("Withdraw request failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// CancelWithdraw returns part or all of a pending request to the stake.
func (h *PoolHandler) CancelWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	account, err := h.service.CancelWithdraw(r.Context(), userID, req.Amount)
	if err != nil {
		h.logger.Error("Withdraw cancel failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, account)
}

// CompleteWithdraw pays out the user's full pending request.
func (h *PoolHandler) CompleteWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	amount, err := h.service.CompleteWithdraw(r.Context(), userID)
	if err != nil {
		h.logger.Error("Withdraw complete failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"withdrawn": amount})
}

// Settle folds matured rewards into the user's balances.
func (h *PoolHandler) Settle(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	settled, err := h.service.SettleRewards(r.Context(), userID)
	if err != nil {
		h.logger.Error("Settlement failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"settled_reward": settled})
}

// Me returns the authenticated user's settlement-previewed account.
func (h *PoolHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	view, err := h.service.Account(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// GetAccount returns any account by id. Operator only.
func (h *PoolHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := uuid.Parse(idStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	view, err := h.service.Account(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// GetPool returns the pool summary.
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Pool(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch pool summary", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch pool summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
