package handler

import (
	"net/http"
	"strconv"
	"time"

	"stokvel/internal/authority"
	"stokvel/internal/custody"
	"stokvel/internal/fund"
	"stokvel/internal/middleware"
	"stokvel/pkg/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdminHandler serves operator login and the owner/manager control surface.
type AdminHandler struct {
	fund      *fund.Service
	authority *authority.Service
	custody   *custody.Service
	blacklist middleware.TokenBlacklist
	tokenTTL  time.Duration
	validator *validator.Validator
	logger    Logger
}

// NewAdminHandler creates an AdminHandler. The blacklist is optional; when
// nil, logout is a no-op beyond the client discarding its token.
func NewAdminHandler(
	fundSvc *fund.Service,
	auth *authority.Service,
	cust *custody.Service,
	blacklist middleware.TokenBlacklist,
	tokenTTL time.Duration,
	val *validator.Validator,
	log Logger,
) *AdminHandler {
	return &AdminHandler{
		fund:      fundSvc,
		authority: auth,
		custody:   cust,
		blacklist: blacklist,
		tokenTTL:  tokenTTL,
		validator: val,
		logger:    log,
	}
}

// Login authenticates an operator and issues an access token.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req authority.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	resp, err := h.authority.Login(r.Context(), &req)
	if err != nil {
		h.logger.Warn("Operator login failed", map[string]interface{}{"name": req.Name})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Logout revokes the presented operator token.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerTokenFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if h.blacklist != nil {
		// Blacklisting for the full issue TTL over-covers tokens close to
		// expiry, which is harmless.
		if err := h.blacklist.Blacklist(r.Context(), token, h.tokenTTL); err != nil {
			h.logger.Error("Failed to revoke token", map[string]interface{}{"error": err.Error()})
			respondError(w, http.StatusInternalServerError, "Failed to revoke token")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// RegisterOperator creates a new operator principal. Owner only.
func (h *AdminHandler) RegisterOperator(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req authority.RegisterOperatorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	op, err := h.authority.RegisterOperator(r.Context(), callerID, &req)
	if err != nil {
		h.logger.Error("Operator registration failed", map[string]interface{}{"error": err.Error(), "caller_id": callerID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, op)
}

type capacityRequest struct {
	Capacity decimal.Decimal `json:"capacity" validate:"required,gt=0,base_units"`
}

// SetCapacity updates the pool deposit ceiling. Owner only.
func (h *AdminHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req capacityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.fund.SetCapacity(r.Context(), callerID, req.Capacity); err != nil {
		h.logger.Error("Capacity update failed", map[string]interface{}{"error": err.Error(), "caller_id": callerID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "capacity_updated"})
}

type assignRoleRequest struct {
	OperatorID uuid.UUID `json:"operator_id" validate:"required"`
}

// SetManager assigns the manager role. Owner only.
func (h *AdminHandler) SetManager(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.fund.SetManager(r.Context(), callerID, req.OperatorID); err != nil {
		h.logger.Error("Manager change failed", map[string]interface{}{"error": err.Error(), "caller_id": callerID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "manager_updated"})
}

// SetFeeRecipient assigns the fee recipient. Owner only.
func (h *AdminHandler) SetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.fund.SetFeeRecipient(r.Context(), callerID, req.OperatorID); err != nil {
		h.logger.Error("Fee recipient change failed", map[string]interface{}{"error": err.Error(), "caller_id": callerID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "fee_recipient_updated"})
}

type proposeOwnerRequest struct {
	SuccessorID uuid.UUID `json:"successor_id" validate:"required"`
}

// ProposeOwner nominates a successor owner. Owner only; the successor must
// accept before the transfer takes effect.
func (h *AdminHandler) ProposeOwner(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req proposeOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	if err := h.fund.ProposeOwner(r.Context(), callerID, req.SuccessorID); err != nil {
		h.logger.Error("Owner proposal failed", map[string]interface{}{"error": err.Error(), "caller_id": callerID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "owner_proposed"})
}

// AcceptOwner completes a pending ownership transfer. Proposed successor only.
func (h *AdminHandler) AcceptOwner(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.fund.AcceptOwner(r.Context(), callerID); err != nil {
		h.logger.Error("Owner acceptance failed", map[string]interface{}{"error": err.Error(), "caller_id": callerID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "owner_accepted"})
}

// GetAuthority returns the active role assignments.
func (h *AdminHandler) GetAuthority(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.authority.Authority(r.Context()))
}

// GetVault returns custody's booked cash position.
func (h *AdminHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	vault, err := h.custody.Vault(r.Context())
	if err != nil {
		h.logger.Error("Failed to fetch vault", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch vault")
		return
	}

	respondJSON(w, http.StatusOK, vault)
}

// GetVaultMovements lists the custody cash journal, newest first.
func (h *AdminHandler) GetVaultMovements(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	movements, err := h.custody.Movements(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to fetch vault movements", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch vault movements")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"movements": movements,
		"limit":     limit,
		"offset":    offset,
	})
}
