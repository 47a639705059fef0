package handler

import (
	"net/http"
	"strconv"
	"time"

	"stokvel/internal/fund"
	"stokvel/internal/middleware"
	"stokvel/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// RoundsHandler serves the round lifecycle and listing endpoints.
type RoundsHandler struct {
	service   *fund.Service
	validator *validator.Validator
	logger    Logger
}

// NewRoundsHandler creates a RoundsHandler.
func NewRoundsHandler(service *fund.Service, val *validator.Validator, log Logger) *RoundsHandler {
	return &RoundsHandler{service: service, validator: val, logger: log}
}

type openRoundRequest struct {
	InvestAmount decimal.Decimal `json:"invest_amount" validate:"required,gt=0,base_units"`
	MaturesAt    time.Time       `json:"matures_at" validate:"required"`
}

// Open deploys pool funds into a new investment round. Manager only.
func (h *RoundsHandler) Open(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req openRoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	round, err := h.service.OpenRound(r.Context(), operatorID, req.InvestAmount, req.MaturesAt)
	if err != nil {
		h.logger.Error("Round open failed", map[string]interface{}{"error": err.Error(), "operator_id": operatorID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, round)
}

type closeRoundRequest struct {
	MinSwapOut decimal.Decimal `json:"min_swap_out" validate:"omitempty,gte=0,base_units"`
}

// Close collects the oldest open round and realizes its reward. Manager only.
func (h *RoundsHandler) Close(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// The body is optional; min_swap_out defaults to zero (no slippage floor).
	var req closeRoundRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			return
		}
		if errs := h.validator.ValidateStructured(&req); errs != nil {
			respondValidationErrors(w, errs)
			return
		}
	}

	round, err := h.service.CloseRound(r.Context(), operatorID, req.MinSwapOut)
	if err != nil {
		h.logger.Error("Round close failed", map[string]interface{}{"error": err.Error(), "operator_id": operatorID})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, round)
}

// List returns every round in ascending order.
func (h *RoundsHandler) List(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.service.Rounds(r.Context())
	if err != nil {
		h.logger.Error("Failed to list rounds", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to list rounds")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rounds": rounds,
		"total":  len(rounds),
	})
}

// Get returns one round by index.
func (h *RoundsHandler) Get(w http.ResponseWriter, r *http.Request) {
	indexStr := mux.Vars(r)["index"]
	index, err := strconv.ParseInt(indexStr, 10, 64)
	if err != nil || index < 1 {
		respondError(w, http.StatusBadRequest, "Invalid round index")
		return
	}

	round, err := h.service.Round(r.Context(), index)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, round)
}
