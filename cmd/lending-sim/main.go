// ==============================================================================
// LENDING VENUE SIMULATOR - cmd/lending-sim/main.go
// ==============================================================================
// Local stand-in for the external lending and exchange venues. Positions pay a
// fixed yield at collection, split between the settlement asset and an
// incentive asset so the swap path gets exercised too.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"stokvel/pkg/logger"
)

type position struct {
	ReceiptID uuid.UUID       `json:"receipt_id"`
	Amount    decimal.Decimal `json:"amount"`
	MaturesAt time.Time       `json:"matures_at"`
	Collected bool            `json:"collected"`
}

type simulator struct {
	mu        sync.Mutex
	positions map[uuid.UUID]*position

	yieldBPS decimal.Decimal // total yield on principal, basis points
	altBPS   decimal.Decimal // portion of proceeds paid in the incentive asset
	altAsset string
	swapRate decimal.Decimal // settlement units per incentive unit
	logger   logger.Logger
}

func newSimulator(log logger.Logger) *simulator {
	return &simulator{
		positions: make(map[uuid.UUID]*position),
		yieldBPS:  getDecimalEnv("SIM_YIELD_BPS", decimal.NewFromInt(500)),
		altBPS:    getDecimalEnv("SIM_ALT_BPS", decimal.NewFromInt(100)),
		altAsset:  getEnv("SIM_ALT_ASSET", "INCV"),
		swapRate:  getDecimalEnv("SIM_SWAP_RATE", decimal.NewFromInt(1)),
		logger:    log,
	}
}

type investRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	MaturesAt time.Time       `json:"matures_at"`
}

func (s *simulator) invest(w http.ResponseWriter, r *http.Request) {
	var req investRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	p := &position{
		ReceiptID: uuid.New(),
		Amount:    req.Amount,
		MaturesAt: req.MaturesAt,
	}

	s.mu.Lock()
	s.positions[p.ReceiptID] = p
	s.mu.Unlock()

	s.logger.Info("position opened", map[string]interface{}{
		"receipt_id": p.ReceiptID.String(),
		"amount":     p.Amount.String(),
		"matures_at": p.MaturesAt.Format(time.RFC3339),
	})

	respondJSON(w, http.StatusCreated, map[string]string{"receipt_id": p.ReceiptID.String()})
}

func (s *simulator) collect(w http.ResponseWriter, r *http.Request) {
	receiptID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid receipt id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[receiptID]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown receipt")
		return
	}
	if p.Collected {
		respondError(w, http.StatusConflict, "position already collected")
		return
	}
	p.Collected = true

	bps := decimal.NewFromInt(10_000)
	// Integral base units throughout: both splits round down, the settlement
	// leg absorbs the remainder.
	gross := p.Amount.Add(p.Amount.Mul(s.yieldBPS).Div(bps).Floor())
	alt := gross.Mul(s.altBPS).Div(bps).Floor()
	settlement := gross.Sub(alt)

	s.logger.Info("position collected", map[string]interface{}{
		"receipt_id":        receiptID.String(),
		"principal":         p.Amount.String(),
		"settlement_amount": settlement.String(),
		"alt_amount":        alt.String(),
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settlement_amount": settlement,
		"alt_amount":        alt,
		"alt_asset":         s.altAsset,
	})
}

type swapRequest struct {
	FromAsset string          `json:"from_asset"`
	Amount    decimal.Decimal `json:"amount"`
	MinOut    decimal.Decimal `json:"min_out"`
}

func (s *simulator) swap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if req.FromAsset != s.altAsset {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported asset %q", req.FromAsset))
		return
	}

	out := req.Amount.Mul(s.swapRate).Floor()
	if out.LessThan(req.MinOut) {
		respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("cannot fill above %s, would fill %s", req.MinOut, out))
		return
	}

	s.logger.Info("swap filled", map[string]interface{}{
		"from_asset": req.FromAsset,
		"amount_in":  req.Amount.String(),
		"amount_out": out.String(),
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{"amount_out": out})
}

func main() {
	log := logger.New("lending-sim")
	sim := newSimulator(log)

	r := mux.NewRouter()
	r.HandleFunc("/positions", sim.invest).Methods("POST")
	r.HandleFunc("/positions/{id}/collect", sim.collect).Methods("POST")
	r.HandleFunc("/swap", sim.swap).Methods("POST")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods("GET")

	addr := ":" + getEnv("SIM_PORT", "9100")
	log.Info("Lending simulator started", map[string]interface{}{"address": addr})
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("Simulator failed", map[string]interface{}{"error": err.Error()})
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
