package handler

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db          *sqlx.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redisClient: redisClient, startTime: time.Now()}
}

// Health is the liveness probe. Responding at all means the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"uptime_s": int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready reports whether the service can reach its dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if err := h.redisClient.Ping(r.Context()).Err(); err != nil {
		checks["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	} else {
		checks["redis"] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{"status": state, "checks": checks})
}
