package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"stokvel/internal/domain"
	"stokvel/internal/stream"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (CORS)
	},
}

// EventLister pages through the persisted event journal.
type EventLister interface {
	ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error)
}

// EventsHandler serves the journal listing and the live event feed.
type EventsHandler struct {
	store  EventLister
	hub    *stream.Hub
	logger Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(store EventLister, hub *stream.Hub, log Logger) *EventsHandler {
	return &EventsHandler{store: store, hub: hub, logger: log}
}

// List returns journal events after the given sequence number, oldest first.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	afterSeq := int64(0)
	limit := 100
	if v := r.URL.Query().Get("after_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			afterSeq = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), afterSeq, limit)
	if err != nil {
		h.logger.Error("Failed to list events", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events":    events,
		"count":     len(events),
		"after_seq": afterSeq,
		"limit":     limit,
	})
}

// Stream pushes committed events to the client over a websocket.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	h.logger.Info("Event feed client connected", nil)

	// Pings reap dead connections; events can be minutes apart.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// Dropped by the hub for falling behind.
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("Event feed write failed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
