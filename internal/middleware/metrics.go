package middleware

import (
	"net/http"
	"strconv"
	"time"

	"stokvel/internal/metrics"

	"github.com/gorilla/mux"
)

// Metrics records request durations into the Prometheus histogram, labelled
// by route template so path parameters do not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}

		// Probes and the scrape endpoint itself would dominate the histogram.
		if path == "/health" || path == "/ready" || path == "/metrics" {
			return
		}

		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}
