// Package http serves the ledger's read endpoints, metrics and health over
// plain HTTP/JSON.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter mounts every endpoint. Requests without a deadline get timeout.
func NewRouter(products *ProductsHandler, events *EventsHandler, store Pinger, timeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/products", products.List)
	mux.HandleFunc("GET /api/v1/products/{id}", products.Get)
	mux.HandleFunc("GET /api/v1/products/{id}/history", products.History)
	mux.HandleFunc("GET /api/v1/products/{id}/verify", products.Verify)
	mux.Handle("/api/v1/events", events)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if timeout <= 0 {
		return mux
	}
	return withTimeout(mux, timeout)
}

func withTimeout(next http.Handler, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
