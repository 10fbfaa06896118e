package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dkwon/alpharank/internal/api/handlers"
	"github.com/dkwon/alpharank/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(factorHandler *handlers.FactorHandler, runHandler *handlers.RunHandler, catalogHandler *handlers.CatalogHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Factor endpoints
	api.HandleFunc("/factors/validate", factorHandler.Validate).Methods("POST")
	api.HandleFunc("/factors/testrun", factorHandler.TestRun).Methods("POST")

	// Strategy run endpoints
	api.HandleFunc("/strategies/{id}/run", runHandler.RunStrategy).Methods("POST")
	api.HandleFunc("/runs/{id}/progress", runHandler.Progress).Methods("GET")
	api.HandleFunc("/runs/{id}/result", runHandler.Result).Methods("GET")
	api.HandleFunc("/runs/{id}/cancel", runHandler.Cancel).Methods("POST")
	api.HandleFunc("/runs/{id}/ws", runHandler.ProgressStream).Methods("GET")

	// Catalog endpoints
	api.HandleFunc("/catalog/sources", catalogHandler.ListSources).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "alpharank-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
