package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/riverdb/riverdb/protocol"
)

// NewHandler wires the query endpoint, the metrics scrape, and a status
// probe behind request logging and permissive CORS for browser drivers.
func NewHandler(core *Core, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/query", core.handleQuery).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/status", handleStatus).Methods(http.MethodGet)
	r.Use(requestLogger(logger))
	return cors.AllowAll().Handler(r)
}

func (c *Core) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q protocol.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, c.logger, &protocol.Response{
			StatusCode:   protocol.StatusBrokenClientError,
			ErrorMessage: "malformed query: " + err.Error(),
		})
		return
	}
	writeJSON(w, c.logger, c.Exec(r.Context(), &q))
}

func handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, resp *protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("response write failed", zap.Error(err))
	}
}

func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
