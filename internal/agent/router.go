package agent

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/certwatch-app/cw-certcheck/internal/report"
	"github.com/certwatch-app/cw-certcheck/internal/version"
)

// Router returns the agent's HTTP API:
//
//	GET /metrics  Prometheus metrics
//	GET /healthz  liveness
//	GET /readyz   ready once the first run has completed
//	GET /report   latest report as JSON
//	GET /version  build information
func (a *Agent) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	mux.Handle("/metrics", a.metrics.Handler())

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck // best effort
	})

	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !a.Ready() {
			http.Error(w, "no completed run yet", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck // best effort
	})

	mux.Get("/report", a.handleReport)

	mux.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		a.writeJSON(w, version.GetInfo())
	})

	return mux
}

func (a *Agent) handleReport(w http.ResponseWriter, r *http.Request) {
	rep := a.LastReport()
	if rep == nil {
		http.Error(w, "no completed run yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := report.Render(w, rep, report.FormatJSON, a.config.Scan.CriticalThresholdDays); err != nil {
		a.logger.Warn("failed to write report", zap.Error(err))
	}
}

func (a *Agent) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", zap.Error(err))
	}
}
