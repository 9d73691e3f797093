package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/aggregator"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/monitor"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

const defaultReportDays = 30

// Server exposes the reporting and alerting API. Reporting endpoints
// surface store errors as hard failures; the monitor's background work is
// observable only through /metrics and logs.
type Server struct {
	agg      *aggregator.Aggregator
	mon      *monitor.Monitor
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
	logger   *slog.Logger
}

// NewServer creates an API server.
func NewServer(agg *aggregator.Aggregator, mon *monitor.Monitor, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		agg:      agg,
		mon:      mon,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/costs/aggregated", s.handleAggregated)
	s.mux.HandleFunc("GET /api/v1/costs/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/v1/costs/forecasts", s.handleForecasts)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	s.mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", s.handleResolveAlert)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAggregated(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start, end, err := dateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	costs, err := s.agg.GetAggregatedCosts(ctx, start, end, serviceIDs(r))
	if err != nil {
		s.logger.Error("aggregated costs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, costs)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start, end, err := dateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := s.agg.GetCostSummary(ctx, start, end)
	if err != nil {
		s.logger.Error("cost summary", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start, end, err := dateRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	forecasts, err := s.agg.GetCostForecasts(ctx, start, end, serviceIDs(r))
	if err != nil {
		s.logger.Error("cost forecasts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, forecasts)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	alerts, err := s.mon.GetActiveAlerts(ctx, r.URL.Query().Get("service"))
	if err != nil {
		s.logger.Error("list alerts", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, alerts)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id := r.PathValue("id")
	if err := s.mon.ResolveAlert(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		s.logger.Error("resolve alert", "alert", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "resolved", "id": id})
}

// dateRange parses start/end query parameters, defaulting to the trailing
// 30 days. Dates accept YYYY-MM-DD or RFC3339; a malformed value is an
// error rather than a silent fallback, so a typo never reports the wrong
// window.
func dateRange(r *http.Request) (start, end time.Time, err error) {
	end = time.Now().UTC()
	start = end.AddDate(0, 0, -defaultReportDays)

	if v := r.URL.Query().Get("start"); v != "" {
		start, err = parseDate(v)
		if err != nil {
			return start, end, fmt.Errorf("invalid start date %q, want YYYY-MM-DD or RFC3339", v)
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		end, err = parseDate(v)
		if err != nil {
			return start, end, fmt.Errorf("invalid end date %q, want YYYY-MM-DD or RFC3339", v)
		}
	}
	return start, end, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func serviceIDs(r *http.Request) []string {
	v := r.URL.Query().Get("services")
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
