package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-data-normalizer/internal/domain"
)

const (
	defaultTop = 10
	maxTop     = 100
)

// ReportProvider returns the most recent run's report, or nil before the first run.
type ReportProvider interface {
	LatestReport() *domain.Report
}

// Server exposes health, readiness, metrics and ranking HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /v1/report and /v1/rankings routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reports ReportProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/report", handleReport(reports))
	mux.HandleFunc("GET /v1/rankings", handleRankings(reports))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleReport(reports ReportProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := reports.LatestReport()
		if report == nil {
			writeError(w, http.StatusServiceUnavailable, "no completed run yet")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// Ranking is one row of the /v1/rankings response.
type Ranking struct {
	Rank     int     `json:"rank"`
	Category string  `json:"category"`
	Median   float64 `json:"median"`
	Mean     float64 `json:"mean"`
	Years    int     `json:"years"`
	Events   int     `json:"events"`
}

// RankingsResponse is the /v1/rankings body.
type RankingsResponse struct {
	RunID     string           `json:"run_id"`
	Reference domain.YearMonth `json:"reference"`
	Measure   domain.Measure   `json:"measure"`
	Rankings  []Ranking        `json:"rankings"`
}

func handleRankings(reports ReportProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		measure := domain.MeasureDamages
		if s := q.Get("measure"); s != "" {
			m, err := domain.ParseMeasure(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			measure = m
		}

		top := defaultTop
		if s := q.Get("top"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > maxTop {
				writeError(w, http.StatusBadRequest, "top must be an integer between 1 and "+strconv.Itoa(maxTop))
				return
			}
			top = n
		}

		report := reports.LatestReport()
		if report == nil {
			writeError(w, http.StatusServiceUnavailable, "no completed run yet")
			return
		}

		ranked := domain.Rank(report.Categories, measure, top)
		resp := RankingsResponse{
			RunID:     report.RunID,
			Reference: report.Reference,
			Measure:   measure,
			Rankings:  make([]Ranking, 0, len(ranked)),
		}
		for i, c := range ranked {
			median, mean := measure.Stats(c)
			resp.Rankings = append(resp.Rankings, Ranking{
				Rank: i + 1, Category: c.Category, Median: median, Mean: mean,
				Years: c.Years, Events: c.Events,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
