package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/traffic-congestion-etl/internal/adapter/geojson"
	"github.com/couchcryptid/traffic-congestion-etl/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// ResultProvider returns the most recent completed run.
type ResultProvider interface {
	Latest() (domain.Result, bool)
}

// Server exposes health, readiness, metrics, and the latest congestion result.
type Server struct {
	httpServer *http.Server
	results    ResultProvider
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 congestion routes.
func NewServer(addr string, ready ReadinessChecker, results ResultProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		results: results,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/congestion", s.handleCongestion)
	mux.HandleFunc("GET /v1/congestion/geojson", s.handleCongestionGeoJSON)
	mux.HandleFunc("GET /v1/statistics", s.handleStatistics)

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

// latest writes a 503 and returns false when no run has completed.
func (s *Server) latest(w http.ResponseWriter) (domain.Result, bool) {
	r, ok := s.results.Latest()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no congestion result available yet",
		})
	}
	return r, ok
}

// handleCongestion returns the full result. An optional ?level= query
// restricts the segment list to one congestion level.
func (s *Server) handleCongestion(w http.ResponseWriter, req *http.Request) {
	r, ok := s.latest(w)
	if !ok {
		return
	}

	if q := req.URL.Query().Get("level"); q != "" {
		level := domain.Level(q)
		if !level.Valid() {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown congestion level " + q,
			})
			return
		}
		filtered := make([]domain.ClassifiedSegment, 0, len(r.Segments))
		for _, seg := range r.Segments {
			if seg.Level == level {
				filtered = append(filtered, seg)
			}
		}
		r.Segments = filtered
	}

	sharedobs.WriteJSON(w, http.StatusOK, r)
}

func (s *Server) handleCongestionGeoJSON(w http.ResponseWriter, _ *http.Request) {
	r, ok := s.latest(w)
	if !ok {
		return
	}

	body, err := geojson.EncodeCongestion(r)
	if err != nil {
		s.logger.Error("encode congestion layer", "run_id", r.RunID, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode congestion layer"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// statisticsResponse is the /v1/statistics body: the result without segments.
type statisticsResponse struct {
	RunID       string                    `json:"run_id"`
	SourceKind  domain.SourceKind         `json:"source_kind"`
	Reason      string                    `json:"reason,omitempty"`
	TimeCode    int64                     `json:"time_code"`
	Statistics  domain.StatisticsSnapshot `json:"statistics"`
	Coverage    domain.CoverageStats      `json:"coverage"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	r, ok := s.latest(w)
	if !ok {
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, statisticsResponse{
		RunID:       r.RunID.String(),
		SourceKind:  r.SourceKind,
		Reason:      r.Reason,
		TimeCode:    r.TimeCode,
		Statistics:  r.Statistics,
		Coverage:    r.Coverage,
		GeneratedAt: r.GeneratedAt,
	})
}
