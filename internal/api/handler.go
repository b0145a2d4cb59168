package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
	"github.com/pogostats/feishu-stats-reporter/internal/metrics"
	"github.com/pogostats/feishu-stats-reporter/internal/service"
)

// Reports runs on-demand reports
type Reports interface {
	RunCategory(ctx context.Context, req service.RunRequest) (*domain.RunSummary, error)
}

// Schedules lists the armed daily timers
type Schedules interface {
	Entries() []domain.ScheduleEntry
}

// Sightings counts raw observations per entity
type Sightings interface {
	CountSightings(ctx context.Context, ids []uint32, d time.Duration) (map[uint32]uint64, error)
}

// Server provides the HTTP API: health, schedules, on-demand reports and metrics
type Server struct {
	reports   Reports
	schedules Schedules
	sightings Sightings
	metrics   *metrics.Manager
	log       logging.Logger
	accessLog io.Writer

	server *http.Server
	addr   string
}

// NewServer creates a new API server. accessLog may be nil.
func NewServer(addr string, reports Reports, schedules Schedules, sightings Sightings, m *metrics.Manager, log logging.Logger, accessLog io.Writer) *Server {
	return &Server{
		reports:   reports,
		schedules: schedules,
		sightings: sightings,
		metrics:   m,
		log:       log.Named("API"),
		accessLog: accessLog,
		addr:      addr,
	}
}

// Handler returns the routed handler with recovery, metrics and access logging
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/schedules", s.handleSchedules).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/{guild}/{category}", s.handleRunReport).Methods(http.MethodPost)
	r.HandleFunc("/api/sightings", s.handleSightings).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
	)(r)
	if s.accessLog != nil {
		h = handlers.LoggingHandler(s.accessLog, h)
	}
	return h
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info(context.Background(), "starting HTTP server", logging.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============ Handlers ============

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"schedules": s.schedules.Entries()})
}

// RunReportResponse is the result of an on-demand report
type RunReportResponse struct {
	Notice  string             `json:"notice"`
	Summary *domain.RunSummary `json:"summary,omitempty"`
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	category, err := domain.ParseCategory(vars["category"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	req := service.RunRequest{
		GuildID:  vars["guild"],
		Category: category,
		Trigger:  domain.TriggerOnDemand,
	}
	if v := r.URL.Query().Get("threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid threshold: %q", v))
			return
		}
		req.Threshold = &threshold
	}

	// A disconnecting client must not cut a publish loop short
	summary, err := s.reports.RunCategory(context.WithoutCancel(r.Context()), req)
	s.writeJSON(w, runStatusCode(summary, err), RunReportResponse{
		Notice:  service.Notice(err),
		Summary: summary,
	})
}

func runStatusCode(summary *domain.RunSummary, err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrGuildNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCategoryDisabled), errors.Is(err, service.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrClientNotInGuild), errors.Is(err, service.ErrChannelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrNoStats) && summary != nil && summary.Status == domain.RunStatusAborted:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSightings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var ids []uint32
	if v := q.Get("ids"); v != "" {
		for _, part := range strings.Split(v, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil || id == 0 {
				s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid entity id: %q", part))
				return
			}
			ids = append(ids, uint32(id))
		}
	}

	var window time.Duration
	if v := q.Get("hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hours: %q", v))
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	counts, err := s.sightings.CountSightings(r.Context(), ids, window)
	if err != nil {
		s.log.Error(r.Context(), "failed to count sightings", logging.Err(err))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"counts": counts})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// instrument records request count and latency per route template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequest(route, r.Method, sw.code, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type recoveryLogger struct {
	log logging.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error(context.Background(), "handler panicked", logging.String("panic", fmt.Sprint(v...)))
}
