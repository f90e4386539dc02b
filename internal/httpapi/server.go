// Package httpapi serves the read-only dashboard surface: per-driver score
// state, driver history and operational endpoints. All handlers are
// read-only; writes happen exclusively inside the ingestion pipeline.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/driverpulse/sentiment-server/internal/service"
	"github.com/driverpulse/sentiment-server/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultHistoryTTL     = 30 * time.Second
	maxHistoryLimit       = 500
)

// Server wires the HTTP routes for the query API.
type Server struct {
	query      QueryService
	cache      Cacher
	sfGroup    singleflight.Group
	historyTTL time.Duration
	logger     *zap.Logger
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHistoryCacheTTL sets how long history responses may be served from
// cache.
func WithHistoryCacheTTL(ttl time.Duration) Option {
	return func(s *Server) { s.historyTTL = ttl }
}

// New creates the query API server listening on addr.
func New(addr string, query QueryService, cache Cacher, logger *zap.Logger, opts ...Option) *Server {
	if query == nil {
		panic("query service must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		query:      query,
		cache:      cache,
		historyTTL: defaultHistoryTTL,
		logger:     logger.Named("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.instrument("healthz", s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /drivers", s.instrument("drivers", s.handleListDrivers))
	mux.HandleFunc("GET /drivers/{id}", s.instrument("driver_score", s.handleDriverScore))
	mux.HandleFunc("GET /drivers/{id}/history", s.instrument("driver_history", s.handleDriverHistory))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("query API listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// instrument records request count and latency per endpoint.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordHTTPRequest(endpoint, strconv.Itoa(rec.status))
		metrics.RecordHTTPDuration(endpoint, time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	statuses, err := s.query.ListDriverScores(ctx)
	if err != nil {
		s.handleError(w, "ListDriverScores", err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleDriverScore(w http.ResponseWriter, r *http.Request) {
	driverID, err := parseDriverID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	status, err := s.query.GetDriverScore(ctx, driverID)
	if err != nil {
		s.handleError(w, "GetDriverScore", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDriverHistory(w http.ResponseWriter, r *http.Request) {
	driverID, err := parseDriverID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("limit must be an integer in [0, %d]", maxHistoryLimit))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), defaultRequestTimeout)
	defer cancel()

	key := fmt.Sprintf("httpapi:driver_history:%d:%d", driverID, limit)
	history, err := FindAndCache(ctx, s.cache, &s.sfGroup, key, s.historyTTL, s.logger, func(fetchCtx context.Context) (service.DriverHistory, error) {
		return s.query.GetDriverHistory(fetchCtx, driverID, limit)
	})
	if err != nil {
		s.handleError(w, "GetDriverHistory", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrDriverNotFound):
		s.logger.Info("driver not found", zap.String("op", op))
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrStorageFailure):
		s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage_failure", errors.New("storage failure"))
	default:
		s.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Errorf("%s failed", op))
	}
}

func parseDriverID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid driver id %q", raw)
	}
	return id, nil
}
