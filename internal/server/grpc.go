package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"TrancheVault/internal/event"
	"TrancheVault/internal/observability"
	"TrancheVault/internal/projection"
	"TrancheVault/internal/query"
)

// GRPCServer wraps the gRPC server and the gateway HTTP mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
	log           zerolog.Logger
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	LossHistory   *projection.LossHistoryProjection
	Ingest        chan<- event.Event
	Metrics       *observability.Metrics
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates the gRPC server with health and reflection
// registered, plus the HTTP/JSON query surface.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps, log zerolog.Logger) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
		log:           log,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API (blocking). Query endpoints
// are registered on a gateway mux for tooling, dashboards, curl.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()

	if err := s.registerQueryHandlers(mux); err != nil {
		return fmt.Errorf("register query handlers: %w", err)
	}
	if err := s.registerIngestHandlers(mux); err != nil {
		return fmt.Errorf("register ingest handlers: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.Handle("/", s.instrument(mux))

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *GRPCServer) registerQueryHandlers(mux *runtime.ServeMux) error {
	handlers := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/tranches/{asset}", s.handleGetTrancheState},
		{"GET", "/v1/losses/{asset}", s.handleGetLossHistory},
		{"GET", "/v1/journal", s.handleGetJournalHistory},
		{"GET", "/v1/events", s.handleGetEvents},
		{"GET", "/v1/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/status", s.handleGetStatus},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
	}

	for _, h := range handlers {
		if err := mux.HandlePath(h.method, h.pattern, h.handler); err != nil {
			return fmt.Errorf("handle %s %s: %w", h.method, h.pattern, err)
		}
	}
	return nil
}

func (s *GRPCServer) handleGetTrancheState(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	asset := pathParams["asset"]
	resp, err := s.deps.QueryService.GetTrancheState(r.Context(), asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) handleGetLossHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	asset := pathParams["asset"]
	limit := parseLimit(r, 50)

	entries := s.deps.LossHistory.QueryByAsset(asset, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"entries": entries,
	})
}

func (s *GRPCServer) handleGetJournalHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("account query parameter is required"))
		return
	}

	limit := parseLimit(r, 100)
	after := parseAfter(r)

	entries, err := s.deps.QueryService.GetJournalHistory(r.Context(), account, limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func (s *GRPCServer) handleGetEvents(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var eventType *string
	if t := r.URL.Query().Get("type"); t != "" {
		eventType = &t
	}

	limit := parseLimit(r, 100)
	after := parseAfter(r)

	records, err := s.deps.QueryService.GetEvents(r.Context(), eventType, limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": records,
	})
}

func (s *GRPCServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *GRPCServer) handleGetStatus(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	seq, err := s.deps.QueryService.LatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of_sequence": seq,
		"uptime":         time.Since(s.deps.StartTime).String(),
		"ready":          s.healthChecker != nil && s.healthChecker.IsReady(),
	})
}

func (s *GRPCServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB, s.log); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "rebuilt",
	})
}

// instrument wraps the gateway mux with request metrics.
func (s *GRPCServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.deps.Metrics.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
		s.deps.Metrics.HTTPDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseLimit(r *http.Request, def int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return def
}

func parseAfter(r *http.Request) *int64 {
	if raw := r.URL.Query().Get("after"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}
