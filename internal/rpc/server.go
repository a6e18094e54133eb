package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/workbridge/workbridge/internal/telemetry"
)

const maxRequestBodyBytes = 1 << 20

// BuildInfo is injected by the build via ldflags.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildTime string
}

type Server struct {
	dispatcher *Dispatcher
	srv        *http.Server
	logger     *slog.Logger
	authSecret []byte
	build      BuildInfo
}

func NewServer(addr string, dispatcher *Dispatcher, authSecret string, logger *slog.Logger, build BuildInfo) *Server {
	s := &Server{
		dispatcher: dispatcher,
		logger:     logger,
		build:      build,
	}
	if authSecret != "" {
		s.authSecret = []byte(authSecret)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", s.requireAuth(s.handleRPC))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("rpc server starting", "addr", s.srv.Addr)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleRPC decodes one envelope and writes the JSON-RPC response, or an
// empty 200 for notifications. Protocol failures ride inside the
// envelope; the HTTP status stays 200.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	traceID := uuid.New().String()
	ctx := WithTraceID(r.Context(), traceID)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, Response{
			JSONRPC: ProtocolVersion,
			Error:   &Error{Code: CodeInvalidRequest, Message: "invalid request: " + err.Error()},
		})
		return
	}

	resp, hasBody := s.dispatcher.Dispatch(ctx, &req)
	if !hasBody {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.build.Version,
		"git_commit": s.build.GitCommit,
		"build_time": s.build.BuildTime,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, telemetry.RenderPrometheus())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
