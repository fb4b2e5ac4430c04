// Package httpapi is the inbound HTTP surface: bearer-token authenticated
// /process_request, plus /healthz and /metrics, built on gorilla/mux.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Humphreey/pinokio/internal/ingress"
	"github.com/Humphreey/pinokio/internal/store"
)

type requestIDKey struct{}

// ServerConfig holds the listen address and timeouts.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns sane production defaults, listening on all
// interfaces since this sidecar is reached from other services.
func DefaultServerConfig(port int) ServerConfig {
	if port <= 0 {
		port = 8080
	}
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the process's HTTP surface.
type Server struct {
	router      *mux.Router
	server      *http.Server
	ingressRouter     *ingress.Router
	store       store.Store
	bearerToken string
	metrics     *MetricsRegistry
	config      ServerConfig
}

// NewServer builds a Server wired to the ingress router.
func NewServer(cfg ServerConfig, ingressRouter *ingress.Router, s store.Store, bearerToken string, metrics *MetricsRegistry) *Server {
	r := mux.NewRouter()
	srv := &Server{
		router:      r,
		ingressRouter:     ingressRouter,
		store:       s,
		bearerToken: bearerToken,
		metrics:     metrics,
		config:      cfg,
	}
	srv.setupRoutes()
	srv.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/process_request", s.handleProcessRequest).Methods(http.MethodPost)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Info().
			Str("request_id", fmt.Sprintf("%v", r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// authMiddleware gates requests on a bearer token, constant-time compared
// against BEARER_TOKEN.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		token := ""
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			token = auth[len(prefix):]
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.bearerToken)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var ev ingress.IncomingEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid request body"})
		return
	}

	result, err := s.ingressRouter.Handle(r.Context(), ev)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Error().Err(err).Str("chat_id", ev.MessagesChatID).Msg("httpapi: ingress handling failed")
		s.metrics.RequestDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		s.metrics.RequestsTotal.WithLabelValues("error", "internal").Inc()
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "internal error"})
		return
	}

	s.metrics.RequestDuration.WithLabelValues(string(result.Status)).Observe(time.Since(start).Seconds())
	s.metrics.RequestsTotal.WithLabelValues(string(result.Status), result.Reason).Inc()
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("httpapi: listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
