// Package health provides HTTP endpoints for connection probes and
// Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// Health status values.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// DefaultTimeout bounds one /ready evaluation.
const DefaultTimeout = 30 * time.Second

// HealthChecker is a function that checks the health of a component.
// Returns an error if the component is unhealthy.
type HealthChecker func(ctx context.Context) error

// DegradedChecker is a function that checks if a component is in a degraded state.
// Returns (true, message) if degraded, (false, "") if not degraded.
type DegradedChecker func(ctx context.Context) (degraded bool, message string)

// Prober probes a connection profile. *dispatch.Dispatcher satisfies it.
type Prober interface {
	Probe(ctx context.Context, conn connection.Connection) error
}

// ConnectionChecker returns a HealthChecker that probes conn.
func ConnectionChecker(p Prober, conn connection.Connection) HealthChecker {
	return func(ctx context.Context) error {
		return p.Probe(ctx, conn)
	}
}

// UnsupportedChecker returns a DegradedChecker reporting that conn's protocol
// cannot be probed.
func UnsupportedChecker(p Prober, conn connection.Connection) DegradedChecker {
	return func(ctx context.Context) (bool, string) {
		err := p.Probe(ctx, conn)
		if errors.Is(err, session.ErrUnsupportedProtocol) {
			return true, err.Error()
		}
		return false, ""
	}
}

// HealthStatus represents the health status of a component.
type HealthStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// DegradedStatus represents a degraded component.
type DegradedStatus struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Response represents a health check response.
type Response struct {
	Status     string           `json:"status"`
	Components []HealthStatus   `json:"components,omitempty"`
	Degraded   []DegradedStatus `json:"degraded,omitempty"`
}

// Server provides /health, /ready, and /metrics endpoints.
type Server struct {
	port    int
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	timeout time.Duration

	mu               sync.RWMutex
	listener         net.Listener
	checkers         map[string]HealthChecker
	degradedCheckers map[string]DegradedChecker
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout sets the timeout for health checks.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// New creates a new health server on the specified port.
func New(port int, opts ...Option) *Server {
	s := &Server{
		port:             port,
		mux:              http.NewServeMux(),
		logger:           slog.Default(),
		timeout:          DefaultTimeout,
		checkers:         make(map[string]HealthChecker),
		degradedCheckers: make(map[string]DegradedChecker),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// RegisterChecker adds a health checker for the /ready endpoint.
func (s *Server) RegisterChecker(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
	s.logger.Debug("registered health checker", slog.String("name", name))
}

// RegisterDegradedChecker adds a degraded state checker for the /ready endpoint.
// Degraded checkers report when the system is functional but not fully healthy.
func (s *Server) RegisterDegradedChecker(name string, checker DegradedChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degradedCheckers[name] = checker
	s.logger.Debug("registered degraded checker", slog.String("name", name))
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := Response{Status: "healthy"}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make(map[string]HealthChecker, len(s.checkers))
	for name, checker := range s.checkers {
		checkers[name] = checker
	}
	degradedCheckers := make(map[string]DegradedChecker, len(s.degradedCheckers))
	for name, checker := range s.degradedCheckers {
		degradedCheckers[name] = checker
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	// Each checker opens its own connection, so run them side by side.
	var (
		wg           sync.WaitGroup
		resultsMu    sync.Mutex
		components   []HealthStatus
		degradedList []DegradedStatus
	)

	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			status := HealthStatus{Name: name, Healthy: true}
			if err := checker(ctx); err != nil {
				status.Healthy = false
				status.Error = err.Error()
				s.logger.Warn("health check failed",
					slog.String("component", name),
					slog.String("error", err.Error()),
				)
			}
			resultsMu.Lock()
			components = append(components, status)
			resultsMu.Unlock()
		}(name, checker)
	}

	for name, checker := range degradedCheckers {
		wg.Add(1)
		go func(name string, checker DegradedChecker) {
			defer wg.Done()
			if degraded, message := checker(ctx); degraded {
				s.logger.Debug("degraded state detected",
					slog.String("component", name),
					slog.String("message", message),
				)
				resultsMu.Lock()
				degradedList = append(degradedList, DegradedStatus{Name: name, Message: message})
				resultsMu.Unlock()
			}
		}(name, checker)
	}

	wg.Wait()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	sort.Slice(degradedList, func(i, j int) bool { return degradedList[i].Name < degradedList[j].Name })

	allHealthy := true
	for _, c := range components {
		if !c.Healthy {
			allHealthy = false
		}
	}

	w.Header().Set("Content-Type", "application/json")

	resp := Response{Components: components, Degraded: degradedList}
	switch {
	case !allHealthy:
		resp.Status = StatusNotReady
		w.WriteHeader(http.StatusServiceUnavailable)
	case len(degradedList) > 0:
		// Still functional
		resp.Status = StatusDegraded
		w.WriteHeader(http.StatusOK)
	default:
		resp.Status = StatusReady
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// Start binds the port and serves in a goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("binding health server: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		s.logger.Info("health server starting", slog.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
