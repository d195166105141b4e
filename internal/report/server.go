package report

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/bill-check/internal/pricing"
)

// shutdownTimeout covers the slowest extractor call
const shutdownTimeout = 3 * time.Minute

// Server handles HTTP requests for bill analysis
type Server struct {
	service         *Service
	reference       Reference
	basicAuth       BasicAuth
	gatherer        prometheus.Gatherer
	mux             *http.ServeMux
	shutdownTimeout time.Duration
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Reference holds the pricing datasets served under /api/rates, /api/localities and /api/procedures
type Reference struct {
	Rates      *pricing.Lookup
	Ranges     pricing.RangeSource // optional
	Localities *pricing.Directory
	Procedures *pricing.Catalog
}

// NewServer creates a new Server with default mux. A nil gatherer serves the default registry.
func NewServer(service *Service, reference Reference, basicAuth BasicAuth, gatherer prometheus.Gatherer) *Server {
	return NewServerWithMux(service, reference, basicAuth, gatherer, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, reference Reference, basicAuth BasicAuth, gatherer prometheus.Gatherer, mux *http.ServeMux) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		service:         service,
		reference:       reference,
		basicAuth:       basicAuth,
		gatherer:        gatherer,
		mux:             mux,
		shutdownTimeout: shutdownTimeout,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		return false
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.basicAuth.Username)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.basicAuth.Password)) == 1
	return userMatch && passMatch
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Bill Check"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Health and metrics are left open for probes and scrapers
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("POST /api/scan/analyze", s.requireAuth(s.handleScanBill))
	s.mux.HandleFunc("POST /api/bills/analyze", s.requireAuth(s.handleAnalyzeBill))

	s.mux.HandleFunc("GET /api/reports/{id}/image", s.requireAuth(s.handleGetReportImage))
	s.mux.HandleFunc("GET /api/reports/{id}", s.requireAuth(s.handleGetReport))
	s.mux.HandleFunc("DELETE /api/reports/{id}", s.requireAuth(s.handleDeleteReport))
	s.mux.HandleFunc("GET /api/reports", s.requireAuth(s.handleListReports))

	s.mux.HandleFunc("GET /api/rates/medicare", s.requireAuth(s.handleMedicareRate))
	s.mux.HandleFunc("GET /api/rates/fair-health", s.requireAuth(s.handlePrivateRange))
	s.mux.HandleFunc("GET /api/localities", s.requireAuth(s.handleLocalities))
	s.mux.HandleFunc("GET /api/procedures", s.requireAuth(s.handleProcedures))
}

// Handler wraps the mux with CORS handling, including OPTIONS preflight
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Start serves on addr until ctx is cancelled, then lets in-flight requests finish
func (s *Server) Start(ctx context.Context, addr string) error {
	slog.Info("Starting server", "address", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server, waiting for in-flight requests", "timeout", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
