package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/rdavidhalljr/weekly-allocator/internal/config"
	"github.com/rdavidhalljr/weekly-allocator/internal/logger"
	"github.com/rdavidhalljr/weekly-allocator/internal/provider"
	"github.com/rdavidhalljr/weekly-allocator/internal/recorder"
	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
)

// History lists archived cycles
type History interface {
	RecentCycles(limit int) ([]recorder.CycleSummary, error)
	SymbolHistory(symbol string, limit int) ([]recorder.ScorePoint, error)
}

// Server exposes the refresh runner and the provider proxy over HTTP
type Server struct {
	cfg     *config.Config
	runner  *refresh.Runner
	history History
	log     *logger.Logger

	srvMu  sync.Mutex
	srv    *http.Server
	closed bool

	// builds the provider behind /api/series and /api/quote
	newProvider func(name string) (provider.Provider, error)

	mu        sync.Mutex
	providers map[string]provider.Provider
}

// NewServer creates a new web server. history may be nil when nothing is recorded.
func NewServer(cfg *config.Config, runner *refresh.Runner, history History, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:       cfg,
		runner:    runner,
		history:   history,
		log:       log,
		providers: make(map[string]provider.Provider),
	}
	s.newProvider = func(name string) (provider.Provider, error) {
		p, err := provider.New(name, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Refresh.CacheTTL > 0 {
			return provider.NewCachingProvider(p, cfg.Refresh.CacheTTL), nil
		}
		return p, nil
	}
	return s
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/series", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/quote", s.handleQuote).Methods(http.MethodGet)
	api.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	api.HandleFunc("/ranking", s.handleRanking).Methods(http.MethodGet)
	api.HandleFunc("/weights", s.handleGetWeights).Methods(http.MethodGet)
	api.HandleFunc("/weights", s.handlePutWeights).Methods(http.MethodPut)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{symbol}", s.handleSymbolHistory).Methods(http.MethodGet)

	r.Use(recoveryMiddleware(s.log))
	r.Use(loggingMiddleware(s.log))

	// outside the router so preflight requests reach it before method matching
	return corsMiddleware(r)
}

// Start serves on port until Shutdown. It returns nil without listening when Shutdown
// has already been called.
func (s *Server) Start(port int) error {
	s.srvMu.Lock()
	if s.closed {
		s.srvMu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.srv = srv
	s.srvMu.Unlock()

	s.log.WithField("port", port).Info("starting allocator API")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	s.closed = true
	srv := s.srv
	s.srvMu.Unlock()

	if srv == nil {
		return nil
	}
	s.log.Info("shutting down allocator API")
	return srv.Shutdown(ctx)
}

// providerFor returns the provider named name, building it on first use
func (s *Server) providerFor(name string) (provider.Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "stooq"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[name]; ok {
		return p, nil
	}
	p, err := s.newProvider(name)
	if err != nil {
		return nil, err
	}
	s.providers[name] = p
	return p, nil
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("http request")
		})
	}
}

func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithFields(map[string]interface{}{
						"panic": fmt.Sprint(rec),
						"path":  r.URL.Path,
					}).Error("panic recovered")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware allows a browser front end served from elsewhere
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
