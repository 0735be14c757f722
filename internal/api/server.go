// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ccass-tracker/internal/adapter"
	"github.com/ccass-tracker/internal/logging"
	"github.com/ccass-tracker/internal/ratelimit"
	"github.com/ccass-tracker/internal/service"
	"github.com/ccass-tracker/internal/types"
)

// Service interfaces for dependency injection and testing

// ShareholdingServiceInterface defines the shareholding views served over HTTP
type ShareholdingServiceInterface interface {
	TopHoldings(ctx context.Context, query *service.ShareholdingQuery) (types.TableRangeResult, error)
	ThresholdChanges(ctx context.Context, query *service.ShareholdingQuery, threshold float64) (types.ChangeRangeResult, error)
}

// ClientStatsProvider reports outbound request statistics
type ClientStatsProvider interface {
	GetStats() adapter.ClientStats
}

// BudgetUsageProvider reports the shared outbound request budget
type BudgetUsageProvider interface {
	GetUsage(ctx context.Context) (*ratelimit.UsageStats, error)
}

// HealthSources are optional collaborators reported by /health
type HealthSources struct {
	Client  ClientStatsProvider
	Budget  BudgetUsageProvider
	Monitor *service.PerformanceMonitor
}

// Server represents the HTTP API server.
type Server struct {
	router              *mux.Router
	httpServer          *http.Server
	shareholdingService ShareholdingServiceInterface
	health              *HealthSources
	validate            *validator.Validate
	rateLimiter         *RateLimiter
	logger              *logging.Logger
	config              *ServerConfig
	stopPrune           chan struct{}
}

// limiterPruneInterval is how often idle client limiters are dropped
const limiterPruneInterval = time.Minute

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RateLimitRPS    int // Requests per second per client
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	shareholdingService ShareholdingServiceInterface,
	health *HealthSources,
	logger *logging.Logger,
) *Server {
	if health == nil {
		health = &HealthSources{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:              mux.NewRouter(),
		shareholdingService: shareholdingService,
		health:              health,
		validate:            newQueryValidator(),
		logger:              logger,
		config:              config,
		stopPrune:           make(chan struct{}),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.rateLimiter = NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Set up middleware (order matters!)
	s.router.Use(RequestIDMiddleware(s.logger))
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	ccass := s.router.PathPrefix("/ccass").Subrouter()
	ccass.HandleFunc("/top_ten_shareholding", s.handleTopTenShareholding).Methods(http.MethodGet, http.MethodOptions)
	ccass.HandleFunc("/shareholding_threshold", s.handleShareholdingThreshold).Methods(http.MethodGet, http.MethodOptions)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "ccass-tracker",
	}

	if s.health.Client != nil {
		body["ccass"] = s.health.Client.GetStats()
	}

	if s.health.Monitor != nil {
		body["performance"] = s.health.Monitor.GetStats()

		check := s.health.Monitor.CheckPerformance()
		body["performance_check"] = check
		if !check.Passed {
			body["status"] = "degraded"
		}
	}

	if s.health.Budget != nil {
		usage, err := s.health.Budget.GetUsage(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Request budget unavailable")
			body["status"] = "degraded"
			body["budget"] = "unavailable"
		} else {
			body["budget"] = usage
		}
	}

	respondJSON(w, http.StatusOK, body)
}

// Handler exposes the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	go s.pruneLimiters()
	return s.httpServer.ListenAndServe()
}

func (s *Server) pruneLimiters() {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPrune:
			return
		case now := <-ticker.C:
			if n := s.rateLimiter.Prune(now); n > 0 {
				s.logger.WithField("clients", n).Debug("Pruned idle rate limiters")
			}
		}
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	close(s.stopPrune)
	return s.httpServer.Shutdown(ctx)
}
