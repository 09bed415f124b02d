// Package api serves reqtrace reports over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"reqtrace/config"
	"reqtrace/service"
	"reqtrace/tables"
)

// rateLimiterEntry holds a rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ReportGenerator builds reports and checks external tables.
type ReportGenerator interface {
	Generate(ctx context.Context, req service.Request) (*service.Report, error)
	ValidateTable(ctx context.Context, ref string, kind tables.Kind) (*tables.Table, error)
}

// API serves reports and table checks over HTTP.
type API struct {
	router         *mux.Router
	server         *http.Server
	reports        ReportGenerator
	config         *config.Config
	logger         *zap.SugaredLogger
	validate       *validator.Validate
	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates the API and starts the limiter cleanup loop.
func NewAPI(reports ReportGenerator, cfg *config.Config, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	api := &API{
		router:       mux.NewRouter(),
		reports:      reports,
		config:       cfg,
		logger:       logger,
		validate:     validator.New(),
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	api.setupRoutes()
	go api.cleanupRateLimiters()
	return api
}

// setupRoutes registers the report, table, health and metrics routes.
func (a *API) setupRoutes() {
	a.router.Use(a.loggingMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/reports", a.generateReport).Methods("POST")
	v1.HandleFunc("/reports/coverage", a.generateCoverage).Methods("POST")
	v1.HandleFunc("/reports/validation", a.generateValidation).Methods("POST")
	v1.HandleFunc("/tables/validate", a.validateTable).Methods("POST")

	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the root handler
func (a *API) Handler() http.Handler {
	return a.router
}

// Start listens on addr until Stop is called.
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a.server.ListenAndServe()
}

// Stop shuts the server down and ends the cleanup loop.
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
