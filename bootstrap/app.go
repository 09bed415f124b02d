package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"reqtrace/api"
	"reqtrace/config"
	"reqtrace/core"
	"reqtrace/service"
	"reqtrace/tables"
)

// Overrides are command-line values applied above file and environment config.
type Overrides struct {
	LogLevel string
	JSONLogs bool
	Snapshot string
}

func (o Overrides) keys() map[string]interface{} {
	m := map[string]interface{}{
		"log.level":        o.LogLevel,
		"backend.snapshot": o.Snapshot,
	}
	if o.JSONLogs {
		m["log.json"] = true
	}
	return m
}

// App holds the wired reqtrace components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Backend core.Backend
	Tables  *tables.Loader
	Reports *service.ReportService

	APIServer *api.API

	serviceWg *sync.WaitGroup
	serveErr  chan error
}

// NewApp loads the configuration and wires every component.
func NewApp(configPath string, overrides Overrides) (*App, error) {
	cfg, err := InitConfig(configPath, overrides.keys())
	if err != nil {
		return nil, err
	}

	logger, sugar, err := InitLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logConfig(cfg, sugar)

	b, err := NewBackend(cfg, sugar)
	if err != nil {
		return nil, err
	}
	loader := NewTableLoader(cfg, sugar)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Sugar:     sugar,
		Backend:   b,
		Tables:    loader,
		Reports:   NewReportService(cfg, b, loader, sugar),
		serviceWg: &sync.WaitGroup{},
		serveErr:  make(chan error, 1),
	}, nil
}

// Addr is the API listen address.
func (a *App) Addr() string {
	return net.JoinHostPort(a.Config.API.Host, strconv.Itoa(a.Config.API.Port))
}

// Start starts the API server in the background.
func (a *App) Start() {
	a.APIServer = api.NewAPI(a.Reports, a.Config, a.Sugar)

	addr := a.Addr()
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		a.Sugar.Infow("API server listening", "addr", addr)
		if err := a.APIServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("API server failed", "error", err)
			a.serveErr <- err
		}
	}()
}

// WaitForShutdown blocks until a shutdown signal arrives, ctx ends, or the
// server fails. The server error, if any, is returned.
func (a *App) WaitForShutdown(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	case err := <-a.serveErr:
		return err
	}
}

// Shutdown stops the API server and releases remote clients.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.Sugar.Warn("API server shutdown timed out")
	}

	if a.Tables != nil {
		if err := a.Tables.Close(); err != nil {
			a.Sugar.Warnw("Failed to close table sources", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
