// Package server provides an HTTP server that runs workflow definitions on
// demand and on a cron schedule.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /info - Build and process metadata
//   - GET /status - Current or last run with live task state and logs, plus the next scheduled run
//   - GET /workflows - Names of the workflows that can be run
//   - POST /run - Starts a run of {"workflows": [...]}
//   - GET /history - Finished runs, most recent first
//   - GET /history/{id} - One finished run with task states and logs
//   - GET /results - Workflow results of the last finished run
//   - GET /config - Current configuration as YAML
//   - POST /reload - Re-reads configuration and workflow definitions
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// Config-derived dependencies (the config itself and the workflow catalog)
// are swapped atomically on reload. Every run builds fresh workflow
// instances from the catalog current at the time it starts, so a reload
// never affects a run in progress. Listen address, cron triggers and the
// metrics registry are fixed for the life of the server.
//
// # Example
//
//	srv, err := server.New("/etc/taskflow/config.yaml", server.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/taskflow/buildinfo"
	"github.com/nomis52/taskflow/config"
	"github.com/nomis52/taskflow/metrics"
	"github.com/nomis52/taskflow/server/cron"
	"github.com/nomis52/taskflow/server/handlers"
	"github.com/nomis52/taskflow/server/runner"
	"github.com/nomis52/taskflow/workflow"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	tracerName          = "github.com/nomis52/taskflow"
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config  *config.Config
	catalog *catalog
}

// Server is the taskflow HTTP server.
type Server struct {
	addr       string
	cronSpec   string
	configPath string
	logger     *slog.Logger
	info       handlers.ServerInfo

	deps       atomic.Pointer[serverDeps]
	registry   *metrics.ScrapeRegistry
	wfMetrics  *workflow.Metrics
	runner     *runner.Runner
	cron       *cron.CronTriggerManager
	certLoader *CertLoader
	listener   net.Listener
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets the server's logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithCron overrides the cron triggers from the config file. The format is
// workflow1,workflow2:cron_expression;workflow3:cron_expression2.
func WithCron(spec string) Option {
	return func(s *Server) error {
		s.cronSpec = spec
		return nil
	}
}

// WithListenAddr overrides the listen address from the config file.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithListener serves on an existing listener instead of opening one.
func WithListener(l net.Listener) Option {
	return func(s *Server) error {
		s.listener = l
		return nil
	}
}

// New creates a new Server from the config file at configPath. It loads
// every workflow definition the config lists and fails if any is invalid.
func New(configPath string, opts ...Option) (*Server, error) {
	s := &Server{
		configPath: configPath,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if s.addr == "" {
		s.addr = cfg.Server.ListenAddr
	}
	if s.cronSpec == "" {
		s.cronSpec = cfg.Server.Cron
	}

	s.registry, err = metrics.NewScrapeRegistry(cfg.Monitoring.MetricsPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	s.wfMetrics, err = workflow.NewMetrics(s.registry)
	if err != nil {
		return nil, fmt.Errorf("registering workflow metrics: %w", err)
	}

	if err := s.load(&cfg); err != nil {
		return nil, err
	}

	s.runner = runner.New(s.logger, s, runner.WithStateStore(runner.NewMemoryStore(cfg.Server.HistorySize)))

	if s.cronSpec != "" {
		s.cron, err = cron.NewCronTriggerManager(s.cronSpec, s.runner, s.logger, s.Workflows())
		if err != nil {
			return nil, fmt.Errorf("creating cron triggers: %w", err)
		}
	}

	if cfg.Server.TLSCertFile != "" {
		s.certLoader, err = NewCertLoader(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile, s.logger)
		if err != nil {
			return nil, err
		}
	}

	hostname, _ := os.Hostname()
	s.info = handlers.ServerInfo{
		Build:     buildinfo.Get(),
		StartedAt: time.Now(),
		Hostname:  hostname,
	}

	return s, nil
}

// Reload re-reads the config file and workflow definitions. On error the
// previous ones stay in place.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	return s.load(&cfg)
}

func (s *Server) load(cfg *config.Config) error {
	cat, err := loadCatalog(cfg, s.logger,
		workflow.WithMetrics(s.wfMetrics),
		workflow.WithTracer(otel.Tracer(tracerName)),
	)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	s.deps.Store(&serverDeps{config: cfg, catalog: cat})
	s.logger.Info("configuration loaded", "config_path", s.configPath, "workflows", cat.Workflows())
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Workflows returns the names of the workflows that can be run.
func (s *Server) Workflows() []string {
	return s.deps.Load().catalog.Workflows()
}

// Build returns a new instance of the named workflow from the current catalog.
func (s *Server) Build(name string, opts ...workflow.Option) (workflow.Runner, error) {
	return s.deps.Load().catalog.Build(name, opts...)
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run serves HTTP and starts the cron triggers, blocking until ctx is
// cancelled. On shutdown it stops accepting requests, then cancels the run
// in progress, if any, and waits for it to finish.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		httpServer.TLSConfig = s.certLoader.TLSConfig()
	}

	listener := s.listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", s.addr, err)
		}
	}

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server",
			"addr", listener.Addr().String(),
			"tls", s.certLoader != nil,
			"config_path", s.configPath,
		)
		var err error
		if s.certLoader != nil {
			err = httpServer.ServeTLS(listener, "", "")
		} else {
			err = httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config().Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)

		// Runs requested after this point fail with runner.ErrRunnerStopped.
		s.runner.Stop()
		return err
	})
	return g.Wait()
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /info", handlers.NewInfoHandler(s.info))
	mux.Handle("GET /status", handlers.NewStatusHandler(s))
	mux.Handle("GET /workflows", handlers.NewWorkflowsHandler(s))
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /history/{id}", handlers.NewRunHistoryHandler(s.runner))
	mux.Handle("GET /results", handlers.NewResultsHandler(s.runner))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("GET /metrics", s.registry.Handler())
}
