package worker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/component"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/observability"
	"github.com/kbukum/meshflow/resilience"
)

// Server is a worker HTTP server backed by Gin, reachable over HTTP/1.1 and
// h2c on the same port.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	codec      *codec.Codec
	bulkhead   *resilience.Bulkhead
	log        *logger.Logger
	started    time.Time

	checks     func(context.Context) []observability.Health

	mu       sync.RWMutex
	datasets map[string]flow.Producer
	bound    net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.WithComponent("worker") }
}

// WithHealthChecks adds the health of the hosting process to GET /health.
func WithHealthChecks(fn func(context.Context) []observability.Health) Option {
	return func(s *Server) { s.checks = fn }
}

// New creates a server with its middleware and routes registered. Datasets
// are added with Serve.
func New(cfg Config, opts ...Option) *Server {
	cfg.ApplyDefaults()
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:   gin.New(),
		config:   cfg,
		codec:    codec.New(cfg.Codec),
		bulkhead: resilience.NewBulkhead(cfg.bulkhead()),
		log:      logger.GetGlobalLogger().WithComponent("worker"),
		started:  time.Now(),
		datasets: make(map[string]flow.Producer),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(Recovery(s.log), RequestID(), RequestLogger(s.log))
	s.engine.POST(codec.FetchPath, s.fetch)
	s.engine.GET("/health", s.health)
	s.engine.GET("/info", s.info)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h2c.NewHandler(s.engine, h2s),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Serve publishes p under dataset. A later call with the same name replaces
// the producer.
func (s *Server) Serve(dataset string, p flow.Producer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[dataset] = p
	s.log.Debug("dataset published", logger.Fields("dataset", dataset, logger.FieldStage, p.Name()))
}

// Datasets returns the published dataset names, sorted.
func (s *Server) Datasets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Server) dataset(name string) (flow.Producer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.datasets[name]
	return p, ok
}

func (s *Server) state() (component.HealthStatus, string) {
	switch {
	case len(s.Datasets()) == 0:
		return component.StatusUnhealthy, "no dataset published"
	case s.bulkhead.InUse() >= s.bulkhead.MaxConcurrent():
		return component.StatusDegraded, fmt.Sprintf("all %d fetch slots in use", s.bulkhead.MaxConcurrent())
	}
	return component.StatusHealthy, ""
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Bulkhead exposes the limiter guarding fetches.
func (s *Server) Bulkhead() *resilience.Bulkhead { return s.bulkhead }

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("worker failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.bound = listener.Addr()
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("worker stopped serving", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("worker started", logger.Fields("addr", listener.Addr().String(), "datasets", s.Datasets()))
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker shutdown: %w", err)
	}
	s.log.Info("worker stopped")
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bound != nil {
		return s.bound.String()
	}
	return s.httpServer.Addr
}
