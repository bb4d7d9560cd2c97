package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robodash/robodash/pkg/analysis"
	"github.com/robodash/robodash/pkg/analytics"
	"github.com/robodash/robodash/pkg/config"
	"github.com/robodash/robodash/pkg/store"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	analytics  *analytics.Engine
	analysis   analysis.Engine
	tokens     [][]byte
	httpServer *http.Server
	startedAt  time.Time
	wg         sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start initializes the store and engines, seeds config data, and
// starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	// Create and start the database store.
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// Seed repositories from config.
	if len(s.cfg.Repositories) > 0 {
		if err := s.store.SeedRepositories(
			ctx, s.cfg.Repositories,
		); err != nil {
			return fmt.Errorf("seeding repositories: %w", err)
		}
	}

	s.analytics = analytics.NewEngine(s.log, s.store)

	// The analysis engine marks jobs orphaned by a previous process
	// before accepting new ones.
	s.analysis = analysis.NewEngine(s.log, &s.cfg.Analysis, s.store)
	if err := s.analysis.Start(ctx); err != nil {
		return fmt.Errorf("starting analysis engine: %w", err)
	}

	if s.cfg.Auth.Enabled {
		s.tokens = hashTokens(s.cfg.Auth.Tokens)

		s.log.WithField("tokens", len(s.tokens)).
			Info("Bearer token authentication enabled")
	}

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server, drains the analysis
// workers, and closes the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.analysis != nil {
		if err := s.analysis.Stop(); err != nil {
			s.log.WithError(err).Warn("Analysis engine stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
