// Package server owns the process lifecycle: it assembles the
// pipeline, serves the JSON-RPC surface, reloads on config changes,
// and shuts down cleanly on signals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/logger"
	"github.com/kadirpekel/dossier/pkg/observability"
	"github.com/kadirpekel/dossier/pkg/providers"
	"github.com/kadirpekel/dossier/pkg/ratelimit"
	"github.com/kadirpekel/dossier/pkg/research"
	"github.com/kadirpekel/dossier/pkg/session"
	"github.com/kadirpekel/dossier/pkg/transport"
)

// Options configures a server instance.
type Options struct {
	Config *config.Config

	// ConfigLoader enables hot reload when set.
	ConfigLoader *config.Loader
}

// Server runs the HTTP listener and everything behind it.
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	log    *slog.Logger

	llm        llms.Provider
	registry   *providers.Registry
	sessions   *session.Manager
	obs        *observability.Manager
	httpServer *http.Server

	watchCancel context.CancelFunc
	stopChan    chan struct{}
	reloadChan  chan struct{}
	doneChan    chan struct{}
}

// New builds a server. Nothing listens until Start.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &Server{
		cfg:        opts.Config,
		loader:     opts.ConfigLoader,
		log:        logger.Component("server"),
		stopChan:   make(chan struct{}),
		reloadChan: make(chan struct{}, 1),
		doneChan:   make(chan struct{}),
	}

	if s.loader != nil {
		s.loader.SetOnChange(func(newCfg *config.Config) {
			s.log.Info("Configuration change detected, scheduling reload")
			s.cfg = newCfg
			select {
			case s.reloadChan <- struct{}{}:
			default:
			}
		})
	}

	return s, nil
}

// Start initializes the pipeline, begins listening, and spawns the
// lifecycle loop. It returns once the listener is up.
func (s *Server) Start(ctx context.Context) error {
	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if err := s.listen(); err != nil {
		s.cleanup(context.Background())
		return fmt.Errorf("failed to start listener: %w", err)
	}

	if s.loader != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.watchCancel = cancel
		go func() {
			if err := s.loader.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
				s.log.Warn("Config watch stopped", "error", err)
			}
		}()
	}

	s.log.Info("Server listening", "address", s.cfg.Server.Address())
	go s.runLifecycle()
	return nil
}

// Wait blocks until the server has fully shut down.
func (s *Server) Wait() {
	<-s.doneChan
}

// Stop requests shutdown and waits for it, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}

	select {
	case <-s.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// initialize builds every session-independent collaborator from the
// current config.
func (s *Server) initialize(ctx context.Context) error {
	registry, err := providers.NewFromConfig(s.cfg.Providers, s.log)
	if err != nil {
		return err
	}
	if registry.Count() == 0 {
		return &research.ConfigError{Msg: "no search providers configured"}
	}
	s.registry = registry

	llm, err := llms.NewFromConfig(&s.cfg.LLM)
	if err != nil {
		return err
	}
	if llm == nil {
		s.log.Warn("No LLM configured, sessions run on deterministic fallbacks")
	}
	s.llm = llm

	store, err := session.NewStore(s.cfg.Session)
	if err != nil {
		return err
	}
	s.sessions = session.NewManager(store, s.cfg.Server.MaxSessions)

	s.obs = observability.NewManager(s.cfg.Observability)
	if err := s.obs.Initialize(ctx); err != nil {
		s.log.Warn("Observability initialization failed", "error", err)
		s.obs = nil
	}

	return nil
}

// listen builds the router around the transport handler and brings the
// HTTP server up, giving it a short grace window to fail fast on a bad
// bind.
func (s *Server) listen() error {
	limiter := ratelimit.New(s.providerCaps())
	pipeline := research.NewPipeline(s.cfg, s.llm, s.registry, limiter)
	handler := transport.NewHandler(pipeline, s.sessions)

	r := chi.NewRouter()
	if s.obs != nil {
		r.Use(observability.HTTPMiddleware)
		if s.cfg.Observability.MetricsEnabled {
			r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())
		}
	}
	r.Mount("/", handler.Router())

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.Address(),
		Handler: r,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

// providerCaps collects per-provider concurrency overrides.
func (s *Server) providerCaps() map[string]int64 {
	caps := make(map[string]int64)
	for id, p := range s.cfg.Providers {
		if p != nil && p.MaxConcurrent > 0 {
			caps[id] = p.MaxConcurrent
		}
	}
	return caps
}

// runLifecycle waits for signals, stop requests, and reloads.
func (s *Server) runLifecycle() {
	defer close(s.doneChan)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			s.log.Info("Signal received, shutting down")
			s.cleanup(context.Background())
			return

		case <-s.stopChan:
			s.log.Info("Stop requested")
			s.cleanup(context.Background())
			return

		case <-s.reloadChan:
			s.log.Info("Reloading server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.cleanup(shutdownCtx)
			cancel()

			if err := s.initialize(context.Background()); err != nil {
				s.log.Error("Reinitialization after reload failed", "error", err)
				return
			}
			if err := s.listen(); err != nil {
				s.log.Error("Listener restart after reload failed", "error", err)
				return
			}
			s.log.Info("Server reloaded", "address", s.cfg.Server.Address())
		}
	}
}

// cleanup tears down in reverse dependency order. The config watcher
// survives reloads and stops only with the process.
func (s *Server) cleanup(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("HTTP shutdown failed", "error", err)
		}
		s.httpServer = nil
	}

	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			s.log.Warn("Session manager close failed", "error", err)
		}
		s.sessions = nil
	}

	if s.llm != nil {
		if err := s.llm.Close(); err != nil {
			s.log.Warn("LLM close failed", "error", err)
		}
		s.llm = nil
	}

	if s.obs != nil {
		if err := s.obs.Shutdown(ctx); err != nil {
			s.log.Warn("Observability shutdown failed", "error", err)
		}
		s.obs = nil
	}

	select {
	case <-s.stopChan:
		if s.watchCancel != nil {
			s.watchCancel()
		}
	default:
	}
}
