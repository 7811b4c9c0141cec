package main

import (
	"time"

	"github.com/JaimeStill/lexis/internal/api"
	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/internal/infrastructure"
)

// Server runs the status API, the run scheduler, and a pool of pipeline
// workers in one process.
type Server struct {
	infra   *infrastructure.Infrastructure
	domain  *api.Domain
	modules *Modules
	http    *httpServer
	workers int
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	runtime := api.NewRuntime(cfg, infra)
	domain := api.NewDomain(runtime)
	modules := NewModules(cfg, runtime, domain)

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
	)

	return &Server{
		infra:   infra,
		domain:  domain,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
		workers: cfg.Pipeline.Consumers,
	}, nil
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.domain.Scheduler.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		if err := s.infra.Lifecycle.WaitForStartup(); err != nil {
			s.infra.Logger.Error("startup failed", "error", err)
			return
		}
		s.infra.Logger.Info("all subsystems ready")

		if err := s.domain.Pipeline.Work(s.infra.Lifecycle.Context(), s.workers); err != nil {
			s.infra.Logger.Error("pipeline workers stopped", "error", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
