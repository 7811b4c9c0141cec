package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/lexis/internal/api"
	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/internal/infrastructure"
	"github.com/JaimeStill/lexis/internal/websites"
)

var rootCmd = &cobra.Command{
	Use:           "lexis",
	Short:         "Operate the legal document annotation pipeline",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// app is a started process: infrastructure plus the domain systems.
type app struct {
	cfg    *config.Config
	infra  *infrastructure.Infrastructure
	domain *api.Domain
}

// open loads configuration, builds the domain, and blocks until every
// infrastructure system passed its startup checks.
func open() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	domain := api.NewDomain(api.NewRuntime(cfg, infra))

	if err := infra.Start(); err != nil {
		return nil, err
	}
	if err := infra.Lifecycle.WaitForStartup(); err != nil {
		infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return nil, fmt.Errorf("startup: %w", err)
	}

	return &app{cfg: cfg, infra: infra, domain: domain}, nil
}

func (a *app) close() {
	if err := a.infra.Lifecycle.Shutdown(a.cfg.ShutdownTimeoutDuration()); err != nil {
		a.infra.Logger.Error("shutdown failed", "error", err)
	}
}

// website resolves a website by id or name.
func (a *app) website(ctx context.Context, ref string) (*websites.Website, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return a.domain.Websites.Find(ctx, id)
	}
	site, err := a.domain.Websites.FindByName(ctx, ref)
	if errors.Is(err, websites.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", websites.ErrNotFound, ref)
	}
	return site, err
}
