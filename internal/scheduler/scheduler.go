// Package scheduler triggers pipeline runs on each website's cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/JaimeStill/lexis/internal/runs"
	"github.com/JaimeStill/lexis/internal/websites"
	"github.com/JaimeStill/lexis/pkg/lifecycle"
)

// Trigger labels runs started by the scheduler.
const Trigger = "schedule"

// Websites lists the websites to schedule.
type Websites interface {
	List(ctx context.Context) ([]websites.Website, error)
}

// Entry is one scheduled website.
type Entry struct {
	WebsiteID uuid.UUID `json:"website_id"`
	Website   string    `json:"website"`
	Schedule  string    `json:"schedule"`
	Next      time.Time `json:"next"`
}

// Scheduler owns a cron instance with one entry per enabled website.
type Scheduler struct {
	cron     *cron.Cron
	sites    Websites
	dispatch runs.Dispatcher
	fallback string
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]scheduled
}

type scheduled struct {
	id   cron.EntryID
	site websites.Website
	spec string
}

// New creates a Scheduler. Websites without their own schedule use
// fallback.
func New(sites Websites, dispatch runs.Dispatcher, fallback string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sites:    sites,
		dispatch: dispatch,
		fallback: fallback,
		logger:   logger.With("system", "scheduler"),
		entries:  make(map[uuid.UUID]scheduled),
	}
}

// Start loads the schedule and starts the cron on startup, and stops it on
// shutdown, waiting for in-flight triggers.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("scheduler", func() error {
		n, err := s.Load(lc.Context())
		if err != nil {
			return err
		}
		s.cron.Start()
		s.logger.Info("scheduler started", "websites", n)
		return nil
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	})

	return nil
}

// Load replaces the cron entries with one per enabled website and returns
// how many were scheduled. A website with an unparsable schedule is logged
// and left out.
func (s *Scheduler) Load(ctx context.Context) (int, error) {
	list, err := s.sites.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list websites: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		s.cron.Remove(e.id)
		delete(s.entries, id)
	}

	for _, site := range list {
		if !site.Enabled {
			continue
		}
		spec := s.fallback
		if site.Schedule != nil && *site.Schedule != "" {
			spec = *site.Schedule
		}

		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			s.logger.Error("invalid website schedule", "website", site.Name, "schedule", spec, "error", err)
			continue
		}

		id := s.cron.Schedule(schedule, cron.FuncJob(func() {
			s.Fire(context.Background(), site)
		}))
		s.entries[site.ID] = scheduled{id: id, site: site, spec: spec}
		s.logger.Info("website scheduled", "website", site.Name, "schedule", spec)
	}

	return len(s.entries), nil
}

// Fire enqueues a run for site. A website whose previous run is still in
// progress is skipped for this tick.
func (s *Scheduler) Fire(ctx context.Context, site websites.Website) {
	runID, err := s.dispatch.Enqueue(ctx, site.ID, Trigger)
	switch {
	case errors.Is(err, runs.ErrBusy):
		s.logger.Info("run in progress, skipping tick", "website", site.Name)
	case err != nil:
		s.logger.Error("scheduled run failed to enqueue", "website", site.Name, "error", err)
	default:
		s.logger.Info("scheduled run enqueued", "website", site.Name, "run_id", runID)
	}
}

// Entries lists scheduled websites ordered by next fire time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		next := s.cron.Entry(e.id).Next
		if next.IsZero() {
			if sched, err := cron.ParseStandard(e.spec); err == nil {
				next = sched.Next(time.Now())
			}
		}
		out = append(out, Entry{WebsiteID: e.site.ID, Website: e.site.Name, Schedule: e.spec, Next: next})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.Next.Compare(b.Next); c != 0 {
			return c
		}
		return strings.Compare(a.Website, b.Website)
	})
	return out
}
