package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/runs"
	"github.com/JaimeStill/lexis/internal/scheduler"
	"github.com/JaimeStill/lexis/internal/websites"
)

type fakeSites []websites.Website

func (f fakeSites) List(context.Context) ([]websites.Website, error) {
	return f, nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	busy     map[uuid.UUID]bool
	enqueued []uuid.UUID
	triggers []string
}

func (f *fakeDispatcher) Enqueue(_ context.Context, websiteID uuid.UUID, trigger string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy[websiteID] {
		return uuid.Nil, runs.ErrBusy
	}
	f.enqueued = append(f.enqueued, websiteID)
	f.triggers = append(f.triggers, trigger)
	return uuid.New(), nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func schedule(s string) *string { return &s }

func TestLoadSchedulesEnabledWebsites(t *testing.T) {
	sites := fakeSites{
		{ID: uuid.New(), Name: "eur-lex", Enabled: true},
		{ID: uuid.New(), Name: "bis", Enabled: true, Schedule: schedule("*/5 * * * *")},
		{ID: uuid.New(), Name: "retired", Enabled: false},
		{ID: uuid.New(), Name: "broken", Enabled: true, Schedule: schedule("not a cron")},
	}

	s := scheduler.New(sites, &fakeDispatcher{}, "0 2 * * *", discard())
	n, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("scheduled = %d, want 2", n)
	}

	specs := map[string]string{}
	for _, e := range s.Entries() {
		specs[e.Website] = e.Schedule
		if e.Next.IsZero() {
			t.Errorf("%s has no next fire time", e.Website)
		}
	}
	if specs["eur-lex"] != "0 2 * * *" {
		t.Errorf("eur-lex schedule = %q, want fallback", specs["eur-lex"])
	}
	if specs["bis"] != "*/5 * * * *" {
		t.Errorf("bis schedule = %q", specs["bis"])
	}
}

func TestLoadReplacesEntries(t *testing.T) {
	site := websites.Website{ID: uuid.New(), Name: "eur-lex", Enabled: true}
	s := scheduler.New(fakeSites{site}, &fakeDispatcher{}, "0 2 * * *", discard())

	for range 3 {
		if _, err := s.Load(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(s.Entries()); got != 1 {
		t.Errorf("entries = %d after reload, want 1", got)
	}
}

func TestFire(t *testing.T) {
	free := websites.Website{ID: uuid.New(), Name: "eur-lex"}
	busy := websites.Website{ID: uuid.New(), Name: "bis"}
	d := &fakeDispatcher{busy: map[uuid.UUID]bool{busy.ID: true}}
	s := scheduler.New(fakeSites{}, d, "0 2 * * *", discard())

	s.Fire(context.Background(), free)
	s.Fire(context.Background(), busy)

	if len(d.enqueued) != 1 || d.enqueued[0] != free.ID {
		t.Errorf("enqueued = %v, want only the free website", d.enqueued)
	}
	if d.triggers[0] != scheduler.Trigger {
		t.Errorf("trigger = %q", d.triggers[0])
	}
}

func TestLoadPropagatesListError(t *testing.T) {
	s := scheduler.New(failingSites{}, &fakeDispatcher{}, "0 2 * * *", discard())
	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected error")
	}
}

type failingSites struct{}

func (failingSites) List(context.Context) ([]websites.Website, error) {
	return nil, errors.New("db down")
}
