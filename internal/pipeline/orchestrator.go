package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/lexis/internal/runs"
	"github.com/JaimeStill/lexis/internal/websites"
	"github.com/JaimeStill/lexis/pkg/queue"
)

const tracerName = "github.com/JaimeStill/lexis/internal/pipeline"

// Runs records run reports.
type Runs interface {
	Begin(ctx context.Context, id, websiteID uuid.UUID, trigger string) (*runs.Run, error)
	Save(ctx context.Context, run *runs.Run) error
	Finish(ctx context.Context, run *runs.Run) error
	Find(ctx context.Context, id uuid.UUID) (*runs.Run, error)
}

// Websites resolves the website a run belongs to.
type Websites interface {
	Find(ctx context.Context, id uuid.UUID) (*websites.Website, error)
}

// Queue carries stage tasks between processes and guards each website
// with a lock held for the length of a run.
type Queue interface {
	Push(ctx context.Context, msg []byte) error
	Pop(ctx context.Context) ([]byte, error)
	Acquire(ctx context.Context, name, token string, ttl time.Duration) (queue.Lock, error)
	Held(name, token string) queue.Lock
}

// Task asks a worker to run one stage of a run.
type Task struct {
	RunID     uuid.UUID `json:"run_id"`
	WebsiteID uuid.UUID `json:"website_id"`
	Stage     string    `json:"stage"`
}

// Options tune an Orchestrator.
type Options struct {
	// LockTTL bounds how long a crashed run can block its website.
	LockTTL time.Duration
	// StageTimeout bounds one stage. Zero means no bound.
	StageTimeout time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs a website's stages in order and records the run.
// Run executes a whole run in the calling process; Enqueue and Work split
// it into queued tasks, one per stage, each chaining the next on
// completion.
type Orchestrator struct {
	stages   []Stage
	runs     Runs
	websites Websites
	queue    Queue
	lockTTL  time.Duration
	timeout  time.Duration
	now      func() time.Time
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator over stages, in run order.
func NewOrchestrator(stages []Stage, runStore Runs, sites Websites, q Queue, opts Options, logger *slog.Logger) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Orchestrator{
		stages:   stages,
		runs:     runStore,
		websites: sites,
		queue:    q,
		lockTTL:  ttl,
		timeout:  opts.StageTimeout,
		now:      now,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With("system", "orchestrator"),
	}
}

// LockName is the queue lock guarding a website's runs.
func LockName(websiteID uuid.UUID) string {
	return "website:" + websiteID.String()
}

// Run executes every stage for the website and returns the finished run.
// It fails with runs.ErrBusy when the website already has a run.
func (o *Orchestrator) Run(ctx context.Context, websiteID uuid.UUID, trigger string) (*runs.Run, error) {
	site, run, lock, err := o.begin(ctx, websiteID, trigger)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, lock)

	for _, st := range o.stages {
		report := o.execute(ctx, st, *site)
		run.Stages = append(run.Stages, report)
		if report.Status == runs.StatusFailure {
			break
		}
		if err := o.runs.Save(ctx, run); err != nil {
			o.logger.Error("save run progress failed", "run_id", run.ID, "error", err)
		}
	}

	if err := o.finish(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// Enqueue starts a run for the website and queues its first stage. The
// website lock is taken here and released by the worker that finishes
// the run.
func (o *Orchestrator) Enqueue(ctx context.Context, websiteID uuid.UUID, trigger string) (uuid.UUID, error) {
	if len(o.stages) == 0 {
		return uuid.Nil, fmt.Errorf("%w: no stages configured", ErrUnknownStage)
	}

	_, run, lock, err := o.begin(ctx, websiteID, trigger)
	if err != nil {
		return uuid.Nil, err
	}

	task := Task{RunID: run.ID, WebsiteID: websiteID, Stage: o.stages[0].Name()}
	if err := o.push(ctx, task); err != nil {
		run.Error = errorText(err)
		run.Status = runs.StatusFailure
		if ferr := o.runs.Finish(context.WithoutCancel(ctx), run); ferr != nil {
			o.logger.Error("finish run failed", "run_id", run.ID, "error", ferr)
		}
		o.release(ctx, lock)
		return uuid.Nil, err
	}

	o.logger.Info("run enqueued", "run_id", run.ID, "website_id", websiteID, "trigger", trigger)
	return run.ID, nil
}

// Step runs the stage a task names, records it, and either queues the
// next stage or finishes the run and frees the website.
func (o *Orchestrator) Step(ctx context.Context, task Task) error {
	run, err := o.runs.Find(ctx, task.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", task.RunID, err)
	}
	if run.Status != runs.StatusRunning {
		o.logger.Warn("task for finished run dropped", "run_id", run.ID, "stage", task.Stage)
		return nil
	}

	lock := o.queue.Held(LockName(run.WebsiteID), run.ID.String())

	pos := o.position(task.Stage)
	if pos < 0 {
		run.Error = errorf("%s: %s", ErrUnknownStage, task.Stage)
		return o.close(ctx, run, lock)
	}

	site, err := o.websites.Find(ctx, run.WebsiteID)
	if err != nil {
		run.Error = errorf("load website: %v", err)
		return o.close(ctx, run, lock)
	}

	report := o.execute(ctx, o.stages[pos], *site)
	run.Stages = append(run.Stages, report)

	if report.Status == runs.StatusFailure || pos == len(o.stages)-1 {
		return o.close(ctx, run, lock)
	}

	if err := o.runs.Save(ctx, run); err != nil {
		o.logger.Error("save run progress failed", "run_id", run.ID, "error", err)
	}

	next := Task{RunID: run.ID, WebsiteID: run.WebsiteID, Stage: o.stages[pos+1].Name()}
	if err := o.push(ctx, next); err != nil {
		run.Error = errorText(err)
		return o.close(ctx, run, lock)
	}
	return nil
}

// Work consumes tasks with n concurrent consumers until ctx ends.
func (o *Orchestrator) Work(ctx context.Context, n int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range max(n, 1) {
		g.Go(func() error {
			return o.consume(gctx, i)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) consume(ctx context.Context, worker int) error {
	logger := o.logger.With("worker", worker)
	logger.Info("worker started")

	for {
		if ctx.Err() != nil {
			logger.Info("worker stopped")
			return nil
		}

		msg, err := o.queue.Pop(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("pop task failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		var task Task
		if err := json.Unmarshal(msg, &task); err != nil {
			logger.Error("malformed task dropped", "error", err)
			continue
		}

		if err := o.Step(ctx, task); err != nil {
			logger.Error("task failed", "run_id", task.RunID, "stage", task.Stage, "error", err)
		}
	}
}

func (o *Orchestrator) begin(ctx context.Context, websiteID uuid.UUID, trigger string) (*websites.Website, *runs.Run, queue.Lock, error) {
	site, err := o.websites.Find(ctx, websiteID)
	if err != nil {
		if errors.Is(err, websites.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: %s", runs.ErrWebsite, websiteID)
		}
		return nil, nil, nil, fmt.Errorf("load website: %w", err)
	}

	id := uuid.New()
	lock, err := o.queue.Acquire(ctx, LockName(websiteID), id.String(), o.lockTTL)
	if err != nil {
		if errors.Is(err, queue.ErrLockHeld) {
			return nil, nil, nil, fmt.Errorf("%w: %s", runs.ErrBusy, site.Name)
		}
		return nil, nil, nil, fmt.Errorf("lock website: %w", err)
	}

	run, err := o.runs.Begin(ctx, id, websiteID, trigger)
	if err != nil {
		o.release(ctx, lock)
		return nil, nil, nil, fmt.Errorf("begin run: %w", err)
	}

	o.logger.Info("run started", "run_id", id, "website", site.Name, "trigger", trigger)
	return site, run, lock, nil
}

// execute runs one stage under the stage timeout and a trace span.
func (o *Orchestrator) execute(ctx context.Context, st Stage, site websites.Website) runs.StageReport {
	started := o.now().UTC()
	report := runs.StageReport{Name: st.Name(), Status: runs.StatusRunning, StartedAt: &started}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "pipeline."+st.Name(), trace.WithAttributes(
		attribute.String("lexis.website", site.Name),
		attribute.String("lexis.stage", st.Name()),
	))
	defer span.End()

	tally, err := st.Run(ctx, site)
	report.Processed = tally.Processed
	report.Skipped = tally.Skipped
	report.Failed = tally.Failed
	report.Complete(err, o.now().UTC())

	span.SetAttributes(
		attribute.Int("lexis.processed", tally.Processed),
		attribute.Int("lexis.skipped", tally.Skipped),
		attribute.Int("lexis.failed", tally.Failed),
	)

	logger := o.logger.With("stage", st.Name(), "website", site.Name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("stage failed", "error", err, "processed", tally.Processed, "failed", tally.Failed)
		return report
	}

	logger.Info("stage complete",
		"status", report.Status,
		"processed", tally.Processed,
		"skipped", tally.Skipped,
		"failed", tally.Failed,
	)
	return report
}

// finish marks stages never reached as skipped and stores the outcome.
func (o *Orchestrator) finish(ctx context.Context, run *runs.Run) error {
	for _, st := range o.stages[min(len(run.Stages), len(o.stages)):] {
		run.Stages = append(run.Stages, runs.StageReport{Name: st.Name(), Status: runs.StatusSkipped})
	}

	run.Status = runs.Summarize(run.Stages)
	if run.Error != nil {
		run.Status = runs.StatusFailure
	}
	for _, s := range run.Stages {
		if s.Status == runs.StatusFailure && run.Error == nil {
			run.Error = errorf("%s: %s", s.Name, s.Error)
		}
	}

	finished := o.now().UTC()
	run.FinishedAt = &finished

	if err := o.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}

	o.logger.Info("run finished",
		"run_id", run.ID,
		"status", run.Status,
		"processed", run.Processed(),
		"skipped", run.Skipped(),
		"failed", run.Failed(),
	)
	return nil
}

// close finishes a queued run and frees its website.
func (o *Orchestrator) close(ctx context.Context, run *runs.Run, lock queue.Lock) error {
	defer o.release(ctx, lock)
	return o.finish(ctx, run)
}

func (o *Orchestrator) release(ctx context.Context, lock queue.Lock) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		o.logger.Error("release website lock failed", "token", lock.Token(), "error", err)
	}
}

func (o *Orchestrator) push(ctx context.Context, task Task) error {
	msg, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := o.queue.Push(ctx, msg); err != nil {
		return fmt.Errorf("queue %s stage: %w", task.Stage, err)
	}
	return nil
}

func (o *Orchestrator) position(name string) int {
	for i, st := range o.stages {
		if st.Name() == name {
			return i
		}
	}
	return -1
}

func errorText(err error) *string {
	msg := err.Error()
	return &msg
}

func errorf(format string, args ...any) *string {
	msg := fmt.Sprintf(format, args...)
	return &msg
}
