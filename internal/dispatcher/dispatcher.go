// Package dispatcher implements the scheduler's single control loop:
// the 1 Hz tick that scans due schedule tasks, keeps the
// ConditionPoller set in sync, and emits lifecycle fires at startup
// and shutdown (spec §4.4).
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
	"github.com/basecrew/taskscheduler/internal/poller"
)

const (
	tickInterval         = time.Second
	defaultShutdownGrace = 30 * time.Second
)

// Fireer is the subset of *runner.Runner the Dispatcher drives.
type Fireer interface {
	Enqueue(taskID int64, reason string)
	Wait()
}

// Options configures a Dispatcher.
type Options struct {
	ShutdownGrace time.Duration // default 30s
	ProbeTimeout  time.Duration // forwarded to the poller.Manager
}

// Dispatcher owns the tick loop and lifecycle fires.
type Dispatcher struct {
	store   core.Store
	runner  Fireer
	pollers *poller.Manager
	logger  *slog.Logger
	opts    Options

	warnedDormant map[int64]bool
}

// New constructs a Dispatcher.
func New(store core.Store, r Fireer, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = defaultShutdownGrace
	}
	return &Dispatcher{
		store:         store,
		runner:        r,
		pollers:       poller.NewManager(r, logger, opts.ProbeTimeout),
		logger:        logger,
		opts:          opts,
		warnedDormant: make(map[int64]bool),
	}
}

// Run emits boot fires, then drives the tick loop until ctx is
// canceled, at which point it emits shutdown fires and waits (bounded
// by ShutdownGrace) for the Runner to drain before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.emitLifecycle(ctx, core.EventSystemBoot, core.ReasonEventBoot); err != nil {
		return err
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	now := time.Now()

	due, err := d.store.DueScheduleTasks(ctx, now)
	if err != nil {
		d.logger.Error("tick: load due schedule tasks failed", "error", err)
	}
	for _, task := range due {
		d.runner.Enqueue(task.ID, core.ReasonCron)
		d.recomputeNextRun(ctx, task, now)
	}

	unscheduled, err := d.store.UnscheduledTasks(ctx)
	if err != nil {
		d.logger.Error("tick: load unscheduled tasks failed", "error", err)
	}
	for _, task := range unscheduled {
		d.recomputeNextRun(ctx, task, now)
	}

	scriptTasks, err := d.store.EventTasks(ctx, core.EventScript)
	if err != nil {
		d.logger.Error("tick: load script event tasks failed", "error", err)
		return
	}
	d.pollers.Reconcile(scriptTasks)
}

// recomputeNextRun advances next_run_at strictly past now (invariant
// 4) regardless of how far overdue the task was, which is what
// coalesces any missed ticks into a single fire (spec §4.4 "Missed ticks").
func (d *Dispatcher) recomputeNextRun(ctx context.Context, task *core.Task, now time.Time) {
	schedule, err := core.ParseCron(task.ScheduleExpression)
	if err != nil {
		if !d.warnedDormant[task.ID] {
			d.logger.Error("tick: malformed cron expression, task is now dormant", "task_id", task.ID, "expression", task.ScheduleExpression, "error", err)
			d.warnedDormant[task.ID] = true
		}
		if err := d.store.SetNextRun(ctx, task.ID, nil); err != nil {
			d.logger.Error("tick: clear next_run_at for dormant task failed", "task_id", task.ID, "error", err)
		}
		return
	}
	delete(d.warnedDormant, task.ID)
	next := schedule.NextAfter(now)
	if err := d.store.SetNextRun(ctx, task.ID, next); err != nil {
		d.logger.Error("tick: set next_run_at failed", "task_id", task.ID, "error", err)
	}
}

func (d *Dispatcher) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ShutdownGrace)
	defer cancel()

	if err := d.emitLifecycle(ctx, core.EventSystemShutdown, core.ReasonEventShutdown); err != nil {
		d.logger.Error("shutdown: emit shutdown fires failed", "error", err)
	}

	drained := make(chan struct{})
	go func() {
		d.runner.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		d.logger.Warn("shutdown: grace period elapsed with runs still in flight")
	}

	d.pollers.StopAll()
	return nil
}

func (d *Dispatcher) emitLifecycle(ctx context.Context, eventType core.EventType, reason string) error {
	tasks, err := d.store.EventTasks(ctx, eventType)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		d.runner.Enqueue(task.ID, reason)
	}
	return nil
}
