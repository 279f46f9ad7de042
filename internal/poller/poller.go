// Package poller implements the ConditionPoller: an independent
// per-task worker that probes a task's condition_script on an
// interval and emits a fire-request whenever the probe exits zero
// (spec §4.3).
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basecrew/taskscheduler/internal/account"
	"github.com/basecrew/taskscheduler/internal/core"
)

const defaultProbeTimeout = 60 * time.Second

// Fireer is the subset of Runner the poller needs; it is an interface
// so tests can substitute a recorder.
type Fireer interface {
	Enqueue(taskID int64, reason string)
}

// Manager owns one worker per active script-event task and reconciles
// the set on every Dispatcher tick.
type Manager struct {
	mu      sync.Mutex
	workers map[int64]*worker
	fire    Fireer
	logger  *slog.Logger
	timeout time.Duration
}

// NewManager constructs a Manager. timeout <= 0 uses the spec default
// of 60 seconds.
func NewManager(fire Fireer, logger *slog.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Manager{
		workers: make(map[int64]*worker),
		fire:    fire,
		logger:  logger,
		timeout: timeout,
	}
}

// Reconcile starts a worker for every active script-event task not
// already running one, and stops workers for tasks no longer in the
// active set (spec §4.4 step 3: "ensure a ConditionPoller is alive...
// reap pollers of tasks that became inactive or were deleted").
func (m *Manager) Reconcile(tasks []*core.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[int64]*core.Task, len(tasks))
	for _, t := range tasks {
		if t.IsActive && t.TriggerType == core.TriggerEvent && t.EventType == core.EventScript {
			wanted[t.ID] = t
		}
	}

	for id, w := range m.workers {
		if _, ok := wanted[id]; !ok {
			w.stop()
			delete(m.workers, id)
		}
	}

	for id, task := range wanted {
		if existing, ok := m.workers[id]; ok {
			existing.updateTask(task)
			continue
		}
		w := newWorker(task, m.fire, m.logger, m.timeout)
		m.workers[id] = w
		w.start()
	}
}

// StopAll halts every worker, used on process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.workers {
		w.stop()
		delete(m.workers, id)
	}
}

type worker struct {
	taskID  int64
	task    atomic.Pointer[core.Task]
	fire    Fireer
	logger  *slog.Logger
	timeout time.Duration
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newWorker(task *core.Task, fire Fireer, logger *slog.Logger, timeout time.Duration) *worker {
	w := &worker{taskID: task.ID, fire: fire, logger: logger, timeout: timeout, done: make(chan struct{})}
	w.task.Store(task)
	return w
}

func (w *worker) updateTask(task *core.Task) {
	w.task.Store(task)
}

func (w *worker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
}

func (w *worker) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *worker) loop(ctx context.Context) {
	defer close(w.done)
	for {
		task := w.task.Load()
		interval := time.Duration(task.ConditionInterval) * time.Second
		if interval <= 0 {
			interval = defaultProbeTimeout
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.probe(ctx)
		}
	}
}

// probe is single-flight: if the previous probe is still running when
// the interval elapses, this tick is skipped (spec §4.3).
func (w *worker) probe(parent context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer w.running.Store(false)

		task := w.task.Load()
		ctx, cancel := context.WithTimeout(parent, w.timeout)
		defer cancel()

		identity, err := account.Resolve(task.Account)
		if err != nil {
			w.logger.Warn("condition probe: privilege resolution failed", "task_id", task.ID, "error", err)
			return
		}
		cmd := probeCommand(ctx, task.ConditionScript, identity)
		err = cmd.Run()
		if ctx.Err() != nil {
			return // timed out: treat as non-trigger, record nothing
		}
		if err != nil {
			return // non-zero exit or spawn error: no fire, no record
		}
		w.fire.Enqueue(task.ID, core.ReasonEventScript)
	}()
}
