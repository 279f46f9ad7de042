// Package api is the thin, transport-agnostic read/write projection
// the HTTP layer binds to (spec §2 "API surface"). It knows nothing
// about HTTP, JSON wire framing, or auth; internal/httpapi supplies that.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/basecrew/taskscheduler/internal/batch"
	"github.com/basecrew/taskscheduler/internal/core"
	"github.com/basecrew/taskscheduler/internal/runner"
)

// Runner is the subset of *runner.Runner the Service needs for manual
// fires.
type Runner interface {
	Fire(ctx context.Context, taskID int64, reason string) (runner.Outcome, error)
}

// BatchRunner is the subset of *batch.Ops the Service needs.
type BatchRunner interface {
	Execute(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// Service implements the operations behind the REST surface in spec §6.
type Service struct {
	store  core.Store
	runner Runner
	batch  BatchRunner
	logger *slog.Logger
}

// New constructs a Service.
func New(store core.Store, r Runner, b BatchRunner, logger *slog.Logger) *Service {
	return &Service{store: store, runner: r, batch: b, logger: logger}
}

// TaskView is a task plus its denormalized latest-result projection,
// the shape the task list and single-task endpoints return (spec §6
// "GET /api/tasks | list tasks with latest result embedded").
type TaskView struct {
	*core.Task
	LatestResult *core.TaskResult `json:"latest_result,omitempty"`
}

func (s *Service) view(ctx context.Context, task *core.Task) *TaskView {
	v := &TaskView{Task: task}
	results, err := s.store.ListResults(ctx, task.ID, 1)
	if err != nil {
		s.logger.Warn("load latest result failed", "task_id", task.ID, "error", err)
		return v
	}
	if len(results) > 0 {
		v.LatestResult = results[0]
	}
	return v
}

// ListTasks returns every task with its latest result embedded.
func (s *Service) ListTasks(ctx context.Context) ([]*TaskView, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, s.view(ctx, t))
	}
	return views, nil
}

// GetTask returns a single task view.
func (s *Service) GetTask(ctx context.Context, id int64) (*TaskView, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, task), nil
}

// TaskInput is the wire shape of a task create/update payload.
type TaskInput struct {
	Name               string  `json:"name"`
	Account            string  `json:"account"`
	TriggerType        string  `json:"trigger_type"`
	ScheduleExpression string  `json:"schedule_expression,omitempty"`
	EventType          string  `json:"event_type,omitempty"`
	ConditionScript    string  `json:"condition_script,omitempty"`
	ConditionInterval  int     `json:"condition_interval,omitempty"`
	ScriptBody         string  `json:"script_body"`
	PreTaskIDs         []int64 `json:"pre_task_ids,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

func (in TaskInput) applyTo(task *core.Task) {
	task.Name = in.Name
	task.Account = in.Account
	task.TriggerType = core.TriggerType(in.TriggerType)
	task.ScheduleExpression = in.ScheduleExpression
	task.EventType = core.EventType(in.EventType)
	task.ConditionScript = in.ConditionScript
	if in.ConditionInterval > 0 {
		task.ConditionInterval = in.ConditionInterval
	}
	task.ScriptBody = in.ScriptBody
	task.PreTaskIDs = in.PreTaskIDs
	if in.IsActive != nil {
		task.IsActive = *in.IsActive
	}
}

// CreateTask validates and inserts a new task. next_run_at is left
// null; the Dispatcher seeds it on its next tick (spec §5 "next_run_at
// is written only by Dispatcher").
func (s *Service) CreateTask(ctx context.Context, in TaskInput) (*TaskView, error) {
	task := core.NewTask()
	in.applyTo(task)
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	return s.view(ctx, task), nil
}

// UpdateTask replaces a task's mutable fields. A change to
// schedule_expression nulls next_run_at so the Dispatcher recomputes
// it against the new expression rather than an expression mismatch.
// next_run_at itself is never part of the UpdateTask write (only the
// Dispatcher sets it to a fire time) — clearing it is a separate,
// explicit SetNextRun call so it can't race with a concurrent tick.
func (s *Service) UpdateTask(ctx context.Context, id int64, in TaskInput) (*TaskView, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	previousExpr := task.ScheduleExpression
	in.applyTo(task)
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if task.ScheduleExpression != previousExpr {
		if err := s.store.SetNextRun(ctx, task.ID, nil); err != nil {
			return nil, err
		}
		task.NextRunAt = nil
	}
	return s.view(ctx, task), nil
}

// DeleteTask removes a task and its results.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	return s.store.DeleteTask(ctx, id)
}

// ToggleTask flips a task's is_active flag, a convenience wrapper over
// UpdateTask for clients that don't want to resend the full payload.
func (s *Service) ToggleTask(ctx context.Context, id int64) (*TaskView, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task.IsActive = !task.IsActive
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	if !task.IsActive {
		if err := s.store.SetNextRun(ctx, task.ID, nil); err != nil {
			return nil, err
		}
		task.NextRunAt = nil
	}
	return s.view(ctx, task), nil
}

// RunResult is the response to a manual run request.
type RunResult struct {
	Outcome runner.Outcome `json:"outcome"`
}

// RunTask enqueues a manual fire for id (spec §6 "POST /api/tasks/{id}/run").
func (s *Service) RunTask(ctx context.Context, id int64) (*RunResult, error) {
	outcome, err := s.runner.Fire(ctx, id, core.ReasonManual)
	if err != nil {
		return nil, err
	}
	return &RunResult{Outcome: outcome}, nil
}

// ListResults returns the newest-first, capped result history for a task.
func (s *Service) ListResults(ctx context.Context, taskID int64, limit int) ([]*core.TaskResult, error) {
	return s.store.ListResults(ctx, taskID, limit)
}

// DeleteResult removes a single result.
func (s *Service) DeleteResult(ctx context.Context, taskID, resultID int64) error {
	return s.store.DeleteResult(ctx, taskID, resultID)
}

// ClearResults removes every result for a task.
func (s *Service) ClearResults(ctx context.Context, taskID int64) error {
	return s.store.ClearResults(ctx, taskID)
}

// Batch executes a best-effort batch operation (spec §6
// "POST /api/tasks/batch").
func (s *Service) Batch(ctx context.Context, req batch.Request) (*batch.Result, error) {
	return s.batch.Execute(ctx, req)
}

// PreviewCron returns the first k fire times after now for expr (spec
// §4.2 "Preview: next_times").
func (s *Service) PreviewCron(expr string, now time.Time, k int) ([]time.Time, error) {
	schedule, err := core.ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return schedule.NextTimes(now, k), nil
}
