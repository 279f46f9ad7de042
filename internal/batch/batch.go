// Package batch implements BatchOps: best-effort enable/disable/delete/
// run operations over many task ids, where each id is processed
// independently and lands in exactly one outcome bucket (spec §4.6).
package batch

import (
	"context"
	"log/slog"

	"github.com/basecrew/taskscheduler/internal/core"
	"github.com/basecrew/taskscheduler/internal/runner"
)

// Action selects the batch operation.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionRun     Action = "run"
)

// Request is one batch operation over a set of task ids.
type Request struct {
	Action  Action
	TaskIDs []int64
}

// Result partitions TaskIDs into outcome buckets; only the buckets
// relevant to Action are populated.
type Result struct {
	Action    Action  `json:"action"`
	Deleted   []int64 `json:"deleted,omitempty"`
	Updated   []int64 `json:"updated,omitempty"`
	Unchanged []int64 `json:"unchanged,omitempty"`
	Queued    []int64 `json:"queued,omitempty"`
	Running   []int64 `json:"running,omitempty"`
	Blocked   []int64 `json:"blocked,omitempty"`
	Missing   []int64 `json:"missing,omitempty"`
}

// Fireer is the subset of *runner.Runner the "run" action needs.
type Fireer interface {
	Fire(ctx context.Context, taskID int64, reason string) (runner.Outcome, error)
}

// Ops executes batch operations against a Store and Runner.
type Ops struct {
	store  core.Store
	runner Fireer
	logger *slog.Logger
}

// New constructs an Ops.
func New(store core.Store, r Fireer, logger *slog.Logger) *Ops {
	return &Ops{store: store, runner: r, logger: logger}
}

// Execute processes req, one task id at a time, each independently so
// a failure on one id never rolls back another (spec §4.6 "best-effort,
// not atomic across ids").
func (o *Ops) Execute(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Action: req.Action}
	switch req.Action {
	case ActionDelete:
		for _, id := range req.TaskIDs {
			if err := o.store.DeleteTask(ctx, id); err != nil {
				if core.KindOf(err) == core.ErrNotFound {
					result.Missing = append(result.Missing, id)
					continue
				}
				o.logger.Error("batch delete failed", "task_id", id, "error", err)
				continue
			}
			result.Deleted = append(result.Deleted, id)
		}
	case ActionEnable:
		o.setActive(ctx, req.TaskIDs, true, result)
	case ActionDisable:
		o.setActive(ctx, req.TaskIDs, false, result)
	case ActionRun:
		for _, id := range req.TaskIDs {
			outcome, err := o.runner.Fire(ctx, id, core.ReasonManual)
			if err != nil {
				o.logger.Error("batch run failed", "task_id", id, "error", err)
				continue
			}
			switch outcome {
			case runner.OutcomeQueued:
				result.Queued = append(result.Queued, id)
			case runner.OutcomeRunning:
				result.Running = append(result.Running, id)
			case runner.OutcomeBlocked:
				result.Blocked = append(result.Blocked, id)
			case runner.OutcomeMissing:
				result.Missing = append(result.Missing, id)
			}
		}
	default:
		return nil, core.NewError(core.ErrValidationFailed, "action must be one of delete, enable, disable, run", nil)
	}
	return result, nil
}

func (o *Ops) setActive(ctx context.Context, ids []int64, active bool, result *Result) {
	for _, id := range ids {
		task, err := o.store.GetTask(ctx, id)
		if err != nil {
			if core.KindOf(err) == core.ErrNotFound {
				result.Missing = append(result.Missing, id)
				continue
			}
			o.logger.Error("batch enable/disable: get task failed", "task_id", id, "error", err)
			continue
		}
		if task.IsActive == active {
			result.Unchanged = append(result.Unchanged, id)
			continue
		}
		task.IsActive = active
		if err := o.store.UpdateTask(ctx, task); err != nil {
			o.logger.Error("batch enable/disable: update task failed", "task_id", id, "error", err)
			continue
		}
		if !active {
			if err := o.store.SetNextRun(ctx, task.ID, nil); err != nil {
				o.logger.Error("batch disable: clear next_run_at failed", "task_id", id, "error", err)
			}
		}
		result.Updated = append(result.Updated, id)
	}
}
