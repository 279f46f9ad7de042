package core

import (
	"context"
	"time"
)

// Store abstracts the durable task/result persistence layer (spec §4.1).
// internal/store provides the SQLite-backed implementation; the
// dispatcher, runner, and batch packages depend only on this interface.
type Store interface {
	InsertTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id int64) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)

	// DueScheduleTasks returns active schedule tasks whose next_run_at is
	// at or before now.
	DueScheduleTasks(ctx context.Context, now time.Time) ([]*Task, error)
	// UnscheduledTasks returns active schedule tasks with no next_run_at
	// yet (freshly created/updated, or recovering from a dormant cron
	// expression) so the Dispatcher can seed one without firing.
	UnscheduledTasks(ctx context.Context) ([]*Task, error)
	// EventTasks returns active event tasks of the given type. An empty
	// eventType returns all active event tasks regardless of sub-type.
	EventTasks(ctx context.Context, eventType EventType) ([]*Task, error)

	SetNextRun(ctx context.Context, id int64, next *time.Time) error
	UpdateLastResult(ctx context.Context, id int64, at time.Time, status ResultStatus) error

	InsertResult(ctx context.Context, result *TaskResult) error
	FinalizeResult(ctx context.Context, id int64, status ResultStatus, finishedAt time.Time, log string, exitCode *int) error
	ListResults(ctx context.Context, taskID int64, limit int) ([]*TaskResult, error)
	GetResult(ctx context.Context, id int64) (*TaskResult, error)
	DeleteResult(ctx context.Context, taskID, resultID int64) error
	ClearResults(ctx context.Context, taskID int64) error

	// HasRunning reports whether taskID currently has a result with
	// status=running (invariant 2, the single-flight gate).
	HasRunning(ctx context.Context, taskID int64) (bool, error)
	// LatestSuccess returns the started_at of the most recent successful
	// result for taskID, or nil if the task has never succeeded
	// (used by the Runner's prerequisite gate).
	LatestSuccess(ctx context.Context, taskID int64) (*time.Time, error)
	// Dependents returns every active task whose PreTaskIDs lists
	// parentID, used by the Runner's success cascade (spec §4.5 step 8).
	Dependents(ctx context.Context, parentID int64) ([]*Task, error)

	TemplateStore
}

// TemplateStore persists the reusable script-body library (a supplemented
// feature, not part of the core task/result model).
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]*Template, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	CreateTemplate(ctx context.Context, tpl *Template) error
	UpdateTemplate(ctx context.Context, id int64, tpl *Template) error
	DeleteTemplate(ctx context.Context, id int64) error
	// ImportTemplates upserts by key, matching the mapping format the
	// original tool's templates.json used (key -> {name, script_body}).
	// It returns the count inserted and updated.
	ImportTemplates(ctx context.Context, mapping map[string]Template) (inserted, updated int, err error)
	ExportTemplates(ctx context.Context) (map[string]Template, error)
}
