package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
)

// InsertTask validates pre_task_ids against existing rows and inserts the
// task inside a single transaction (spec §4.1: "task insert with
// prerequisite validation ... execute in a single transaction").
func (s *Store) InsertTask(ctx context.Context, task *core.Task) error {
	if err := validateTaskFields(task); err != nil {
		return err
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.NewError(core.ErrPersistent, "begin transaction", err)
	}
	defer tx.Rollback()

	preTaskIDs := normalizePreTaskIDs(task.PreTaskIDs, 0)
	if err := validatePrerequisitesExist(ctx, tx, preTaskIDs); err != nil {
		return err
	}
	idsJSON, err := encodeIDs(preTaskIDs)
	if err != nil {
		return core.NewError(core.ErrInternal, "encode pre_task_ids", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (
			name, account, trigger_type, schedule_expression, event_type,
			condition_script, condition_interval, script_body, pre_task_ids,
			is_active, created_at, updated_at, next_run_at, last_run_at, last_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.Name, task.Account, string(task.TriggerType), nullableString(task.ScheduleExpression),
		nullableString(string(task.EventType)), nullableString(task.ConditionScript), task.ConditionInterval,
		task.ScriptBody, idsJSON, boolToInt(task.IsActive), formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
		formatTimePtr(task.NextRunAt), formatTimePtr(task.LastRunAt), nullableStatus(task.LastStatus),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return core.NewError(core.ErrConflict, fmt.Sprintf("task name %q already exists", task.Name), err)
		}
		return core.NewError(core.ErrPersistent, "insert task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.NewError(core.ErrPersistent, "read inserted task id", err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewError(core.ErrPersistent, "commit insert task", err)
	}
	task.PreTaskIDs = preTaskIDs
	task.ID = id
	return nil
}

// UpdateTask persists every mutable field on task except the ones owned
// exclusively by other components (next_run_at is Dispatcher-owned,
// last_run_at/last_status are Runner-owned — see spec §5 "Shared
// resource policy"); callers that need to touch those use SetNextRun /
// UpdateLastResult instead.
func (s *Store) UpdateTask(ctx context.Context, task *core.Task) error {
	if err := validateTaskFields(task); err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.NewError(core.ErrPersistent, "begin transaction", err)
	}
	defer tx.Rollback()

	preTaskIDs := normalizePreTaskIDs(task.PreTaskIDs, task.ID)
	if err := validatePrerequisitesExist(ctx, tx, preTaskIDs); err != nil {
		return err
	}
	idsJSON, err := encodeIDs(preTaskIDs)
	if err != nil {
		return core.NewError(core.ErrInternal, "encode pre_task_ids", err)
	}

	// next_run_at is intentionally absent from this statement (see the
	// doc comment above): a caller that read the task earlier and never
	// touched its schedule would otherwise write back a stale value here
	// and clobber whatever the Dispatcher wrote to the column in the
	// meantime. Callers that need to clear it (e.g. a changed
	// schedule_expression, or a task being disabled) call SetNextRun
	// explicitly after this returns.
	task.UpdatedAt = time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET
			name = ?, account = ?, trigger_type = ?, schedule_expression = ?, event_type = ?,
			condition_script = ?, condition_interval = ?, script_body = ?, pre_task_ids = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?
	`,
		task.Name, task.Account, string(task.TriggerType), nullableString(task.ScheduleExpression),
		nullableString(string(task.EventType)), nullableString(task.ConditionScript), task.ConditionInterval,
		task.ScriptBody, idsJSON, boolToInt(task.IsActive), formatTime(task.UpdatedAt),
		task.ID,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return core.NewError(core.ErrConflict, fmt.Sprintf("task name %q already exists", task.Name), err)
		}
		return core.NewError(core.ErrPersistent, "update task", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.NewError(core.ErrPersistent, "update task rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "task not found", nil)
	}
	if err := tx.Commit(); err != nil {
		return core.NewError(core.ErrPersistent, "commit update task", err)
	}
	task.PreTaskIDs = preTaskIDs
	return nil
}

// DeleteTask removes the task and, via ON DELETE CASCADE, all of its
// results in a single atomic operation (spec invariant 6).
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return core.NewError(core.ErrPersistent, "delete task", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.NewError(core.ErrPersistent, "delete task rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "task not found", nil)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, taskSelectSQL+` WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewError(core.ErrNotFound, "task not found", nil)
		}
		return nil, core.NewError(core.ErrPersistent, "get task", err)
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, taskSelectSQL+` ORDER BY id ASC`)
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "list tasks", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) DueScheduleTasks(ctx context.Context, now time.Time) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, taskSelectSQL+`
		WHERE trigger_type = ? AND is_active = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
	`, string(core.TriggerSchedule), formatTime(now))
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "list due schedule tasks", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UnscheduledTasks returns active schedule tasks with no next_run_at
// yet, so the Dispatcher can seed one on its next tick without that
// seeding counting as a fire.
func (s *Store) UnscheduledTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, taskSelectSQL+`
		WHERE trigger_type = ? AND is_active = 1 AND next_run_at IS NULL
		ORDER BY id ASC
	`, string(core.TriggerSchedule))
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "list unscheduled tasks", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) EventTasks(ctx context.Context, eventType core.EventType) ([]*core.Task, error) {
	query := taskSelectSQL + ` WHERE trigger_type = ? AND is_active = 1`
	args := []any{string(core.TriggerEvent)}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "list event tasks", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Dependents loads every active task and returns those listing parentID
// in pre_task_ids. The task count in this scheduler is small enough that
// scanning is preferable to a JSON1 query and keeps the SQL portable.
func (s *Store) Dependents(ctx context.Context, parentID int64) ([]*core.Task, error) {
	all, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []*core.Task
	for _, t := range all {
		if !t.IsActive {
			continue
		}
		for _, id := range t.PreTaskIDs {
			if id == parentID {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// SetNextRun is the only write path for next_run_at (spec §5 "The
// next_run_at field is written only by Dispatcher").
func (s *Store) SetNextRun(ctx context.Context, id int64, next *time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE tasks SET next_run_at = ?, updated_at = ? WHERE id = ?`,
		formatTimePtr(next), formatTime(time.Now()), id)
	if err != nil {
		return core.NewError(core.ErrPersistent, "set next_run_at", err)
	}
	return nil
}

// UpdateLastResult is the only write path for last_run_at/last_status
// (spec §5 "last_* fields ... are written only by Runner").
func (s *Store) UpdateLastResult(ctx context.Context, id int64, at time.Time, status core.ResultStatus) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE tasks SET last_run_at = ?, last_status = ?, updated_at = ? WHERE id = ?`,
		formatTime(at), string(status), formatTime(time.Now()), id)
	if err != nil {
		return core.NewError(core.ErrPersistent, "update last result", err)
	}
	return nil
}

const taskSelectSQL = `
	SELECT id, name, account, trigger_type, schedule_expression, event_type,
	       condition_script, condition_interval, script_body, pre_task_ids,
	       is_active, created_at, updated_at, next_run_at, last_run_at, last_status
	FROM tasks
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(scanner rowScanner) (*core.Task, error) {
	var (
		id                 int64
		name, account      string
		triggerType        string
		scheduleExpression sql.NullString
		eventType          sql.NullString
		conditionScript    sql.NullString
		conditionInterval  int
		scriptBody         string
		preTaskIDsRaw      string
		isActive           int
		createdAt          string
		updatedAt          string
		nextRunAt          sql.NullString
		lastRunAt          sql.NullString
		lastStatus         sql.NullString
	)
	if err := scanner.Scan(&id, &name, &account, &triggerType, &scheduleExpression, &eventType,
		&conditionScript, &conditionInterval, &scriptBody, &preTaskIDsRaw, &isActive,
		&createdAt, &updatedAt, &nextRunAt, &lastRunAt, &lastStatus); err != nil {
		return nil, err
	}
	task := &core.Task{
		ID:                id,
		Name:              name,
		Account:           account,
		TriggerType:       core.TriggerType(triggerType),
		ConditionInterval: conditionInterval,
		ScriptBody:        scriptBody,
		IsActive:          isActive != 0,
	}
	if scheduleExpression.Valid {
		task.ScheduleExpression = scheduleExpression.String
	}
	if eventType.Valid {
		task.EventType = core.EventType(eventType.String)
	}
	if conditionScript.Valid {
		task.ConditionScript = conditionScript.String
	}
	ids, err := decodeIDs(preTaskIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("decode pre_task_ids: %w", err)
	}
	task.PreTaskIDs = ids
	if created, err := parseTime(createdAt); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTime(updatedAt); err == nil {
		task.UpdatedAt = updated
	}
	if t, err := nullableTimePtr(nextRunAt); err == nil {
		task.NextRunAt = t
	}
	if t, err := nullableTimePtr(lastRunAt); err == nil {
		task.LastRunAt = t
	}
	if lastStatus.Valid {
		st := core.ResultStatus(lastStatus.String)
		task.LastStatus = &st
	}
	return task, nil
}

func scanTasks(rows *sql.Rows) ([]*core.Task, error) {
	var tasks []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, core.NewError(core.ErrPersistent, "scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewError(core.ErrPersistent, "iterate tasks", err)
	}
	return tasks, nil
}

// normalizePreTaskIDs drops selfID and duplicates, preserving order
// (spec invariant 7).
func normalizePreTaskIDs(ids []int64, selfID int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == selfID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validatePrerequisitesExist(ctx context.Context, tx *sql.Tx, ids []int64) error {
	for _, id := range ids {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return core.NewError(core.ErrValidationFailed, fmt.Sprintf("prerequisite task %d does not exist", id), nil)
		}
		if err != nil {
			return core.NewError(core.ErrPersistent, "validate prerequisite", err)
		}
	}
	return nil
}

func validateTaskFields(task *core.Task) error {
	if task.Name == "" {
		return core.NewError(core.ErrValidationFailed, "name is required", nil)
	}
	if task.Account == "" {
		return core.NewError(core.ErrValidationFailed, "account is required", nil)
	}
	if task.ScriptBody == "" {
		return core.NewError(core.ErrValidationFailed, "script_body is required", nil)
	}
	switch task.TriggerType {
	case core.TriggerSchedule:
		if task.ScheduleExpression == "" {
			return core.NewError(core.ErrValidationFailed, "schedule_expression is required for schedule tasks", nil)
		}
		if _, err := core.ParseCron(task.ScheduleExpression); err != nil {
			return err
		}
	case core.TriggerEvent:
		switch task.EventType {
		case core.EventScript:
			if task.ConditionScript == "" {
				return core.NewError(core.ErrValidationFailed, "condition_script is required for script event tasks", nil)
			}
			if task.ConditionInterval <= 0 {
				task.ConditionInterval = 60
			}
		case core.EventSystemBoot, core.EventSystemShutdown:
			// no further fields required
		default:
			return core.NewError(core.ErrValidationFailed, "event_type must be script, system_boot, or system_shutdown", nil)
		}
	default:
		return core.NewError(core.ErrValidationFailed, "trigger_type must be schedule or event", nil)
	}
	for _, id := range task.PreTaskIDs {
		if task.ID != 0 && id == task.ID {
			return core.NewError(core.ErrValidationFailed, "pre_task_ids may not include the task's own id", nil)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: UNIQUE")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
