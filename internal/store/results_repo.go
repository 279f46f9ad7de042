package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
)

// truncationMarker is appended once a result's log hits LogByteCap, so a
// reader can tell a short log apart from a log that was cut off (spec §3
// "a capped log carries a visible truncation marker").
const truncationMarker = "\n... [log truncated, limit reached]\n"

// InsertResult opens a new result row in status=running. Callers (the
// Runner) must have already checked HasRunning and the prerequisite gate.
func (s *Store) InsertResult(ctx context.Context, result *core.TaskResult) error {
	if result.StartedAt.IsZero() {
		result.StartedAt = time.Now()
	}
	result.Status = core.ResultRunning
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO task_results (task_id, status, trigger_reason, started_at, finished_at, log, exit_code)
		VALUES (?, ?, ?, ?, NULL, ?, NULL)
	`, result.TaskID, string(result.Status), result.TriggerReason, formatTime(result.StartedAt), result.Log)
	if err != nil {
		return core.NewError(core.ErrPersistent, "insert result", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.NewError(core.ErrPersistent, "read inserted result id", err)
	}
	result.ID = id
	return nil
}

// FinalizeResult records the terminal state of a run. log is capped to
// s.LogByteCap bytes; when it overflows, the kept bytes end with a
// truncation marker, itself cut short if the cap is smaller than the
// marker (spec §4.5 "captured output is bounded").
func (s *Store) FinalizeResult(ctx context.Context, id int64, status core.ResultStatus, finishedAt time.Time, log string, exitCode *int) error {
	log = s.capLog(log)
	res, err := s.DB.ExecContext(ctx, `
		UPDATE task_results SET status = ?, finished_at = ?, log = ?, exit_code = ?
		WHERE id = ?
	`, string(status), formatTime(finishedAt), log, nullableInt(exitCode), id)
	if err != nil {
		return core.NewError(core.ErrPersistent, "finalize result", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.NewError(core.ErrPersistent, "finalize result rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "result not found", nil)
	}
	return nil
}

func (s *Store) capLog(log string) string {
	limit := s.LogByteCap
	if limit <= 0 {
		limit = defaultLogByteCap
	}
	if len(log) <= limit {
		return log
	}
	keep := limit - len(truncationMarker)
	if keep < 0 {
		return truncationMarker[:limit]
	}
	return log[:keep] + truncationMarker
}

func (s *Store) ListResults(ctx context.Context, taskID int64, limit int) ([]*core.TaskResult, error) {
	query := resultSelectSQL + ` WHERE task_id = ? ORDER BY started_at DESC, id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "list results", err)
	}
	defer rows.Close()
	var out []*core.TaskResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, core.NewError(core.ErrPersistent, "scan result", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewError(core.ErrPersistent, "iterate results", err)
	}
	return out, nil
}

func (s *Store) GetResult(ctx context.Context, id int64) (*core.TaskResult, error) {
	row := s.DB.QueryRowContext(ctx, resultSelectSQL+` WHERE id = ?`, id)
	result, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewError(core.ErrNotFound, "result not found", nil)
		}
		return nil, core.NewError(core.ErrPersistent, "get result", err)
	}
	return result, nil
}

func (s *Store) DeleteResult(ctx context.Context, taskID, resultID int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM task_results WHERE id = ? AND task_id = ?`, resultID, taskID)
	if err != nil {
		return core.NewError(core.ErrPersistent, "delete result", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.NewError(core.ErrPersistent, "delete result rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "result not found", nil)
	}
	return nil
}

func (s *Store) ClearResults(ctx context.Context, taskID int64) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM task_results WHERE task_id = ?`, taskID); err != nil {
		return core.NewError(core.ErrPersistent, "clear results", err)
	}
	return nil
}

func (s *Store) HasRunning(ctx context.Context, taskID int64) (bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx, `
		SELECT 1 FROM task_results WHERE task_id = ? AND status = ? LIMIT 1
	`, taskID, string(core.ResultRunning)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, core.NewError(core.ErrPersistent, "check running result", err)
	}
	return true, nil
}

func (s *Store) LatestSuccess(ctx context.Context, taskID int64) (*time.Time, error) {
	var startedAt string
	err := s.DB.QueryRowContext(ctx, `
		SELECT started_at FROM task_results WHERE task_id = ? AND status = ?
		ORDER BY started_at DESC, id DESC LIMIT 1
	`, taskID, string(core.ResultSuccess)).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "latest success", err)
	}
	t, err := parseTime(startedAt)
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "parse latest success time", err)
	}
	return &t, nil
}

const resultSelectSQL = `
	SELECT id, task_id, status, trigger_reason, started_at, finished_at, log, exit_code
	FROM task_results
`

func scanResult(scanner rowScanner) (*core.TaskResult, error) {
	var (
		id            int64
		taskID        int64
		status        string
		triggerReason string
		startedAt     string
		finishedAt    sql.NullString
		log           string
		exitCode      sql.NullInt64
	)
	if err := scanner.Scan(&id, &taskID, &status, &triggerReason, &startedAt, &finishedAt, &log, &exitCode); err != nil {
		return nil, err
	}
	result := &core.TaskResult{
		ID:            id,
		TaskID:        taskID,
		Status:        core.ResultStatus(status),
		TriggerReason: triggerReason,
		Log:           log,
	}
	if started, err := parseTime(startedAt); err == nil {
		result.StartedAt = started
	}
	if t, err := nullableTimePtr(finishedAt); err == nil {
		result.FinishedAt = t
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		result.ExitCode = &v
	}
	return result, nil
}
