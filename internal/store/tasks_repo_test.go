package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return s
}

func scheduleTask(name string) *core.Task {
	task := core.NewTask()
	task.Name = name
	task.Account = "root"
	task.TriggerType = core.TriggerSchedule
	task.ScheduleExpression = "* * * * *"
	task.ScriptBody = "echo hi"
	return task
}

func TestInsertAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := scheduleTask("nightly-backup")
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("expected a non-zero id after insert")
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Name != task.Name || got.ScriptBody != task.ScriptBody {
		t.Errorf("got %+v, want name/script matching %+v", got, task)
	}
	if !got.IsActive {
		t.Error("expected task to be active by default")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), 999)
	if core.KindOf(err) != core.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertTaskRejectsMissingPrerequisite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := scheduleTask("depends-on-nothing")
	task.PreTaskIDs = []int64{12345}
	err := s.InsertTask(ctx, task)
	if core.KindOf(err) != core.ErrValidationFailed {
		t.Errorf("expected ErrValidationFailed for missing prerequisite, got %v", err)
	}
}

func TestInsertTaskNormalizesPreTaskIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := scheduleTask("parent")
	if err := s.InsertTask(ctx, parent); err != nil {
		t.Fatalf("InsertTask(parent): %v", err)
	}

	child := scheduleTask("child")
	child.PreTaskIDs = []int64{parent.ID, parent.ID, parent.ID}
	if err := s.InsertTask(ctx, child); err != nil {
		t.Fatalf("InsertTask(child): %v", err)
	}

	got, err := s.GetTask(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(got.PreTaskIDs) != 1 || got.PreTaskIDs[0] != parent.ID {
		t.Errorf("expected deduped pre_task_ids [%d], got %v", parent.ID, got.PreTaskIDs)
	}
}

func TestUpdateTaskAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := scheduleTask("to-update")
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	task.ScriptBody = "echo updated"
	task.IsActive = false
	if err := s.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ScriptBody != "echo updated" || got.IsActive {
		t.Errorf("update did not persist: %+v", got)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); core.KindOf(err) != core.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDueScheduleTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := scheduleTask("due")
	if err := s.InsertTask(ctx, due); err != nil {
		t.Fatalf("InsertTask(due): %v", err)
	}
	if err := s.SetNextRun(ctx, due.ID, &past); err != nil {
		t.Fatalf("SetNextRun(due): %v", err)
	}

	notDue := scheduleTask("not-due")
	if err := s.InsertTask(ctx, notDue); err != nil {
		t.Fatalf("InsertTask(notDue): %v", err)
	}
	if err := s.SetNextRun(ctx, notDue.ID, &future); err != nil {
		t.Fatalf("SetNextRun(notDue): %v", err)
	}

	tasks, err := s.DueScheduleTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("DueScheduleTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != due.ID {
		t.Errorf("expected only %q due, got %v", due.Name, tasks)
	}
}

func TestUnscheduledTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := scheduleTask("fresh")
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	unscheduled, err := s.UnscheduledTasks(ctx)
	if err != nil {
		t.Fatalf("UnscheduledTasks: %v", err)
	}
	if len(unscheduled) != 1 || unscheduled[0].ID != task.ID {
		t.Errorf("expected freshly created task to be unscheduled, got %v", unscheduled)
	}

	next := time.Now().Add(time.Minute)
	if err := s.SetNextRun(ctx, task.ID, &next); err != nil {
		t.Fatalf("SetNextRun: %v", err)
	}
	unscheduled, err = s.UnscheduledTasks(ctx)
	if err != nil {
		t.Fatalf("UnscheduledTasks: %v", err)
	}
	if len(unscheduled) != 0 {
		t.Errorf("expected no unscheduled tasks after SetNextRun, got %v", unscheduled)
	}
}

func TestDependents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent := scheduleTask("parent")
	if err := s.InsertTask(ctx, parent); err != nil {
		t.Fatalf("InsertTask(parent): %v", err)
	}
	child := scheduleTask("child")
	child.PreTaskIDs = []int64{parent.ID}
	if err := s.InsertTask(ctx, child); err != nil {
		t.Fatalf("InsertTask(child): %v", err)
	}

	deps, err := s.Dependents(ctx, parent.ID)
	if err != nil {
		t.Fatalf("Dependents: %v", err)
	}
	if len(deps) != 1 || deps[0].ID != child.ID {
		t.Errorf("expected [%d] as dependent, got %v", child.ID, deps)
	}
}

func TestResultLifecycleAndHasRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := scheduleTask("with-results")
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	result := &core.TaskResult{TaskID: task.ID, TriggerReason: core.ReasonManual, StartedAt: time.Now()}
	if err := s.InsertResult(ctx, result); err != nil {
		t.Fatalf("InsertResult: %v", err)
	}

	running, err := s.HasRunning(ctx, task.ID)
	if err != nil {
		t.Fatalf("HasRunning: %v", err)
	}
	if !running {
		t.Error("expected task to be running immediately after InsertResult")
	}

	exitCode := 0
	if err := s.FinalizeResult(ctx, result.ID, core.ResultSuccess, time.Now(), "ok\n", &exitCode); err != nil {
		t.Fatalf("FinalizeResult: %v", err)
	}

	running, err = s.HasRunning(ctx, task.ID)
	if err != nil {
		t.Fatalf("HasRunning: %v", err)
	}
	if running {
		t.Error("expected task to no longer be running after FinalizeResult")
	}

	success, err := s.LatestSuccess(ctx, task.ID)
	if err != nil {
		t.Fatalf("LatestSuccess: %v", err)
	}
	if success == nil {
		t.Error("expected a non-nil latest success time")
	}
}

func TestFinalizeResultCapsLog(t *testing.T) {
	s := newTestStore(t)
	s.LogByteCap = 16
	ctx := context.Background()

	task := scheduleTask("capped-log")
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	result := &core.TaskResult{TaskID: task.ID, TriggerReason: core.ReasonManual, StartedAt: time.Now()}
	if err := s.InsertResult(ctx, result); err != nil {
		t.Fatalf("InsertResult: %v", err)
	}

	longLog := "0123456789abcdefghijklmnopqrstuvwxyz"
	if err := s.FinalizeResult(ctx, result.ID, core.ResultSuccess, time.Now(), longLog, nil); err != nil {
		t.Fatalf("FinalizeResult: %v", err)
	}

	got, err := s.GetResult(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(got.Log) >= len(longLog) {
		t.Errorf("expected capped log shorter than input, got %d bytes", len(got.Log))
	}
}
