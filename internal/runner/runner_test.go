package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"testing"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
	"github.com/basecrew/taskscheduler/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func currentAccount(t *testing.T) string {
	t.Helper()
	u, err := user.Current()
	if err != nil {
		t.Fatalf("user.Current: %v", err)
	}
	return u.Username
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return s
}

var insertTaskCounter int

func insertTask(t *testing.T, s *store.Store, account, script string, preTaskIDs []int64) *core.Task {
	t.Helper()
	insertTaskCounter++
	task := core.NewTask()
	task.Name = fmt.Sprintf("test-task-%d", insertTaskCounter)
	task.Account = account
	task.TriggerType = core.TriggerSchedule
	task.ScheduleExpression = "* * * * *"
	task.ScriptBody = script
	task.PreTaskIDs = preTaskIDs
	if err := s.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	return task
}

func TestFireMissingTask(t *testing.T) {
	s := newTestStore(t)
	r := New(s, testLogger(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	outcome, err := r.Fire(ctx, 9999, core.ReasonManual)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if outcome != OutcomeMissing {
		t.Errorf("expected OutcomeMissing, got %v", outcome)
	}
}

func TestFireBlockedByUnmetPrerequisite(t *testing.T) {
	s := newTestStore(t)
	account := currentAccount(t)

	prereq := insertTask(t, s, account, "true", nil)
	dependent := insertTask(t, s, account, "true", []int64{prereq.ID})

	r := New(s, testLogger(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	outcome, err := r.Fire(ctx, dependent.ID, core.ReasonManual)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if outcome != OutcomeBlocked {
		t.Errorf("expected OutcomeBlocked, got %v", outcome)
	}
}

func TestFireSingleFlight(t *testing.T) {
	s := newTestStore(t)
	account := currentAccount(t)
	task := insertTask(t, s, account, "sleep 1", nil)

	r := New(s, testLogger(), Options{TaskTimeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	first, err := r.Fire(ctx, task.ID, core.ReasonManual)
	if err != nil {
		t.Fatalf("Fire (first): %v", err)
	}
	if first != OutcomeQueued {
		t.Fatalf("expected first fire to be OutcomeQueued, got %v", first)
	}

	second, err := r.Fire(ctx, task.ID, core.ReasonManual)
	if err != nil {
		t.Fatalf("Fire (second): %v", err)
	}
	if second != OutcomeRunning {
		t.Errorf("expected second concurrent fire to be OutcomeRunning, got %v", second)
	}

	r.Wait()

	success, err := s.LatestSuccess(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("LatestSuccess: %v", err)
	}
	if success == nil {
		t.Error("expected the sleeping task to have finished successfully")
	}
}
