package core

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expr string) *Schedule {
	t.Helper()
	s, err := ParseCron(expr)
	if err != nil {
		t.Fatalf("ParseCron(%q): %v", expr, err)
	}
	return s
}

func TestParseCronRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-2 * * * *",
	}
	for _, expr := range cases {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q): expected error, got none", expr)
		}
	}
}

func TestNextAfterEveryMinute(t *testing.T) {
	s := mustParse(t, "* * * * *")
	now := time.Date(2026, 8, 3, 10, 30, 0, 0, time.UTC)
	next := s.NextAfter(now)
	if next == nil {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 8, 3, 10, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

func TestNextAfterSpecificTime(t *testing.T) {
	s := mustParse(t, "30 9 * * *")
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	next := s.NextAfter(now)
	if next == nil {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 8, 4, 9, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

// TestDayOfWeekConvention pins the project's non-standard 0=Monday
// convention: "0 0 * * 0" must fire on Mondays, not Sundays.
func TestDayOfWeekConvention(t *testing.T) {
	s := mustParse(t, "0 0 * * 0")
	// 2026-08-03 is a Monday.
	now := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC) // Sunday
	next := s.NextAfter(now)
	if next == nil {
		t.Fatal("expected a next fire time")
	}
	if next.Weekday() != time.Monday {
		t.Errorf("expected Monday under 0=Monday convention, got %v (%v)", next.Weekday(), next)
	}
}

// TestDomDowDisjunction pins the POSIX OR-disjunction rule: when both
// day-of-month and day-of-week are restricted (neither is "*"), a
// candidate matches if EITHER field matches.
func TestDomDowDisjunction(t *testing.T) {
	// day 15 of any month, OR Fridays (dow=4 under 0=Monday convention).
	s := mustParse(t, "0 0 15 * 4")
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) // Saturday
	next := s.NextAfter(now)
	if next == nil {
		t.Fatal("expected a next fire time")
	}
	if next.Day() != 15 && next.Weekday() != time.Friday {
		t.Errorf("expected day 15 or a Friday, got %v", next)
	}
}

func TestNextTimesStopsAtHorizon(t *testing.T) {
	// A day-of-month that never exists (Feb 30) with an unrestricted
	// dow never matches, so the search horizon is exhausted and nothing
	// is returned. (A restricted dow would match under the OR rule.)
	s := mustParse(t, "0 0 30 2 *")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	times := s.NextTimes(now, 3)
	if len(times) != 0 {
		t.Errorf("expected no fire times for an impossible date, got %v", times)
	}
}

func TestNextTimesReturnsKInOrder(t *testing.T) {
	s := mustParse(t, "0 * * * *")
	now := time.Date(2026, 8, 3, 10, 15, 0, 0, time.UTC)
	times := s.NextTimes(now, 3)
	if len(times) != 3 {
		t.Fatalf("expected 3 fire times, got %d", len(times))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			t.Errorf("fire times not strictly increasing: %v", times)
		}
	}
}

func TestExpandFieldStepAndList(t *testing.T) {
	s := mustParse(t, "0,30 */6 * * *")
	now := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	next := s.NextAfter(now)
	if next == nil {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 8, 3, 0, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}
