package core

import (
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression.
//
// Field order is minute, hour, day-of-month, month, day-of-week, exactly
// like standard cron, EXCEPT day-of-week: this project uses 0=Monday ...
// 6=Sunday, not the POSIX 0=Sunday convention. This divergence is
// intentional (spec §9 "Cron semantics divergence") and must not be
// "fixed" — existing stored expressions depend on it.
type Schedule struct {
	minute   fieldSet
	hour     fieldSet
	dom      fieldSet
	month    fieldSet
	dow      fieldSet
	domStar  bool
	dowStar  bool
	original string
}

type fieldSet map[int]struct{}

func (f fieldSet) has(v int) bool {
	_, ok := f[v]
	return ok
}

type fieldSpec struct {
	name       string
	min, max   int
	spanValues int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59, 60},
	{"hour", 0, 23, 24},
	{"day-of-month", 1, 31, 31},
	{"month", 1, 12, 12},
	{"day-of-week", 0, 6, 7},
}

// ParseCron validates expr as a 5-field cron expression under this
// project's day-of-week convention and returns the parsed Schedule.
func ParseCron(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, NewError(ErrValidationFailed, "cron expression must have exactly 5 fields", nil)
	}
	s := &Schedule{original: expr}
	sets := make([]fieldSet, 5)
	stars := make([]bool, 5)
	for i, raw := range fields {
		set, isStar, err := expandField(raw, fieldSpecs[i])
		if err != nil {
			return nil, err
		}
		sets[i] = set
		stars[i] = isStar
	}
	s.minute, s.hour, s.dom, s.month, s.dow = sets[0], sets[1], sets[2], sets[3], sets[4]
	s.domStar, s.dowStar = stars[2], stars[4]
	return s, nil
}

func expandField(token string, spec fieldSpec) (fieldSet, bool, error) {
	values := make(fieldSet)
	sawStar := false
	for _, item := range strings.Split(token, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, false, NewError(ErrValidationFailed, "empty "+spec.name+" segment", nil)
		}
		base := item
		step := 1
		if idx := strings.IndexByte(item, '/'); idx >= 0 {
			base = item[:idx]
			if base == "" {
				base = "*"
			}
			stepStr := item[idx+1:]
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return nil, false, NewError(ErrValidationFailed, "invalid step in "+spec.name+" segment: "+item, nil)
			}
			step = n
		}
		isStar := base == "*"
		lo, hi, err := expandRange(base, spec)
		if err != nil {
			return nil, false, err
		}
		for v := lo; v <= hi; v++ {
			if (v-lo)%step == 0 {
				values[v] = struct{}{}
			}
		}
		sawStar = sawStar || isStar
	}
	if len(values) == 0 {
		return nil, false, NewError(ErrValidationFailed, "no values computed for "+spec.name, nil)
	}
	for v := range values {
		if v < spec.min || v > spec.max {
			return nil, false, NewError(ErrValidationFailed, spec.name+" value out of range: "+strconv.Itoa(v), nil)
		}
	}
	fullSpan := len(values) == spec.spanValues
	return values, sawStar || fullSpan, nil
}

func expandRange(item string, spec fieldSpec) (int, int, error) {
	if item == "*" {
		return spec.min, spec.max, nil
	}
	if idx := strings.IndexByte(item, '-'); idx >= 0 {
		lo, errLo := strconv.Atoi(item[:idx])
		hi, errHi := strconv.Atoi(item[idx+1:])
		if errLo != nil || errHi != nil {
			return 0, 0, NewError(ErrValidationFailed, "invalid range in "+spec.name+" segment: "+item, nil)
		}
		if lo > hi {
			return 0, 0, NewError(ErrValidationFailed, spec.name+" range start greater than end: "+item, nil)
		}
		return lo, hi, nil
	}
	v, err := strconv.Atoi(item)
	if err != nil {
		return 0, 0, NewError(ErrValidationFailed, "invalid "+spec.name+" token: "+item, nil)
	}
	return v, v, nil
}

// String returns the original expression text.
func (s *Schedule) String() string { return s.original }

// dowOf returns t's day-of-week under this project's 0=Monday convention.
func dowOf(t time.Time) int {
	// time.Weekday is 0=Sunday...6=Saturday; shift to 0=Monday...6=Sunday.
	return (int(t.Weekday()) + 6) % 7
}

func (s *Schedule) matches(t time.Time) bool {
	if !s.minute.has(t.Minute()) || !s.hour.has(t.Hour()) || !s.month.has(int(t.Month())) {
		return false
	}
	domMatch := s.dom.has(t.Day())
	dowMatch := s.dow.has(dowOf(t))
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dowMatch
	case s.dowStar:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// defaultHorizonMonths bounds the NextAfter search; beyond this the
// expression is treated as dormant (spec §4.2).
const defaultHorizonMonths = 36

// NextAfter returns the smallest whole-minute instant strictly greater
// than t that satisfies expr, or nil if none exists within the search
// horizon.
func (s *Schedule) NextAfter(t time.Time) *time.Time {
	candidate := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location()).Add(time.Minute)
	limit := candidate.AddDate(0, defaultHorizonMonths, 0)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return &candidate
		}
		candidate = candidate.Add(time.Minute)
	}
	return nil
}

// NextTimes returns the first k fire times strictly after now, used by the
// API surface's cron-preview endpoint. Stops early if the horizon is hit.
func (s *Schedule) NextTimes(now time.Time, k int) []time.Time {
	out := make([]time.Time, 0, k)
	cursor := now
	for i := 0; i < k; i++ {
		next := s.NextAfter(cursor)
		if next == nil {
			break
		}
		out = append(out, *next)
		cursor = *next
	}
	return out
}
