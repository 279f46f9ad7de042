package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
)

// timeLayout stores timestamps as local wall-clock strings without a
// timezone suffix, per spec §4.1 ("All timestamps are stored as ISO
// strings in local time without timezone suffix").
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.Local)
}

func nullableTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableStatus(s *core.ResultStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
