package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/basecrew/taskscheduler/internal/core"
)

const templateSelectSQL = `SELECT id, key, name, script_body, created_at, updated_at FROM templates`

func (s *Store) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	rows, err := s.DB.QueryContext(ctx, templateSelectSQL+` ORDER BY id ASC`)
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "list templates", err)
	}
	defer rows.Close()
	var out []*core.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, core.NewError(core.ErrPersistent, "scan template", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewError(core.ErrPersistent, "iterate templates", err)
	}
	return out, nil
}

func (s *Store) GetTemplate(ctx context.Context, id int64) (*core.Template, error) {
	row := s.DB.QueryRowContext(ctx, templateSelectSQL+` WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewError(core.ErrNotFound, "template not found", nil)
		}
		return nil, core.NewError(core.ErrPersistent, "get template", err)
	}
	return tpl, nil
}

// CreateTemplate auto-derives a key from Name (lowercased, spaces to
// underscores, deduplicated with a numeric suffix) when Key is blank.
func (s *Store) CreateTemplate(ctx context.Context, tpl *core.Template) error {
	tpl.Name = strings.TrimSpace(tpl.Name)
	tpl.ScriptBody = strings.TrimSpace(tpl.ScriptBody)
	if tpl.Name == "" {
		return core.NewError(core.ErrValidationFailed, "name is required", nil)
	}
	if tpl.ScriptBody == "" {
		return core.NewError(core.ErrValidationFailed, "script_body is required", nil)
	}
	key := strings.TrimSpace(tpl.Key)
	if key == "" {
		derived, err := s.uniqueKeyFrom(ctx, tpl.Name)
		if err != nil {
			return err
		}
		key = derived
	}
	now := time.Now()
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO templates (key, name, script_body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
	`, key, tpl.Name, tpl.ScriptBody, formatTime(now), formatTime(now))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return core.NewError(core.ErrConflict, fmt.Sprintf("template key %q already exists", key), err)
		}
		return core.NewError(core.ErrPersistent, "insert template", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.NewError(core.ErrPersistent, "read inserted template id", err)
	}
	tpl.ID = id
	tpl.Key = key
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	return nil
}

func (s *Store) UpdateTemplate(ctx context.Context, id int64, tpl *core.Template) error {
	existing, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(tpl.Name)
	if name == "" {
		name = existing.Name
	}
	scriptBody := strings.TrimSpace(tpl.ScriptBody)
	if scriptBody == "" {
		scriptBody = existing.ScriptBody
	}
	key := strings.TrimSpace(tpl.Key)
	if key == "" {
		key = existing.Key
	}
	if name == "" {
		return core.NewError(core.ErrValidationFailed, "name is required", nil)
	}
	if scriptBody == "" {
		return core.NewError(core.ErrValidationFailed, "script_body is required", nil)
	}
	now := time.Now()
	_, err = s.DB.ExecContext(ctx, `
		UPDATE templates SET key = ?, name = ?, script_body = ?, updated_at = ? WHERE id = ?
	`, key, name, scriptBody, formatTime(now), id)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return core.NewError(core.ErrConflict, fmt.Sprintf("template key %q already exists", key), err)
		}
		return core.NewError(core.ErrPersistent, "update template", err)
	}
	tpl.ID = id
	tpl.Key = key
	tpl.Name = name
	tpl.ScriptBody = scriptBody
	tpl.CreatedAt = existing.CreatedAt
	tpl.UpdatedAt = now
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return core.NewError(core.ErrPersistent, "delete template", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return core.NewError(core.ErrPersistent, "delete template rows affected", err)
	}
	if rows == 0 {
		return core.NewError(core.ErrNotFound, "template not found", nil)
	}
	return nil
}

// ImportTemplates upserts by key, mirroring templates.json semantics:
// entries without a script_body are skipped rather than rejected.
func (s *Store) ImportTemplates(ctx context.Context, mapping map[string]core.Template) (int, int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, core.NewError(core.ErrPersistent, "begin transaction", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	var inserted, updated int
	for key, meta := range mapping {
		name := strings.TrimSpace(meta.Name)
		if name == "" {
			name = key
		}
		scriptBody := strings.TrimSpace(meta.ScriptBody)
		if scriptBody == "" {
			continue
		}
		var existingID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM templates WHERE key = ?`, key).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO templates (key, name, script_body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			`, key, name, scriptBody, now, now); err != nil {
				return 0, 0, core.NewError(core.ErrPersistent, "insert imported template", err)
			}
			inserted++
		case err != nil:
			return 0, 0, core.NewError(core.ErrPersistent, "lookup imported template", err)
		default:
			if _, err := tx.ExecContext(ctx, `
				UPDATE templates SET name = ?, script_body = ?, updated_at = ? WHERE key = ?
			`, name, scriptBody, now, key); err != nil {
				return 0, 0, core.NewError(core.ErrPersistent, "update imported template", err)
			}
			updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, core.NewError(core.ErrPersistent, "commit import templates", err)
	}
	return inserted, updated, nil
}

func (s *Store) ExportTemplates(ctx context.Context) (map[string]core.Template, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, name, script_body FROM templates ORDER BY id ASC`)
	if err != nil {
		return nil, core.NewError(core.ErrPersistent, "export templates", err)
	}
	defer rows.Close()
	out := make(map[string]core.Template)
	for rows.Next() {
		var key, name, scriptBody string
		if err := rows.Scan(&key, &name, &scriptBody); err != nil {
			return nil, core.NewError(core.ErrPersistent, "scan exported template", err)
		}
		out[key] = core.Template{Key: key, Name: name, ScriptBody: scriptBody}
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewError(core.ErrPersistent, "iterate exported templates", err)
	}
	return out, nil
}

func (s *Store) uniqueKeyFrom(ctx context.Context, name string) (string, error) {
	base := strings.ReplaceAll(strings.ToLower(name), " ", "_")
	key := base
	for idx := 1; ; idx++ {
		var count int
		if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM templates WHERE key = ?`, key).Scan(&count); err != nil {
			return "", core.NewError(core.ErrPersistent, "check template key uniqueness", err)
		}
		if count == 0 {
			return key, nil
		}
		key = fmt.Sprintf("%s_%d", base, idx+1)
	}
}

func scanTemplate(scanner rowScanner) (*core.Template, error) {
	var (
		id         int64
		key, name  string
		scriptBody string
		createdAt  string
		updatedAt  string
	)
	if err := scanner.Scan(&id, &key, &name, &scriptBody, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tpl := &core.Template{ID: id, Key: key, Name: name, ScriptBody: scriptBody}
	if t, err := parseTime(createdAt); err == nil {
		tpl.CreatedAt = t
	}
	if t, err := parseTime(updatedAt); err == nil {
		tpl.UpdatedAt = t
	}
	return tpl, nil
}
