package api

import (
	"context"

	"github.com/basecrew/taskscheduler/internal/core"
)

// TemplateInput is the wire shape of a template create/update payload.
type TemplateInput struct {
	Key        string `json:"key,omitempty"`
	Name       string `json:"name"`
	ScriptBody string `json:"script_body"`
}

func (s *Service) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	return s.store.ListTemplates(ctx)
}

func (s *Service) GetTemplate(ctx context.Context, id int64) (*core.Template, error) {
	return s.store.GetTemplate(ctx, id)
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*core.Template, error) {
	tpl := &core.Template{Key: in.Key, Name: in.Name, ScriptBody: in.ScriptBody}
	if err := s.store.CreateTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*core.Template, error) {
	tpl := &core.Template{Key: in.Key, Name: in.Name, ScriptBody: in.ScriptBody}
	if err := s.store.UpdateTemplate(ctx, id, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, id int64) error {
	return s.store.DeleteTemplate(ctx, id)
}

// ImportSummary reports how many templates were inserted vs. updated
// by an import (spec SUPPLEMENTED FEATURES: template import/export).
type ImportSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

func (s *Service) ImportTemplates(ctx context.Context, mapping map[string]core.Template) (*ImportSummary, error) {
	inserted, updated, err := s.store.ImportTemplates(ctx, mapping)
	if err != nil {
		return nil, err
	}
	return &ImportSummary{Inserted: inserted, Updated: updated}, nil
}

func (s *Service) ExportTemplates(ctx context.Context) (map[string]core.Template, error) {
	return s.store.ExportTemplates(ctx)
}
