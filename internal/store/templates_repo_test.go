package store

import (
	"context"
	"testing"

	"github.com/basecrew/taskscheduler/internal/core"
)

func TestCreateTemplateDerivesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpl := &core.Template{Name: "Nightly Backup", ScriptBody: "echo backup"}
	if err := s.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if tpl.Key == "" {
		t.Error("expected a derived key")
	}

	dup := &core.Template{Name: "Nightly Backup", ScriptBody: "echo backup 2"}
	if err := s.CreateTemplate(ctx, dup); err != nil {
		t.Fatalf("CreateTemplate(dup): %v", err)
	}
	if dup.Key == tpl.Key {
		t.Errorf("expected a distinct key for a same-name template, got %q twice", dup.Key)
	}
}

func TestImportTemplatesUpsertsByKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	existing := &core.Template{Key: "backup", Name: "Backup", ScriptBody: "echo v1"}
	if err := s.CreateTemplate(ctx, existing); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	mapping := map[string]core.Template{
		"backup": {Name: "Backup", ScriptBody: "echo v2"},
		"report": {Name: "Report", ScriptBody: "echo report"},
	}
	inserted, updated, err := s.ImportTemplates(ctx, mapping)
	if err != nil {
		t.Fatalf("ImportTemplates: %v", err)
	}
	if inserted != 1 || updated != 1 {
		t.Errorf("expected 1 inserted, 1 updated, got inserted=%d updated=%d", inserted, updated)
	}

	all, err := s.ExportTemplates(ctx)
	if err != nil {
		t.Fatalf("ExportTemplates: %v", err)
	}
	if all["backup"].ScriptBody != "echo v2" {
		t.Errorf("expected backup template to be updated, got %+v", all["backup"])
	}
	if _, ok := all["report"]; !ok {
		t.Error("expected report template to have been inserted")
	}
}

func TestDeleteTemplate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpl := &core.Template{Key: "one-off", Name: "One Off", ScriptBody: "echo hi"}
	if err := s.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := s.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := s.GetTemplate(ctx, tpl.ID); core.KindOf(err) != core.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
