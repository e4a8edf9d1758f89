package store

import (
	"path/filepath"
	"testing"
	"time"

	"mtextract/internal/model"
)

func TestTemplateStoreSaveAndLoad(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "templates"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	templates := NewTemplateStore(s)

	tpl := model.ParishTemplate{
		ParishID:   "st-marys",
		ParishName: "St. Mary's",
		SourceType: model.SourceWebsitePage,
		CreatedAt:  time.Now().Truncate(time.Second),
	}
	if err := templates.Save(tpl); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, ok := templates.Load("st-marys")
	if !ok {
		t.Fatal("Load reported not found after Save")
	}
	if got.ParishID != tpl.ParishID || got.ParishName != tpl.ParishName {
		t.Errorf("Load = %+v, want matching %+v", got, tpl)
	}
}

func TestTemplateStoreSaveRejectsEmptyParishID(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := NewTemplateStore(s).Save(model.ParishTemplate{}); err == nil {
		t.Fatal("expected Save to reject a template with no parish id")
	}
}

func TestTemplateStoreLoadMissing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := NewTemplateStore(s).Load("does-not-exist"); ok {
		t.Fatal("expected Load to report false for a missing parish")
	}
}

func TestResultStoreSaveAndLoadOverwrites(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "results"))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	results := NewResultStore(s)

	first := model.ExtractionResult{ParishID: "st-marys", Tier: model.Tier1Static, Confidence: 1.0}
	if err := results.Save(first); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	second := model.ExtractionResult{ParishID: "st-marys", Tier: model.Tier2Code, Confidence: 0.85}
	if err := results.Save(second); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, ok := results.Load("st-marys")
	if !ok {
		t.Fatal("Load reported not found after Save")
	}
	if got.Tier != model.Tier2Code {
		t.Errorf("Load.Tier = %v, want the most recently saved result to win", got.Tier)
	}
}
