package store

import (
	"fmt"

	"mtextract/internal/model"
)

// Backend is the minimal key-value contract every storage implementation
// in this package satisfies: local disk, Cloud Storage, and Firestore.
type Backend interface {
	GetJSON(key string, v interface{}) bool
	SetJSON(key string, v interface{}) error
}

// TemplateStore persists ParishTemplate recipes, one JSON document per
// parish, keyed by parish id.
type TemplateStore struct {
	backend Backend
}

// NewTemplateStore wraps backend for template persistence.
func NewTemplateStore(backend Backend) *TemplateStore {
	return &TemplateStore{backend: backend}
}

// Save writes tpl under its own ParishID.
func (s *TemplateStore) Save(tpl model.ParishTemplate) error {
	if tpl.ParishID == "" {
		return fmt.Errorf("store: template has no parish_id")
	}
	return s.backend.SetJSON(templateKey(tpl.ParishID), tpl)
}

// Load reads the template for parishID, reporting false if none exists.
func (s *TemplateStore) Load(parishID string) (model.ParishTemplate, bool) {
	var tpl model.ParishTemplate
	ok := s.backend.GetJSON(templateKey(parishID), &tpl)
	return tpl, ok
}

// templateKey is flat: the backend passed in is already rooted at a
// directory (or bucket prefix, or collection) dedicated to templates, so
// the key needs no further "templates/" prefix of its own.
func templateKey(parishID string) string {
	return parishID
}

// ResultStore persists the latest ExtractionResult per parish, used both
// to serve the most recent extraction and as the "previous" comparison
// point for the validator's change-ratio rule.
type ResultStore struct {
	backend Backend
}

// NewResultStore wraps backend for extraction-result persistence.
func NewResultStore(backend Backend) *ResultStore {
	return &ResultStore{backend: backend}
}

// Save writes result under its own ParishID, overwriting any prior
// result — only the latest extraction is kept per parish.
func (s *ResultStore) Save(result model.ExtractionResult) error {
	if result.ParishID == "" {
		return fmt.Errorf("store: result has no parish_id")
	}
	return s.backend.SetJSON(resultKey(result.ParishID), result)
}

// Load reads the most recent result for parishID, reporting false if none
// exists yet.
func (s *ResultStore) Load(parishID string) (model.ExtractionResult, bool) {
	var result model.ExtractionResult
	ok := s.backend.GetJSON(resultKey(parishID), &result)
	return result, ok
}

// resultKey is flat for the same reason as templateKey: the backend
// passed to ResultStore is already rooted at a results directory.
func resultKey(parishID string) string {
	return parishID
}
