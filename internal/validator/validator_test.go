package validator

import (
	"testing"

	"mtextract/internal/model"
)

func defaultResult(times []model.MassTime) model.ExtractionResult {
	return model.ExtractionResult{
		ParishID:   "st-marys",
		Times:      times,
		Confidence: 1.0,
	}
}

func TestValidateConfirmedWhenNoIssues(t *testing.T) {
	times := []model.MassTime{
		{Day: "Sunday", Time: "8:00 AM"}, {Day: "Sunday", Time: "10:00 AM"}, {Day: "Sunday", Time: "12:00 PM"},
		{Day: "Monday", Time: "7:00 AM"}, {Day: "Tuesday", Time: "7:00 AM"},
	}
	result := Validate(defaultResult(times), model.DefaultValidationRules(), nil)
	if result.ValidationStatus != model.StatusConfirmed {
		t.Errorf("status = %v, want confirmed", result.ValidationStatus)
	}
}

func TestValidateFlaggedWhenEmpty(t *testing.T) {
	result := Validate(defaultResult(nil), model.DefaultValidationRules(), nil)
	if result.ValidationStatus != model.StatusFlagged || result.Confidence != 0 {
		t.Errorf("got status=%v confidence=%v, want flagged/0", result.ValidationStatus, result.Confidence)
	}
}

func TestValidateFlaggedWhenBelowMinimum(t *testing.T) {
	times := []model.MassTime{{Day: "Sunday", Time: "10:00 AM"}}
	result := Validate(defaultResult(times), model.DefaultValidationRules(), nil)
	if result.ValidationStatus != model.StatusFlagged {
		t.Errorf("status = %v, want flagged", result.ValidationStatus)
	}
}

func TestValidateProvisionalWhenOnlySundayCountDiffers(t *testing.T) {
	rules := model.DefaultValidationRules()
	rules.MinWeeklyMasses = 2
	times := []model.MassTime{
		{Day: "Sunday", Time: "10:00 AM"},
		{Day: "Monday", Time: "7:00 AM"},
	}
	result := Validate(defaultResult(times), rules, nil)
	if result.ValidationStatus != model.StatusProvisional {
		t.Errorf("status = %v, want provisional", result.ValidationStatus)
	}
	if result.Confidence > 0.7 {
		t.Errorf("confidence = %v, want <= 0.7", result.Confidence)
	}
}

func TestValidateFlaggedOnLargeChangeFromPrevious(t *testing.T) {
	rules := model.DefaultValidationRules()
	rules.MinWeeklyMasses = 1
	rules.ExpectedSundayCount = 0
	previous := []model.MassTime{
		{Day: "Sunday", Time: "10:00 AM"}, {Day: "Monday", Time: "7:00 AM"},
	}
	current := []model.MassTime{
		{Day: "Tuesday", Time: "6:00 PM"}, {Day: "Wednesday", Time: "6:00 PM"},
	}
	result := Validate(defaultResult(current), rules, previous)
	if result.ValidationStatus != model.StatusFlagged {
		t.Errorf("status = %v, want flagged", result.ValidationStatus)
	}
}

func TestCrossReferenceSingleResult(t *testing.T) {
	results := []model.ExtractionResult{{ParishID: "a"}}
	best := CrossReference(results)
	if best == nil || best.ParishID != "a" {
		t.Fatalf("expected the sole result back, got %v", best)
	}
}

func TestCrossReferencePrefersHigherPrioritySource(t *testing.T) {
	results := []model.ExtractionResult{
		{ParishID: "a", SourceType: model.SourcePDFBulletin, Confidence: 0.9, Times: []model.MassTime{{Day: "Sunday", Time: "10:00 AM"}}},
		{ParishID: "a", SourceType: model.SourceICalFeed, Confidence: 0.6, Times: []model.MassTime{{Day: "Sunday", Time: "10:00 AM"}}},
	}
	best := CrossReference(results)
	if best.SourceType != model.SourceICalFeed {
		t.Errorf("best source = %v, want ical_feed", best.SourceType)
	}
}

func TestCrossReferenceBoostsConfidenceOnAgreement(t *testing.T) {
	agree := []model.MassTime{
		{Day: "Sunday", Time: "10:00 AM"}, {Day: "Monday", Time: "7:00 AM"},
	}
	results := []model.ExtractionResult{
		{ParishID: "a", SourceType: model.SourceWebsitePage, Confidence: 0.85, Times: agree, ValidationStatus: model.StatusProvisional},
		{ParishID: "a", SourceType: model.SourcePDFBulletin, Confidence: 0.8, Times: agree},
	}
	best := CrossReference(results)
	if best.Confidence <= 0.85 {
		t.Errorf("confidence = %v, want boosted above 0.85", best.Confidence)
	}
	if best.ValidationStatus != model.StatusConfirmed {
		t.Errorf("status = %v, want confirmed", best.ValidationStatus)
	}
}
