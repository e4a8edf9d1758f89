package extractor

import (
	"strings"
	"testing"

	"mtextract/internal/model"
)

func TestTier1StaticConfirmsWhenNoChangeIndicators(t *testing.T) {
	tpl := model.ParishTemplate{
		BaselineTimes: map[string][]string{"Sunday": {"10:00 AM"}},
	}
	times := tier1Static(tpl, "Sunday Mass at 10:00 AM, all are welcome.")
	if len(times) != 1 || times[0].Day != "Sunday" || times[0].Time != "10:00 AM" {
		t.Fatalf("tier1Static = %v", times)
	}
}

func TestTier1StaticEscalatesOnChangeIndicator(t *testing.T) {
	tpl := model.ParishTemplate{
		BaselineTimes: map[string][]string{"Sunday": {"10:00 AM"}},
	}
	times := tier1Static(tpl, "Please note: the 10:00 AM Mass is cancelled this week.")
	if times != nil {
		t.Fatalf("tier1Static = %v, want nil (escalate)", times)
	}
}

func TestTier1StaticEscalatesWhenNoBaseline(t *testing.T) {
	tpl := model.ParishTemplate{}
	if times := tier1Static(tpl, "Sunday 10:00 AM"); times != nil {
		t.Fatalf("tier1Static = %v, want nil", times)
	}
}

func TestTier1StaticEscalatesOnDynamicPdfSection(t *testing.T) {
	tpl := model.ParishTemplate{
		BaselineTimes: map[string][]string{"Sunday": {"10:00 AM"}},
		PdfTemplate:   &model.PdfTemplate{SectionStatic: false},
	}
	if times := tier1Static(tpl, "Sunday 10:00 AM"); times != nil {
		t.Fatalf("tier1Static = %v, want nil", times)
	}
}

func TestTier2CodeExtractsAndDetectsLanguage(t *testing.T) {
	tpl := model.ParishTemplate{
		ValidationRules: model.ValidationRules{MinWeeklyMasses: 2},
	}
	text := "Weekend Mass Times\nSaturday 5:00 PM Vigil\nSunday 8:00 AM Italian Mass, 10:00 AM"
	times := tier2Code(tpl, text)
	if len(times) != 3 {
		t.Fatalf("tier2Code returned %d times, want 3: %+v", len(times), times)
	}

	byKey := make(map[[2]string]model.MassTime)
	for _, mt := range times {
		byKey[mt.Key()] = mt
	}
	if mt := byKey[[2]string{"Saturday", "5:00 PM"}]; mt.MassType != "Vigil" {
		t.Errorf("Saturday 5:00 PM mass type = %q, want Vigil", mt.MassType)
	}
	if mt := byKey[[2]string{"Sunday", "8:00 AM"}]; mt.Language != "Italian" {
		t.Errorf("Sunday 8:00 AM language = %q, want Italian", mt.Language)
	}
}

func TestTier2CodeEscalatesBelowMinimum(t *testing.T) {
	tpl := model.ParishTemplate{ValidationRules: model.ValidationRules{MinWeeklyMasses: 5}}
	times := tier2Code(tpl, "Sunday 10:00 AM")
	if times != nil {
		t.Fatalf("tier2Code = %v, want nil (escalate)", times)
	}
}

func TestDayTimeMapsEqual(t *testing.T) {
	a := map[string][]string{"Sunday": {"10:00 AM", "8:00 AM"}}
	b := map[string][]string{"Sunday": {"8:00 AM", "10:00 AM"}}
	if !dayTimeMapsEqual(a, b) {
		t.Error("expected maps with same multiset of times to be equal regardless of order")
	}
	c := map[string][]string{"Sunday": {"8:00 AM"}}
	if dayTimeMapsEqual(a, c) {
		t.Error("expected maps of different sizes to be unequal")
	}
}

func TestBuildTier3PromptTruncatesAndIncludesBaseline(t *testing.T) {
	tpl := model.ParishTemplate{BaselineTimes: map[string][]string{"Sunday": {"10:00 AM"}}}
	longText := make([]byte, promptCharLimit+500)
	for i := range longText {
		longText[i] = 'x'
	}
	prompt := buildTier3Prompt(tpl, string(longText))
	if !strings.Contains(prompt, "Known baseline times") {
		t.Error("expected prompt to include baseline hint")
	}
	if strings.Contains(prompt, string(longText)) {
		t.Error("expected prompt to truncate the source text")
	}
}
