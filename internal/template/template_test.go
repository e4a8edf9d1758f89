package template

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"mtextract/internal/fetcher"
	"mtextract/internal/model"
)

// glyphLine builds a single-page TextElement the way fetcher.ExtractTextWithCoords
// does: X1 = X0 + width, Y1 = Y0, matching ledongthuc/pdf's bottom-origin,
// y-increases-upward convention for a line of text at height y0.
func glyphLine(y0 float64, text string, size float64) fetcher.TextElement {
	return fetcher.TextElement{Page: 1, X0: 50, Y0: y0, X1: 50 + float64(len(text))*size*0.5, Y1: y0, Text: text, FontSize: size}
}

func TestGroupCharsToLinesOrdersTopToBottom(t *testing.T) {
	// Heading is physically highest on the page, so it carries the
	// largest y0 in ledongthuc/pdf's bottom-origin coordinate space.
	elements := []fetcher.TextElement{
		glyphLine(600, "Sunday: 10:00 AM", 10),
		glyphLine(700, "Mass Times", 14),
		glyphLine(650, "Saturday: 5:00 PM", 10),
	}
	lines := groupCharsToLines(elements)
	if len(lines) != 3 {
		t.Fatalf("groupCharsToLines returned %d lines, want 3", len(lines))
	}
	if lines[0].text != "Mass Times" {
		t.Errorf("lines[0] = %q, want the heading first in reading order", lines[0].text)
	}
	if lines[1].text != "Saturday: 5:00 PM" || lines[2].text != "Sunday: 10:00 AM" {
		t.Errorf("lines = [%q, %q, %q], want top-to-bottom reading order", lines[0].text, lines[1].text, lines[2].text)
	}
}

func TestLocateMassTimesSectionGrowsDownwardFromHeading(t *testing.T) {
	// A heading at y0=700 followed by two body lines below it on the
	// page (y0=650, y0=600) and an unrelated heading above it (y0=750)
	// that must NOT be absorbed into the region.
	elements := []fetcher.TextElement{
		glyphLine(750, "Bulletin", 14),
		glyphLine(700, "Mass Times", 14),
		glyphLine(650, "Saturday: 5:00 PM", 10),
		glyphLine(600, "Sunday: 8:00 AM, 10:00 AM", 10),
	}
	lines := groupCharsToLines(elements)

	_, region, headingText, _, ok, err := locateMassTimesSection(lines)
	if err != nil {
		t.Fatalf("locateMassTimesSection returned error: %v", err)
	}
	if !ok {
		t.Fatal("locateMassTimesSection reported no section found")
	}
	if headingText != "Mass Times" {
		t.Errorf("headingText = %q, want %q", headingText, "Mass Times")
	}
	// The region must cover the body lines below the heading (y0 <= 650)
	// and must not extend up to or past the unrelated heading at y0=750.
	if region.YMax >= 750 {
		t.Errorf("region.YMax = %v, want it to stay below the unrelated heading at y0=750", region.YMax)
	}
	if region.YMin > 600 {
		t.Errorf("region.YMin = %v, want it to reach down to the last body line at y0=600", region.YMin)
	}
}

const massTimesPage = `<html><body>
<h2 id="other">Bulletin</h2>
<p>Welcome to our parish.</p>
<h2>Mass Times</h2>
<div id="mass-schedule">
<p>Sunday: 8:00 AM, 10:00 AM, 12:00 PM</p>
<p>Saturday: 5:00 PM Vigil</p>
</div>
</body></html>`

func newMassTimesServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(massTimesPage))
	}))
}

func TestBuildWebTemplateFindsBaselineFromHeading(t *testing.T) {
	srv := newMassTimesServer(t)
	defer srv.Close()

	builder := NewBuilder(fetcher.New())
	parish := model.Parish{ID: "st-marys", Name: "St. Mary's"}

	tpl, err := builder.BuildWebTemplate(context.Background(), srv.URL+"/", parish)
	if err != nil {
		t.Fatalf("BuildWebTemplate returned error: %v", err)
	}
	if tpl == nil {
		t.Fatal("BuildWebTemplate returned nil template")
	}
	if tpl.WebTemplate == nil || tpl.WebTemplate.SectionSelector == "" {
		t.Fatal("expected a non-empty section selector")
	}
	if len(tpl.BaselineTimes["Sunday"]) != 3 {
		t.Errorf("Sunday baseline = %v, want 3 times", tpl.BaselineTimes["Sunday"])
	}
	if len(tpl.BaselineTimes["Saturday"]) != 1 {
		t.Errorf("Saturday baseline = %v, want 1 time", tpl.BaselineTimes["Saturday"])
	}
}

func TestBuildWebTemplateNilWhenNoSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<html><body><p>This parish has no schedule posted.</p></body></html>`))
	}))
	defer srv.Close()

	builder := NewBuilder(fetcher.New())
	tpl, err := builder.BuildWebTemplate(context.Background(), srv.URL+"/", model.Parish{ID: "no-schedule"})
	if err != nil {
		t.Fatalf("BuildWebTemplate returned error: %v", err)
	}
	if tpl != nil {
		t.Fatalf("expected nil template, got %+v", tpl)
	}
}
