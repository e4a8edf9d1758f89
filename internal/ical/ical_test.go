package ical

import (
	"testing"
)

const weeklyFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Parish//Mass Times//EN
BEGIN:VEVENT
UID:sunday-mass@example.org
DTSTART:20260104T100000Z
RRULE:FREQ=WEEKLY;BYDAY=SU
SUMMARY:Sunday Mass
END:VEVENT
BEGIN:VEVENT
UID:vigil@example.org
DTSTART:20260103T170000Z
RRULE:FREQ=WEEKLY;BYDAY=SA
SUMMARY:Saturday Vigil
END:VEVENT
BEGIN:VEVENT
UID:one-off@example.org
DTSTART:20260107T183000Z
SUMMARY:Wednesday Evening Mass
END:VEVENT
END:VCALENDAR
`

func TestParseFeedExpandsByDay(t *testing.T) {
	times, err := ParseFeed(weeklyFeed)
	if err != nil {
		t.Fatalf("ParseFeed returned error: %v", err)
	}
	if got := times["Sunday"]; len(got) != 1 || got[0] != "10:00 AM" {
		t.Errorf("Sunday times = %v, want [10:00 AM]", got)
	}
	if got := times["Saturday"]; len(got) != 1 || got[0] != "5:00 PM" {
		t.Errorf("Saturday times = %v, want [5:00 PM]", got)
	}
}

func TestParseFeedFallsBackToStartWeekdayWithoutRrule(t *testing.T) {
	times, err := ParseFeed(weeklyFeed)
	if err != nil {
		t.Fatalf("ParseFeed returned error: %v", err)
	}
	// 2026-01-07 is a Wednesday.
	if got := times["Wednesday"]; len(got) != 1 || got[0] != "6:30 PM" {
		t.Errorf("Wednesday times = %v, want [6:30 PM]", got)
	}
}

func TestParseFeedInvalidCalendar(t *testing.T) {
	if _, err := ParseFeed("not an ics feed"); err == nil {
		t.Fatal("expected an error for a malformed calendar")
	}
}

const structuredPage = `<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Church",
  "openingHoursSpecification": [
    {"@type": "OpeningHoursSpecification", "dayOfWeek": "https://schema.org/Sunday", "opens": "08:00"},
    {"@type": "OpeningHoursSpecification", "dayOfWeek": "Sunday", "opens": "10:00"},
    {"@type": "OpeningHoursSpecification", "dayOfWeek": "Saturday", "opens": "17:00"}
  ]
}
</script>
</head><body></body></html>`

func TestParseStructuredDataExtractsOpeningHours(t *testing.T) {
	times, err := ParseStructuredData(structuredPage)
	if err != nil {
		t.Fatalf("ParseStructuredData returned error: %v", err)
	}
	if got := times["Sunday"]; len(got) != 2 {
		t.Fatalf("Sunday times = %v, want 2 entries", got)
	}
	if got := times["Saturday"]; len(got) != 1 || got[0] != "5:00 PM" {
		t.Errorf("Saturday times = %v, want [5:00 PM]", got)
	}
}

func TestParseStructuredDataNoJSONLD(t *testing.T) {
	if _, err := ParseStructuredData("<html><body>nothing here</body></html>"); err == nil {
		t.Fatal("expected an error when no JSON-LD block is present")
	}
}
