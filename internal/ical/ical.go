// Package ical parses the two highest-priority Mass-times source types:
// iCal feeds and schema.org structured data (JSON-LD
// openingHoursSpecification), both of which publish a machine-readable
// schedule directly and so need no heuristic section-finding at all.
package ical

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"mtextract/internal/model"
	"mtextract/internal/parser"
)

// icalTimestampLayouts covers the DTSTART forms a feed may use: UTC
// ("Z" suffix), floating local time, and a bare date for all-day events.
var icalTimestampLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
}

func parseICALTimestamp(value string) (time.Time, bool) {
	for _, layout := range icalTimestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formattedTimeOfDay(t time.Time) string {
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	period := "AM"
	if t.Hour() >= 12 {
		period = "PM"
	}
	return model.ParsedTime{Hour: hour, Minute: t.Minute(), Period: period}.Formatted()
}

// ParseFeed reads an iCal (.ics) feed and returns a day->times map built
// from each VEVENT's DTSTART and RRULE BYDAY, falling back to the start
// date's own weekday when no recurrence rule is present.
func ParseFeed(raw string) (map[string][]string, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ical: parsing calendar: %w", err)
	}

	result := make(map[string][]string)
	for _, event := range cal.Events() {
		start := event.GetProperty(ics.ComponentPropertyDtStart)
		if start == nil {
			continue
		}
		startTime, ok := parseICALTimestamp(start.Value)
		if !ok {
			continue
		}

		days := byDayWeekdays(event)
		if len(days) == 0 {
			days = []string{startTime.Weekday().String()}
		}

		formatted := formattedTimeOfDay(startTime)
		for _, day := range days {
			result[day] = append(result[day], formatted)
		}
	}
	return result, nil
}

var byDayCodes = map[string]string{
	"MO": "Monday", "TU": "Tuesday", "WE": "Wednesday", "TH": "Thursday",
	"FR": "Friday", "SA": "Saturday", "SU": "Sunday",
}

// byDayWeekdays extracts the day names implied by a VEVENT's RRULE BYDAY
// component. It returns nil for events with no RRULE or no BYDAY, and
// ParseFeed then uses the weekday of the event's DTSTART instead.
func byDayWeekdays(event *ics.VEvent) []string {
	rrule := event.GetProperty(ics.ComponentPropertyRrule)
	if rrule == nil {
		return nil
	}
	for _, part := range strings.Split(rrule.Value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] != "BYDAY" {
			continue
		}
		var days []string
		for _, code := range strings.Split(kv[1], ",") {
			code = strings.TrimLeft(code, "0123456789-+")
			if full, ok := byDayCodes[code]; ok {
				days = append(days, full)
			}
		}
		return days
	}
	return nil
}

// jsonLDScriptRe matches a single schema.org JSON-LD <script> block, the
// same shape churches commonly embed for their opening-hours markup.
var jsonLDScriptRe = regexp.MustCompile(`(?is)<script\s+type="application/ld\+json">\s*(\{.*?\})\s*</script>`)

type openingHoursSpec struct {
	DayOfWeek string `json:"dayOfWeek"`
	Opens     string `json:"opens"`
}

type structuredData struct {
	OpeningHoursSpecification []openingHoursSpec `json:"openingHoursSpecification"`
}

// ParseStructuredData extracts an openingHoursSpecification block from an
// HTML page's embedded JSON-LD and returns a day->times map.
func ParseStructuredData(html string) (map[string][]string, error) {
	match := jsonLDScriptRe.FindStringSubmatch(html)
	if match == nil {
		return nil, fmt.Errorf("ical: no JSON-LD found")
	}

	var data structuredData
	if err := json.Unmarshal([]byte(match[1]), &data); err != nil {
		return nil, fmt.Errorf("ical: parsing JSON-LD: %w", err)
	}

	result := make(map[string][]string)
	for _, spec := range data.OpeningHoursSpecification {
		day := canonicalDayOfWeek(spec.DayOfWeek)
		if day == "" {
			continue
		}
		pt, ok := parser.ParseTime(spec.Opens)
		if !ok {
			continue
		}
		result[day] = append(result[day], pt.Formatted())
	}
	return result, nil
}

// canonicalDayOfWeek accepts both bare day names ("Sunday") and the
// schema.org URI form ("https://schema.org/Sunday").
func canonicalDayOfWeek(s string) string {
	name := s
	if idx := strings.LastIndex(s, "/"); idx != -1 {
		name = s[idx+1:]
	}
	for _, day := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"} {
		if strings.EqualFold(day, name) {
			return day
		}
	}
	return ""
}
