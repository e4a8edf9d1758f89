// Package parser contains deterministic, allocation-light recognisers for
// the times, days, headings, and change indicators that appear in parish
// Mass schedules. Every function here is pure: no I/O, no network, no
// shared state.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mtextract/internal/model"
)

// Time recognisers, tried in order — see ParseTime.
var (
	reTimeColon = regexp.MustCompile(`(?i)\b(\d{1,2})[:.](\d{2})\s*([ap])\.?m\.?\b`)
	reTimeBare  = regexp.MustCompile(`(?i)(?:^|[^\d])(\d{1,2})\s*([ap])\.?m\.?\b`)
	reTime24    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	reAMPMAhead = regexp.MustCompile(`(?i)^\s*[ap]\.?m\.?`)
)

var dayNames = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

var dayIndex = func() map[string]int {
	m := make(map[string]int, len(dayNames))
	for i, d := range dayNames {
		m[d] = i
	}
	return m
}()

var reDayFull = regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`)
var reDayAbbrev = regexp.MustCompile(`(?i)\b(Mon|Tue|Tues|Wed|Thu|Thur|Thurs|Fri|Sat|Sun)\.?(?:day)?\b`)
var reDayRange = regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday|Mon|Tue|Tues|Wed|Thu|Thur|Thurs|Fri|Sat|Sun)\.?(?:day)?\s*(?:-|–|—|to)\s*(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday|Mon|Tue|Tues|Wed|Thu|Thur|Thurs|Fri|Sat|Sun)\.?(?:day)?\b`)
var reWeekday = regexp.MustCompile(`(?i)\bweekdays?\b`)
var reWeekend = regexp.MustCompile(`(?i)\bweekends?\b`)

var abbrevToFull = map[string]string{
	"mon": "Monday", "tue": "Tuesday", "tues": "Tuesday", "wed": "Wednesday",
	"thu": "Thursday", "thur": "Thursday", "thurs": "Thursday", "fri": "Friday",
	"sat": "Saturday", "sun": "Sunday",
}

func canonicalDay(s string) (string, bool) {
	lower := strings.ToLower(s)
	if full, ok := abbrevToFull[lower]; ok {
		return full, true
	}
	for _, d := range dayNames {
		if strings.EqualFold(d, s) {
			return d, true
		}
	}
	return "", false
}

// ParseTime recognises the first valid time in s and returns it along with
// the original matched substring. The three forms below are tried in
// order: colon/dot 12-hour, bare 12-hour, and 24-hour.
func ParseTime(s string) (model.ParsedTime, bool) {
	if loc := reTimeColon.FindStringSubmatchIndex(s); loc != nil {
		if pt, ok := parseColonMatch(s, loc); ok {
			return pt, true
		}
	}
	if loc := reTimeBare.FindStringSubmatchIndex(s); loc != nil {
		if pt, ok := parseBareMatch(s, loc); ok {
			return pt, true
		}
	}
	if loc := reTime24.FindStringSubmatchIndex(s); loc != nil {
		if pt, ok := parse24Match(s, loc); ok {
			// Only accept if not immediately followed by am/pm (that's the
			// colon form's job, and would already have matched above).
			return pt, true
		}
	}
	return model.ParsedTime{}, false
}

func parseColonMatch(s string, loc []int) (model.ParsedTime, bool) {
	hourStr := s[loc[2]:loc[3]]
	minStr := s[loc[4]:loc[5]]
	periodStr := s[loc[6]:loc[7]]
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 1 || hour > 12 {
		return model.ParsedTime{}, false
	}
	minute, err := strconv.Atoi(minStr)
	if err != nil || minute < 0 || minute > 59 {
		return model.ParsedTime{}, false
	}
	period := "AM"
	if strings.EqualFold(periodStr, "p") {
		period = "PM"
	}
	return model.ParsedTime{
		Hour: hour, Minute: minute, Period: period,
		Original: s[loc[0]:loc[1]],
	}, true
}

func parseBareMatch(s string, loc []int) (model.ParsedTime, bool) {
	hourStr := s[loc[2]:loc[3]]
	periodStr := s[loc[4]:loc[5]]
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 1 || hour > 12 {
		return model.ParsedTime{}, false
	}
	period := "AM"
	if strings.EqualFold(periodStr, "p") {
		period = "PM"
	}
	return model.ParsedTime{
		Hour: hour, Minute: 0, Period: period,
		Original: strings.TrimSpace(s[loc[2]:loc[1]]),
	}, true
}

func parse24Match(s string, loc []int) (model.ParsedTime, bool) {
	// Reject if immediately followed by am/pm — that belongs to the
	// colon-form recogniser and would already have matched.
	if loc[1] < len(s) && reAMPMAhead.MatchString(s[loc[1]:]) {
		return model.ParsedTime{}, false
	}
	hourStr := s[loc[2]:loc[3]]
	minStr := s[loc[4]:loc[5]]
	hour24, err := strconv.Atoi(hourStr)
	if err != nil || hour24 < 0 || hour24 > 23 {
		return model.ParsedTime{}, false
	}
	minute, err := strconv.Atoi(minStr)
	if err != nil || minute < 0 || minute > 59 {
		return model.ParsedTime{}, false
	}
	hour, period := from24Hour(hour24)
	return model.ParsedTime{
		Hour: hour, Minute: minute, Period: period,
		Original: s[loc[0]:loc[1]],
	}, true
}

// from24Hour maps a 24-hour hour value to its 12-hour hour and AM/PM
// period: 0 -> 12 AM, 1-11 -> h AM, 12 -> 12 PM, 13-23 -> (h-12) PM.
func from24Hour(h int) (int, string) {
	switch {
	case h == 0:
		return 12, "AM"
	case h < 12:
		return h, "AM"
	case h == 12:
		return 12, "PM"
	default:
		return h - 12, "PM"
	}
}

// FindTimes returns every time recognised in text, deduplicated by
// formatted string and sorted ascending by sort key.
func FindTimes(text string) []model.ParsedTime {
	var found []model.ParsedTime
	seen := make(map[string]bool)

	collect := func(re *regexp.Regexp, parse func(string, []int) (model.ParsedTime, bool)) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			pt, ok := parse(text, loc)
			if !ok {
				continue
			}
			f := pt.Formatted()
			if seen[f] {
				continue
			}
			seen[f] = true
			found = append(found, pt)
		}
	}

	collect(reTimeColon, parseColonMatch)
	collect(reTime24, parse24Match)
	collect(reTimeBare, parseBareMatch)

	sort.Slice(found, func(i, j int) bool {
		return found[i].SortKey() < found[j].SortKey()
	})
	return found
}

// FindDays returns the canonical day names appearing in text, in order of
// appearance. Day ranges ("Monday to Friday", "Mon-Fri") and the literal
// keywords Weekday(s)/Weekend(s) are expanded before any remaining
// standalone day mentions are scanned, so a day matched inside a range is
// not reported again as a standalone hit.
func FindDays(text string) []string {
	type span struct {
		start, end int
		days       []string
	}
	var spans []span

	for _, loc := range reDayRange.FindAllStringSubmatchIndex(text, -1) {
		a := text[loc[2]:loc[3]]
		b := text[loc[4]:loc[5]]
		aFull, ok1 := canonicalDay(a)
		bFull, ok2 := canonicalDay(b)
		if !ok1 || !ok2 {
			continue
		}
		spans = append(spans, span{loc[0], loc[1], ExpandDayRange(aFull, bFull)})
	}
	for _, loc := range reWeekday.FindAllStringIndex(text, -1) {
		spans = append(spans, span{loc[0], loc[1], []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}})
	}
	for _, loc := range reWeekend.FindAllStringIndex(text, -1) {
		spans = append(spans, span{loc[0], loc[1], []string{"Saturday", "Sunday"}})
	}

	covered := func(pos int) bool {
		for _, sp := range spans {
			if pos >= sp.start && pos < sp.end {
				return true
			}
		}
		return false
	}

	for _, loc := range reDayFull.FindAllStringIndex(text, -1) {
		if covered(loc[0]) {
			continue
		}
		full, _ := canonicalDay(text[loc[0]:loc[1]])
		spans = append(spans, span{loc[0], loc[1], []string{full}})
	}
	for _, loc := range reDayAbbrev.FindAllStringIndex(text, -1) {
		if covered(loc[0]) {
			continue
		}
		full, ok := canonicalDay(strings.TrimRight(text[loc[0]:loc[1]], "."))
		if !ok {
			continue
		}
		// Avoid double-reporting a day already captured by reDayFull at
		// the same position (e.g. "Monday" also matches the abbrev regex
		// loosely in some engines — defensive only).
		dup := false
		for _, sp := range spans {
			if sp.start == loc[0] {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		spans = append(spans, span{loc[0], loc[1], []string{full}})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	seen := make(map[string]bool)
	var out []string
	for _, sp := range spans {
		for _, d := range sp.days {
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// ExpandDayRange returns the inclusive sequence of canonical day names
// from a to b over the fixed Monday->Sunday week, wrapping around the end
// of the week if idx(a) > idx(b).
func ExpandDayRange(a, b string) []string {
	ai, aok := dayIndex[a]
	bi, bok := dayIndex[b]
	if !aok || !bok {
		return nil
	}
	n := ((bi-ai)%7 + 7) % 7
	out := make([]string, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, dayNames[(ai+i)%7])
	}
	return out
}

var reMassTimesHeading = regexp.MustCompile(`(?i)\bmass\s*times?\b|\bliturgy\s*schedule\b|\bweekend\s*mass\b|\bweekday\s*mass\b|\bservice\s*times?\b|\bworship\s*times?\b|\bmass\s*schedule\b|\bholy\s*mass\b|\beucharist\b`)

// HasMassTimesHeading reports whether text looks like a section heading
// introducing a Mass-times schedule.
func HasMassTimesHeading(text string) bool {
	return reMassTimesHeading.MatchString(text)
}

var changeIndicatorPhrases = []string{
	"no mass", "cancelled", "canceled", "changed to", "note:", "please note",
	"instead", "will not be held", "moved to", "rescheduled",
}
var reNoThisWeek = regexp.MustCompile(`(?i)\bno\b[^.\n]{0,40}\bthis\s+week\b`)

// DetectChangeIndicators returns every change-indicator phrase found in
// text. A non-empty result means a Tier-1 static confirmation must
// escalate.
func DetectChangeIndicators(text string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, phrase := range changeIndicatorPhrases {
		if strings.Contains(lower, phrase) {
			hits = append(hits, phrase)
		}
	}
	if loc := reNoThisWeek.FindString(text); loc != "" {
		hits = append(hits, strings.TrimSpace(loc))
	}
	return hits
}

var languageMarkers = []string{
	"Italian", "Vietnamese", "Latin", "Polish", "Spanish", "Portuguese",
	"French", "German", "Croatian", "Filipino", "Tagalog", "Korean",
}

// DetectLanguage returns the first language marker found in text, or the
// default "English" if none match.
func DetectLanguage(text string) string {
	for _, lang := range languageMarkers {
		if containsWord(text, lang) {
			return lang
		}
	}
	return model.DefaultLanguage
}

var specialTypeMarkers = []struct {
	pattern *regexp.Regexp
	label   string
}{
	{regexp.MustCompile(`(?i)\bvigil\b`), "Vigil"},
	{regexp.MustCompile(`(?i)\breconciliation\b|\bconfession`), "Reconciliation"},
	{regexp.MustCompile(`(?i)\badoration\b`), "Adoration"},
	{regexp.MustCompile(`(?i)\blatin\s*(rite|mass)?\b`), "Latin Rite"},
	{regexp.MustCompile(`(?i)\bchildren'?s?\s*liturgy\b`), "Children's Liturgy"},
	{regexp.MustCompile(`(?i)\bholy\s*day\b`), "Holy Day"},
}

// DetectSpecialType returns the canonical Mass-type label found in text,
// or the default "Regular" if none match.
func DetectSpecialType(text string) string {
	for _, m := range specialTypeMarkers {
		if m.pattern.MatchString(text) {
			return m.label
		}
	}
	return model.DefaultMassType
}

func containsWord(text, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(text)
}

// ParseDayTimeBlock splits text by line and, for each line containing both
// a day and a time, appends that line's times (as FindTimes returns them:
// ascending, each distinct time once) to every day on that line. Lines are
// processed in encounter order. Lines with a day but no time (headings)
// and lines with a time but no day are ignored at this level; a time
// listed for the same day on several lines is appended once per line, so
// such duplicates are left for the caller.
func ParseDayTimeBlock(text string) map[string][]string {
	result := make(map[string][]string)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		days := FindDays(line)
		times := FindTimes(line)
		if len(days) == 0 || len(times) == 0 {
			continue
		}
		formatted := make([]string, len(times))
		for i, t := range times {
			formatted[i] = t.Formatted()
		}
		for _, day := range days {
			result[day] = append(result[day], formatted...)
		}
	}
	return result
}
