// Package model holds the data types shared by the template builder,
// extractor, and validator.
package model

import (
	"fmt"
	"time"
)

// SourceType identifies where a parish's Mass times are published.
// Values are ordered by reliability, lowest first — see Priority.
type SourceType string

const (
	SourceICalFeed       SourceType = "ical_feed"
	SourceStructuredData SourceType = "structured_data"
	SourceWebsitePage    SourceType = "website_page"
	SourcePDFBulletin    SourceType = "pdf_bulletin"
	SourceFacebookPage   SourceType = "facebook_page"
)

var sourcePriority = map[SourceType]int{
	SourceICalFeed:       0,
	SourceStructuredData: 1,
	SourceWebsitePage:    2,
	SourcePDFBulletin:    3,
	SourceFacebookPage:   4,
}

// Priority returns the source's reliability rank, lower meaning more
// reliable. Unknown source types sort last.
func (s SourceType) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return len(sourcePriority)
}

// ExtractionTier is the pipeline stage that produced an ExtractionResult.
type ExtractionTier int

const (
	Tier1Static ExtractionTier = 1
	Tier2Code   ExtractionTier = 2
	Tier3LLM    ExtractionTier = 3
)

// ValidationStatus is the publish-gating outcome of validation.
type ValidationStatus string

const (
	StatusConfirmed   ValidationStatus = "confirmed"
	StatusProvisional ValidationStatus = "provisional"
	StatusFlagged     ValidationStatus = "flagged"
)

// ParishStatus tracks whether a parish is still operating under its own
// identity.
type ParishStatus string

const (
	ParishActive ParishStatus = "active"
	ParishClosed ParishStatus = "closed"
	ParishMerged ParishStatus = "merged"
)

// Parish is a discrete Catholic worship community. Id is a stable slug;
// two parishes within 100m or with an identical normalised name are the
// same entity and must share an Id.
type Parish struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Address       string       `json:"address,omitempty"`
	Lat           float64      `json:"lat,omitempty"`
	Lng           float64      `json:"lng,omitempty"`
	DistanceKm    float64      `json:"distance_km,omitempty"`
	Website       string       `json:"website,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Email         string       `json:"email,omitempty"`
	ArchdioceseID string       `json:"archdiocese_id,omitempty"`
	Status        ParishStatus `json:"status"`
}

// SourceEndpoint is a candidate source for a parish's Mass times, as
// produced by parish discovery and consumed by the template builder.
type SourceEndpoint struct {
	ParishID            string     `json:"parish_id"`
	SourceType          SourceType `json:"source_type"`
	URL                 string     `json:"url"`
	IsPrimary           bool       `json:"is_primary"`
	CheckFrequencyHours int        `json:"check_frequency_hours"`
	Status              string     `json:"status"`
}

// MassTime is a single scheduled liturgical service. Equality for
// cross-referencing purposes is (Day, Time) only.
type MassTime struct {
	Day      string `json:"day"`
	Time     string `json:"time"`
	MassType string `json:"mass_type"`
	Language string `json:"language"`
	Notes    string `json:"notes,omitempty"`
}

// Key returns the (day, time) identity used for cross-referencing and
// symmetric-difference comparisons.
func (m MassTime) Key() [2]string {
	return [2]string{m.Day, m.Time}
}

// DefaultMassType and DefaultLanguage are applied whenever a recogniser
// can't determine a more specific value.
const (
	DefaultMassType = "Regular"
	DefaultLanguage = "English"
)

// ParsedTime is the intermediate result of recognising a time in text.
type ParsedTime struct {
	Hour     int    // 1-12
	Minute   int    // 0-59
	Period   string // "AM" or "PM"
	Original string
}

// SortKey orders ParsedTime values within a day, midnight-relative minutes
// since 12:00 AM.
func (p ParsedTime) SortKey() int {
	h := p.Hour % 12
	if p.Period == "PM" {
		h += 12
	}
	return h*60 + p.Minute
}

// Formatted renders the canonical "H:MM AM|PM" form: no leading zero on
// the hour, minutes always two digits, a single space before AM/PM.
func (p ParsedTime) Formatted() string {
	return fmt.Sprintf("%d:%02d %s", p.Hour, p.Minute, p.Period)
}

// WebTemplate describes how to locate and parse Mass times in an HTML
// page.
type WebTemplate struct {
	URL               string   `json:"url"`
	SectionSelector   string   `json:"section_selector"`
	FallbackSelectors []string `json:"fallback_selectors,omitempty"`
	TimeRegex         string   `json:"time_regex,omitempty"`
	DayRegex          string   `json:"day_regex,omitempty"`
	Encoding          string   `json:"encoding,omitempty"`
}

// BoundingRegion is a rectangle in PDF points, origin at the page's
// bottom-left as reported by the PDF coordinate extractor.
type BoundingRegion struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Empty reports whether the region was never set (the zero value).
func (b BoundingRegion) Empty() bool {
	return b.XMax == 0
}

// PdfTemplate describes how to locate and parse Mass times in a bulletin
// PDF.
type PdfTemplate struct {
	BulletinPageURL string         `json:"bulletin_page_url,omitempty"`
	PdfLinkPattern  string         `json:"pdf_link_pattern,omitempty"`
	MassTimesPage   int            `json:"mass_times_page"`
	BoundingRegion  BoundingRegion `json:"bounding_region"`
	HeadingText     string         `json:"heading_text,omitempty"`
	HeadingFontSize float64        `json:"heading_font_size,omitempty"`
	SectionStatic   bool           `json:"section_static"`
}

// ValidationRules are the quantitative thresholds the validator applies to
// an ExtractionResult produced against this template.
type ValidationRules struct {
	MinWeeklyMasses     int  `json:"min_weekly_masses"`
	MaxWeeklyMasses     int  `json:"max_weekly_masses"`
	ExpectedSundayCount int  `json:"expected_sunday_count"`
	AlertIfAllChange    bool `json:"alert_if_all_change"`
}

// DefaultValidationRules mirrors the teacher-neutral defaults baked into
// a freshly built template.
func DefaultValidationRules() ValidationRules {
	return ValidationRules{
		MinWeeklyMasses:     5,
		MaxWeeklyMasses:     20,
		ExpectedSundayCount: 3,
		AlertIfAllChange:    true,
	}
}

// ParishTemplate is the persisted recipe for extracting Mass times from a
// specific parish's source, plus the baseline captured when it was built.
//
// Exactly one of WebTemplate/PdfTemplate is populated, unless the source
// is an iCal feed or structured-data endpoint, in which case neither is
// set and BaselineTimes alone drives Tier 1.
type ParishTemplate struct {
	ParishID         string       `json:"parish_id"`
	ParishName       string       `json:"parish_name"`
	SourceType       SourceType   `json:"source_type"`
	SourcePriority   []SourceType `json:"source_priority"`
	ExtractionMethod string       `json:"extraction_method"`
	WebTemplate      *WebTemplate `json:"web_template,omitempty"`
	PdfTemplate      *PdfTemplate `json:"pdf_template,omitempty"`
	// FeedURL is the iCal or structured-data endpoint to re-fetch on
	// extraction; set only when SourceType is ical_feed or structured_data.
	FeedURL            string              `json:"feed_url,omitempty"`
	BaselineTimes      map[string][]string `json:"baseline_times"`
	ChangeIndicators   []string            `json:"change_indicators"`
	LanguageMarkers    []string            `json:"language_markers"`
	SpecialMassMarkers []string            `json:"special_mass_markers"`
	ValidationRules    ValidationRules     `json:"validation_rules"`
	TemplateVersion    int                 `json:"template_version"`
	CreatedAt          time.Time           `json:"created_at"`
	LastValidated      time.Time           `json:"last_validated"`
	ValidationAccuracy float64             `json:"validation_accuracy"`
	BuildMethod        string              `json:"build_method"`
	Notes              string              `json:"notes,omitempty"`
}

// SourceURL returns the URL extraction should re-fetch, regardless of
// which template shape carries it.
func (t ParishTemplate) SourceURL() string {
	switch {
	case t.WebTemplate != nil:
		return t.WebTemplate.URL
	case t.PdfTemplate != nil:
		return t.PdfTemplate.BulletinPageURL
	default:
		return t.FeedURL
	}
}

// ExtractionResult is the immutable outcome of one extraction run for a
// parish.
type ExtractionResult struct {
	ParishID             string         `json:"parish_id"`
	Times                []MassTime     `json:"times"`
	Tier                 ExtractionTier `json:"tier"`
	Confidence           float64        `json:"confidence"`
	ValidationStatus     ValidationStatus `json:"validation_status"`
	SourceURL            string         `json:"source_url"`
	SourceType           SourceType     `json:"source_type"`
	ContentHash          string         `json:"content_hash"`
	LLMModel             *string        `json:"llm_model"`
	LLMCostUSD           float64        `json:"llm_cost_usd"`
	ExtractedAt          time.Time      `json:"extracted_at"`
	ChangesFromPrevious  []string       `json:"changes_from_previous"`
}
