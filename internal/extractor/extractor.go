// Package extractor runs the three-tier Mass-times extraction pipeline:
// Tier 1 static confirmation against a template's baseline, Tier 2
// deterministic parsing, and Tier 3 LLM fallback.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mtextract/internal/fetcher"
	"mtextract/internal/ical"
	"mtextract/internal/llm"
	"mtextract/internal/model"
	"mtextract/internal/parser"
	"mtextract/internal/template"
)

const (
	tier1Confidence = 1.0
	tier2Confidence = 0.85
	tier3Confidence = 0.7
	promptCharLimit = 4000
)

// Extractor orchestrates content acquisition and tier escalation for a
// single parish template.
type Extractor struct {
	Fetcher      *fetcher.Fetcher
	LLM          llm.Client
	FallbackModel string
}

// New returns an Extractor. llmClient may be nil, in which case Tier 3 is
// always skipped and a fully-failed extraction is flagged instead.
func New(f *fetcher.Fetcher, llmClient llm.Client, fallbackModel string) *Extractor {
	if fallbackModel == "" {
		fallbackModel = "claude-sonnet-4-5"
	}
	return &Extractor{Fetcher: f, LLM: llmClient, FallbackModel: fallbackModel}
}

// Extract runs the pipeline for template and returns the resulting
// ExtractionResult. It never errors: a failure to acquire or parse
// content is represented as a flagged, zero-confidence result, matching
// the source pipeline's own behaviour of always producing a record.
func (e *Extractor) Extract(ctx context.Context, tpl model.ParishTemplate) model.ExtractionResult {
	result := model.ExtractionResult{
		ParishID:   tpl.ParishID,
		SourceType: tpl.SourceType,
	}
	if tpl.SourceType == "" {
		result.SourceType = model.SourceWebsitePage
	}
	result.SourceURL = tpl.SourceURL()

	if tpl.SourceType == model.SourceICalFeed || tpl.SourceType == model.SourceStructuredData {
		return e.extractStructured(ctx, tpl, result)
	}

	text, contentHash, err := e.fetchContent(ctx, tpl)
	if err != nil {
		log.Printf("extractor: could not fetch content for %s: %v", tpl.ParishID, err)
		result.ValidationStatus = model.StatusFlagged
		result.Confidence = 0
		return result
	}
	result.ContentHash = contentHash

	if times := tier1Static(tpl, text); times != nil {
		result.Times = times
		result.Tier = model.Tier1Static
		result.Confidence = tier1Confidence
		result.ValidationStatus = model.StatusConfirmed
		log.Printf("extractor: tier 1 (static) for %s: %d times", tpl.ParishID, len(result.Times))
		return result
	}

	if times := tier2Code(tpl, text); times != nil {
		result.Times = times
		result.Tier = model.Tier2Code
		result.Confidence = tier2Confidence
		result.ValidationStatus = model.StatusConfirmed
		log.Printf("extractor: tier 2 (code) for %s: %d times", tpl.ParishID, len(result.Times))
		return result
	}

	if e.LLM != nil {
		times, modelName, cost, err := e.tier3LLM(ctx, tpl, text)
		if err != nil {
			log.Printf("extractor: tier 3 (llm) failed for %s: %v", tpl.ParishID, err)
		} else if times != nil {
			result.Times = times
			result.Tier = model.Tier3LLM
			result.Confidence = tier3Confidence
			result.ValidationStatus = model.StatusProvisional
			result.LLMModel = &modelName
			result.LLMCostUSD = cost
			log.Printf("extractor: tier 3 (llm) for %s: %d times", tpl.ParishID, len(result.Times))
			return result
		}
	}

	log.Printf("extractor: all tiers failed for %s", tpl.ParishID)
	result.ValidationStatus = model.StatusFlagged
	result.Confidence = 0
	return result
}

// extractStructured handles the ical_feed and structured_data source
// types, which publish a machine-readable day->times map directly. No
// heuristic section-finding or regex time-recognition is needed; the
// published data is parsed once and, if parsing fails outright, Tier 3
// is tried against the raw fetched content as a last resort.
func (e *Extractor) extractStructured(ctx context.Context, tpl model.ParishTemplate, result model.ExtractionResult) model.ExtractionResult {
	raw, hash, err := e.Fetcher.FetchPage(ctx, tpl.SourceURL())
	if err != nil {
		log.Printf("extractor: could not fetch structured source for %s: %v", tpl.ParishID, err)
		result.ValidationStatus = model.StatusFlagged
		result.Confidence = 0
		return result
	}
	result.ContentHash = hash

	dayTimeMap, err := structuredDayTimeMap(tpl.SourceType, raw)
	if err == nil && len(dayTimeMap) > 0 {
		if len(tpl.BaselineTimes) > 0 && len(parser.DetectChangeIndicators(raw)) == 0 && dayTimeMapsEqual(dayTimeMap, tpl.BaselineTimes) {
			result.Times = massTimesFromMap(tpl.BaselineTimes)
			result.Tier = model.Tier1Static
			result.Confidence = tier1Confidence
			result.ValidationStatus = model.StatusConfirmed
			return result
		}
		result.Times = massTimesFromMap(dayTimeMap)
		result.Tier = model.Tier2Code
		result.Confidence = tier2Confidence
		result.ValidationStatus = model.StatusConfirmed
		return result
	}

	if e.LLM != nil {
		times, modelName, cost, llmErr := e.tier3LLM(ctx, tpl, raw)
		if llmErr == nil && times != nil {
			result.Times = times
			result.Tier = model.Tier3LLM
			result.Confidence = tier3Confidence
			result.ValidationStatus = model.StatusProvisional
			result.LLMModel = &modelName
			result.LLMCostUSD = cost
			return result
		}
	}

	log.Printf("extractor: all tiers failed for structured source %s", tpl.ParishID)
	result.ValidationStatus = model.StatusFlagged
	result.Confidence = 0
	return result
}

func massTimesFromMap(dayTimeMap map[string][]string) []model.MassTime {
	var times []model.MassTime
	for day, dayTimes := range dayTimeMap {
		for _, t := range dayTimes {
			times = append(times, model.MassTime{Day: day, Time: t, MassType: model.DefaultMassType, Language: model.DefaultLanguage})
		}
	}
	return times
}

func dayTimeMapsEqual(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for day, aTimes := range a {
		bTimes, ok := b[day]
		if !ok || len(aTimes) != len(bTimes) {
			return false
		}
		seen := make(map[string]int, len(bTimes))
		for _, t := range bTimes {
			seen[t]++
		}
		for _, t := range aTimes {
			if seen[t] == 0 {
				return false
			}
			seen[t]--
		}
	}
	return true
}

// fetchContent retrieves and reduces a template's source to plain text,
// dispatching on source type.
func (e *Extractor) fetchContent(ctx context.Context, tpl model.ParishTemplate) (string, string, error) {
	switch tpl.SourceType {
	case model.SourceWebsitePage:
		if tpl.WebTemplate == nil {
			return "", "", fmt.Errorf("no web template")
		}
		html, hash, err := e.Fetcher.FetchPage(ctx, tpl.WebTemplate.URL)
		if err != nil {
			return "", "", err
		}
		text, err := extractSectionFromHTML(html, tpl.WebTemplate)
		if err != nil {
			return "", "", err
		}
		return text, hash, nil

	case model.SourcePDFBulletin:
		if tpl.PdfTemplate == nil || tpl.PdfTemplate.BulletinPageURL == "" {
			return "", "", fmt.Errorf("no pdf template")
		}
		pdfURL, err := e.Fetcher.FindLatestPDFLink(ctx, tpl.PdfTemplate.BulletinPageURL, tpl.PdfTemplate.PdfLinkPattern)
		if err != nil {
			return "", "", err
		}
		pdfBytes, hash, err := e.Fetcher.FetchPDF(ctx, pdfURL)
		if err != nil {
			return "", "", err
		}
		text, err := extractTextFromPDF(pdfBytes, tpl.PdfTemplate)
		if err != nil {
			return "", "", err
		}
		return text, hash, nil

	default:
		return "", "", fmt.Errorf("unsupported source type %q", tpl.SourceType)
	}
}

// extractSectionFromHTML applies the template's selector and fallback
// selectors in order, falling back to the full page's text if none match.
// Text is rendered with explicit block-level newlines (the same way the
// template builder renders its baseline) rather than goquery's raw
// .Text(), which concatenates descendant text nodes with no separator and
// collapses minified markup onto a single line.
func extractSectionFromHTML(html string, wt *model.WebTemplate) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("extractor: parsing html: %w", err)
	}

	selectors := append([]string{wt.SectionSelector}, wt.FallbackSelectors...)
	for _, selector := range selectors {
		if selector == "" {
			continue
		}
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			return template.ExtractSectionText(sel), nil
		}
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return template.ExtractSectionText(body), nil
}

// extractTextFromPDF extracts text from the template's bounding region,
// falling back to the PDF's full text if the region yields nothing.
func extractTextFromPDF(pdfBytes []byte, pt *model.PdfTemplate) (string, error) {
	if !pt.BoundingRegion.Empty() {
		text, err := fetcher.ExtractTextFromRegion(pdfBytes, pt.MassTimesPage, pt.BoundingRegion.XMin, pt.BoundingRegion.YMin, pt.BoundingRegion.XMax, pt.BoundingRegion.YMax)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return fetcher.ExtractTextFromPDF(pdfBytes)
}

// tier1Static confirms the template's baseline times are still correct:
// no change indicators in the fetched text, and — for a PDF source — the
// section must be marked static. Returns nil to signal escalation.
func tier1Static(tpl model.ParishTemplate, text string) []model.MassTime {
	if len(tpl.BaselineTimes) == 0 {
		return nil
	}
	if changes := parser.DetectChangeIndicators(text); len(changes) > 0 {
		return nil
	}
	if tpl.PdfTemplate != nil && !tpl.PdfTemplate.SectionStatic {
		return nil
	}

	var times []model.MassTime
	for day, dayTimes := range tpl.BaselineTimes {
		for _, t := range dayTimes {
			times = append(times, model.MassTime{Day: day, Time: t, MassType: model.DefaultMassType, Language: model.DefaultLanguage})
		}
	}
	if len(times) == 0 {
		return nil
	}
	return times
}

// tier2Code parses day/time pairs directly out of text and, for every
// time found, detects special-mass-type and language from the first
// original line that mentions it. When the same time appears on several
// lines, that first line decides, so a later line's language or type can
// be mislabeled. Returns nil to signal escalation.
func tier2Code(tpl model.ParishTemplate, text string) []model.MassTime {
	dayTimeMap := parser.ParseDayTimeBlock(text)
	if len(dayTimeMap) == 0 {
		return nil
	}

	total := 0
	for _, times := range dayTimeMap {
		total += len(times)
	}
	minRequired := tpl.ValidationRules.MinWeeklyMasses
	if minRequired == 0 {
		minRequired = 5
	}
	if total < minRequired {
		return nil
	}

	lines := strings.Split(text, "\n")
	var massTimes []model.MassTime
	for day, times := range dayTimeMap {
		for _, t := range times {
			context := findContextLine(lines, t)
			massType, language := model.DefaultMassType, model.DefaultLanguage
			if context != "" {
				massType = parser.DetectSpecialType(context)
				language = parser.DetectLanguage(context)
			}
			massTimes = append(massTimes, model.MassTime{Day: day, Time: t, MassType: massType, Language: language})
		}
	}
	if len(massTimes) == 0 {
		return nil
	}
	return massTimes
}

// findContextLine returns the first line whose whitespace-insensitive
// text contains the given formatted time, for language/type detection.
func findContextLine(lines []string, formattedTime string) string {
	target := strings.ToLower(strings.ReplaceAll(formattedTime, " ", ""))
	for _, line := range lines {
		candidate := strings.ToLower(strings.ReplaceAll(line, " ", ""))
		if strings.Contains(candidate, target) {
			return line
		}
	}
	return ""
}

type tier3Response struct {
	Times []struct {
		Day      string `json:"day"`
		Time     string `json:"time"`
		Type     string `json:"type"`
		Language string `json:"language"`
		Notes    string `json:"notes"`
	} `json:"times"`
}

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// tier3LLM sends the fetched text to the fallback LLM and parses its
// JSON response into MassTime records. Returns (nil, model, cost, nil)
// when the response parses but lists no times; a failed call or a
// response that cannot be parsed is returned as an error.
func (e *Extractor) tier3LLM(ctx context.Context, tpl model.ParishTemplate, text string) ([]model.MassTime, string, float64, error) {
	prompt := buildTier3Prompt(tpl, text)

	responseText, inputTokens, outputTokens, err := e.LLM.Complete(ctx, e.FallbackModel, 1024, prompt)
	cost := llm.Cost(inputTokens, outputTokens)
	if err != nil {
		return nil, e.FallbackModel, cost, err
	}

	responseText = strings.TrimSpace(responseText)
	if strings.Contains(responseText, "```") {
		match := fencedJSONRe.FindStringSubmatch(responseText)
		if match == nil {
			return nil, e.FallbackModel, cost, fmt.Errorf("extractor: could not find fenced json in llm response")
		}
		responseText = strings.TrimSpace(match[1])
	}

	var parsed tier3Response
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		return nil, e.FallbackModel, cost, fmt.Errorf("extractor: parsing llm response: %w", err)
	}

	var times []model.MassTime
	for _, entry := range parsed.Times {
		massType := entry.Type
		if massType == "" {
			massType = model.DefaultMassType
		}
		language := entry.Language
		if language == "" {
			language = model.DefaultLanguage
		}
		times = append(times, model.MassTime{
			Day: entry.Day, Time: entry.Time, MassType: massType, Language: language, Notes: entry.Notes,
		})
	}
	if len(times) == 0 {
		return nil, e.FallbackModel, cost, nil
	}
	return times, e.FallbackModel, cost, nil
}

func buildTier3Prompt(tpl model.ParishTemplate, text string) string {
	var baselineHint string
	if len(tpl.BaselineTimes) > 0 {
		if b, err := json.Marshal(tpl.BaselineTimes); err == nil {
			baselineHint = fmt.Sprintf("\nKnown baseline times for this parish: %s\nFlag any differences from the baseline.", string(b))
		}
	}

	truncated := text
	if len(truncated) > promptCharLimit {
		truncated = truncated[:promptCharLimit]
	}

	return fmt.Sprintf(`Extract all Catholic mass times from this text. Return ONLY valid JSON with no other text.

Format:
{"times": [{"day": "Sunday", "time": "10:00 AM", "type": "Regular", "language": "English", "notes": ""}]}

Valid days: Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday
Valid types: Regular, Vigil, Holy Day, Reconciliation, Adoration, Latin Rite, Children's Liturgy
%s

Text:
%s`, baselineHint, truncated)
}

// structuredDayTimeMap reduces a freshly fetched iCal feed or JSON-LD
// page to a day->times map, used when Tier 1/2 logic needs to compare
// baseline times against live structured data rather than free text.
func structuredDayTimeMap(sourceType model.SourceType, text string) (map[string][]string, error) {
	switch sourceType {
	case model.SourceICalFeed:
		return ical.ParseFeed(text)
	case model.SourceStructuredData:
		return ical.ParseStructuredData(text)
	default:
		return nil, fmt.Errorf("extractor: %q is not a structured source", sourceType)
	}
}
