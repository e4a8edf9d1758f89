// Package template builds and persists ParishTemplate extraction recipes
// by analysing a parish's web page or bulletin PDFs using structural
// heuristics — no LLM involved. See internal/extractor for the pipeline
// that later runs a template against fresh content.
package template

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pmezard/go-difflib/difflib"

	"mtextract/internal/fetcher"
	"mtextract/internal/model"
	"mtextract/internal/parser"
)

const staticDynamicThreshold = 0.95

// Builder builds ParishTemplate values from live sources.
type Builder struct {
	Fetcher *fetcher.Fetcher
}

// NewBuilder returns a Builder backed by f.
func NewBuilder(f *fetcher.Fetcher) *Builder {
	return &Builder{Fetcher: f}
}

type candidate struct {
	selection *goquery.Selection
	selector  string
	priority  int
}

var reMassID = regexp.MustCompile(`(?i)mass|times|schedule|liturgy`)

// BuildWebTemplate fetches url, locates its Mass-times section via a
// ranked set of structural heuristics, and extracts baseline times from
// it. It returns nil (no error) when no section or no times could be
// found, mirroring the build pipeline's "leave this parish for Tier 3"
// behaviour.
func (b *Builder) BuildWebTemplate(ctx context.Context, rawURL string, parish model.Parish) (*model.ParishTemplate, error) {
	html, _, err := b.Fetcher.FetchPage(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("template: fetching %s: %w", rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("template: parsing %s: %w", rawURL, err)
	}

	section, selector, fallbacks := findMassTimesSection(doc)
	if section == nil {
		return nil, nil
	}

	sectionText := ExtractSectionText(section)
	baseline := parser.ParseDayTimeBlock(sectionText)
	if len(baseline) == 0 {
		return nil, nil
	}

	now := time.Now()
	return &model.ParishTemplate{
		ParishID:         parish.ID,
		ParishName:       parish.Name,
		SourceType:       model.SourceWebsitePage,
		SourcePriority:   []model.SourceType{model.SourceWebsitePage},
		ExtractionMethod: "css_selector_regex",
		WebTemplate: &model.WebTemplate{
			URL:               rawURL,
			SectionSelector:   selector,
			FallbackSelectors: fallbacks,
			TimeRegex:         `\d{1,2}[:.]\d{2}\s*[AaPp]\.?[Mm]\.?`,
			DayRegex:          `(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)`,
			Encoding:          "utf-8",
		},
		BaselineTimes:   baseline,
		ValidationRules: model.DefaultValidationRules(),
		TemplateVersion: 1,
		CreatedAt:       now,
		LastValidated:   now,
		BuildMethod:     "automated",
	}, nil
}

// findMassTimesSection applies, in priority order: heading match, the
// heading's next sibling, id-match, class-match, table-with-day-and-time,
// list-with-time. The best (lowest-priority-number) candidate wins; the
// next three candidates become fallback selectors.
func findMassTimesSection(doc *goquery.Document) (*goquery.Selection, string, []string) {
	var candidates []candidate

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, heading *goquery.Selection) {
		if !parser.HasMassTimesHeading(strings.TrimSpace(heading.Text())) {
			return
		}
		if parent := heading.Parent(); parent.Length() > 0 {
			candidates = append(candidates, candidate{parent, buildSelector(parent), 1})
		}
		if next := heading.Next(); next.Length() > 0 {
			candidates = append(candidates, candidate{next, buildSelector(next), 2})
		}
	})

	doc.Find("[id]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		if reMassID.MatchString(id) {
			candidates = append(candidates, candidate{sel, "#" + id, 3})
		}
	})

	doc.Find("[class]").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		for _, cls := range strings.Fields(class) {
			if reMassID.MatchString(cls) {
				candidates = append(candidates, candidate{sel, "." + cls, 4})
				break
			}
		}
	})

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := table.Text()
		if len(parser.FindDays(text)) > 0 && len(parser.FindTimes(text)) > 0 {
			candidates = append(candidates, candidate{table, buildSelector(table), 5})
		}
	})

	doc.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		text := list.Text()
		if len(parser.FindTimes(text)) > 0 && (len(parser.FindDays(text)) > 0 || parser.HasMassTimesHeading(text)) {
			candidates = append(candidates, candidate{list, buildSelector(list), 6})
		}
	})

	if len(candidates) == 0 {
		return nil, "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })

	best := candidates[0]
	var fallbacks []string
	for _, c := range candidates[1:] {
		if len(fallbacks) >= 3 {
			break
		}
		fallbacks = append(fallbacks, c.selector)
	}
	return best.selection, best.selector, fallbacks
}

// buildSelector constructs a CSS selector for sel, preferring id, then
// class, then tag-with-parent-context.
func buildSelector(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		return "#" + id
	}
	tag := goquery.NodeName(sel)
	if class, ok := sel.Attr("class"); ok && class != "" {
		return tag + "." + strings.Join(strings.Fields(class), ".")
	}
	parent := sel.Parent()
	if parent.Length() > 0 && goquery.NodeName(parent) != "#document" {
		var parentSelector string
		if id, ok := parent.Attr("id"); ok && id != "" {
			parentSelector = "#" + id
		} else if class, ok := parent.Attr("class"); ok && class != "" {
			parentSelector = goquery.NodeName(parent) + "." + strings.Join(strings.Fields(class), ".")
		} else {
			parentSelector = goquery.NodeName(parent)
		}
		return parentSelector + " > " + tag
	}
	return tag
}

// ExtractSectionText renders a section's text, joining each table row's
// cells with spaces so a day and its time stay on one line, the way a
// human-authored schedule line would read. Direct children are each put
// on their own line so block-level structure survives even when the
// source HTML carries no whitespace between tags.
func ExtractSectionText(section *goquery.Selection) string {
	var lines []string

	section.Find("table").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				if text := strings.TrimSpace(cell.Text()); text != "" {
					cells = append(cells, text)
				}
			})
			if line := strings.Join(cells, " "); strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		})
	})

	section.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "table" {
			return
		}
		if text := strings.TrimSpace(child.Text()); text != "" {
			lines = append(lines, text)
		}
	})

	if len(lines) == 0 {
		return strings.TrimSpace(section.Text())
	}
	return strings.Join(lines, "\n")
}

// textLine is a line of PDF text grouped by y-proximity, with the
// bounding box and max font size of its constituent glyphs.
type textLine struct {
	page             int
	x0, y0, x1, y1   float64
	text             string
	size             float64
}

// BuildPdfTemplate analyses one or more bulletin PDF byte strings (usually
// successive issues of the same bulletin) and builds a PdfTemplate. When
// more than one PDF is supplied, the located region is diffed across all
// of them to classify the section as static or dynamic.
func BuildPdfTemplate(pdfBytesList [][]byte, parish model.Parish, bulletinPageURL, pdfLinkPattern string) (*model.ParishTemplate, error) {
	if len(pdfBytesList) == 0 {
		return nil, fmt.Errorf("template: no pdfs supplied")
	}

	primary := pdfBytesList[0]
	now := time.Now()

	page, region, headingText, headingSize, ok, err := findPdfMassTimesSection(primary)
	if err != nil {
		return nil, err
	}
	if !ok {
		fullText, err := fetcher.ExtractTextFromPDF(primary)
		if err != nil {
			return nil, err
		}
		baseline := parser.ParseDayTimeBlock(fullText)
		if len(baseline) == 0 {
			return nil, nil
		}
		return &model.ParishTemplate{
			ParishID:         parish.ID,
			ParishName:       parish.Name,
			SourceType:       model.SourcePDFBulletin,
			SourcePriority:   []model.SourceType{model.SourcePDFBulletin},
			ExtractionMethod: "pdf_fulltext_regex",
			PdfTemplate: &model.PdfTemplate{
				BulletinPageURL: bulletinPageURL,
				PdfLinkPattern:  pdfLinkPattern,
				SectionStatic:   true,
			},
			BaselineTimes:   baseline,
			ValidationRules: model.DefaultValidationRules(),
			TemplateVersion: 1,
			CreatedAt:       now,
			LastValidated:   now,
			BuildMethod:     "automated",
		}, nil
	}

	regionText, err := fetcher.ExtractTextFromRegion(primary, page, region.XMin, region.YMin, region.XMax, region.YMax)
	if err != nil {
		return nil, err
	}
	baseline := parser.ParseDayTimeBlock(regionText)
	if len(baseline) == 0 {
		fullText, err := fetcher.ExtractTextFromPDF(primary)
		if err != nil {
			return nil, err
		}
		baseline = parser.ParseDayTimeBlock(fullText)
	}

	isStatic, err := classifyStaticDynamic(pdfBytesList, page, region)
	if err != nil {
		return nil, err
	}

	return &model.ParishTemplate{
		ParishID:         parish.ID,
		ParishName:       parish.Name,
		SourceType:       model.SourcePDFBulletin,
		SourcePriority:   []model.SourceType{model.SourcePDFBulletin},
		ExtractionMethod: "pdf_region_regex",
		PdfTemplate: &model.PdfTemplate{
			BulletinPageURL: bulletinPageURL,
			PdfLinkPattern:  pdfLinkPattern,
			MassTimesPage:   page,
			BoundingRegion:  region,
			HeadingText:     headingText,
			HeadingFontSize: headingSize,
			SectionStatic:   isStatic,
		},
		BaselineTimes:   baseline,
		ValidationRules: model.DefaultValidationRules(),
		TemplateVersion: 1,
		CreatedAt:       now,
		LastValidated:   now,
		BuildMethod:     "automated",
	}, nil
}

// findPdfMassTimesSection searches the PDF's text lines for a Mass-times
// heading, then grows a bounding region downward on the same page to
// cover every following line that carries a day or a time, stopping at
// the next similarly-sized heading. A 20pt margin is added on every side.
// "Downward" means toward the bottom of the page, i.e. decreasing y0 in
// ledongthuc/pdf's bottom-origin coordinate space.
func findPdfMassTimesSection(pdfBytes []byte) (page int, region model.BoundingRegion, headingText string, headingSize float64, ok bool, err error) {
	elements, err := fetcher.ExtractTextWithCoords(pdfBytes)
	if err != nil {
		return 0, model.BoundingRegion{}, "", 0, false, err
	}
	if len(elements) == 0 {
		return 0, model.BoundingRegion{}, "", 0, false, nil
	}

	lines := groupCharsToLines(elements)
	return locateMassTimesSection(lines)
}

// locateMassTimesSection runs the heading search and region growth over an
// already-grouped, reading-order set of lines. Split out from
// findPdfMassTimesSection so it can be exercised directly against a
// synthetic glyph stream without round-tripping through a PDF file.
func locateMassTimesSection(lines []textLine) (page int, region model.BoundingRegion, headingText string, headingSize float64, ok bool, err error) {
	for _, line := range lines {
		if !parser.HasMassTimesHeading(line.text) {
			continue
		}

		regionLines := []textLine{line}
		for _, other := range lines {
			if other.page != line.page || other.y0 >= line.y0 {
				continue
			}
			if len(parser.FindTimes(other.text)) > 0 || len(parser.FindDays(other.text)) > 0 {
				regionLines = append(regionLines, other)
				continue
			}
			if other.size >= line.size*0.9 && len(other.text) > 3 {
				if !parser.HasMassTimesHeading(other.text) && len(parser.FindTimes(other.text)) == 0 {
					break
				}
			}
		}

		if len(regionLines) < 2 {
			continue
		}

		const margin = 20.0
		xMin, yMin := regionLines[0].x0, regionLines[0].y0
		xMax, yMax := regionLines[0].x1, regionLines[0].y1
		for _, l := range regionLines[1:] {
			xMin = min(xMin, l.x0)
			yMin = min(yMin, l.y0)
			xMax = max(xMax, l.x1)
			yMax = max(yMax, l.y1)
		}
		xMin -= margin
		yMin -= margin
		xMax += margin
		yMax += margin
		if xMin < 0 {
			xMin = 0
		}
		if yMin < 0 {
			yMin = 0
		}

		return line.page, model.BoundingRegion{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}, line.text, line.size, true, nil
	}

	return 0, model.BoundingRegion{}, "", 0, false, nil
}

// groupCharsToLines sorts glyphs into reading order and merges consecutive
// glyphs within 3pt of vertical proximity into a single line. ledongthuc/pdf
// reports glyph coordinates in PDF user space, origin at the page's
// bottom-left with y increasing upward, so reading order (top of the page
// first) is descending y0, not ascending.
func groupCharsToLines(elements []fetcher.TextElement) []textLine {
	if len(elements) == 0 {
		return nil
	}

	sort.Slice(elements, func(i, j int) bool {
		if elements[i].Page != elements[j].Page {
			return elements[i].Page < elements[j].Page
		}
		if elements[i].Y0 != elements[j].Y0 {
			return elements[i].Y0 > elements[j].Y0
		}
		return elements[i].X0 < elements[j].X0
	})

	var lines []textLine
	current := textLine{
		page: elements[0].Page,
		x0:   elements[0].X0, y0: elements[0].Y0,
		x1: elements[0].X1, y1: elements[0].Y1,
		text: elements[0].Text, size: elements[0].FontSize,
	}

	for _, e := range elements[1:] {
		if e.Page == current.page && abs(e.Y0-current.y0) < 3 {
			current.text += e.Text
			current.x1 = max(current.x1, e.X1)
			current.y1 = max(current.y1, e.Y1)
			current.size = max(current.size, e.FontSize)
			continue
		}
		if strings.TrimSpace(current.text) != "" {
			lines = append(lines, current)
		}
		current = textLine{
			page: e.Page, x0: e.X0, y0: e.Y0, x1: e.X1, y1: e.Y1,
			text: e.Text, size: e.FontSize,
		}
	}
	if strings.TrimSpace(current.text) != "" {
		lines = append(lines, current)
	}
	return lines
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// classifyStaticDynamic reports whether the given region's text is
// effectively identical (ratio >= 0.95, every pair) across every PDF
// supplied. A single PDF can't establish dynamism and is assumed static.
func classifyStaticDynamic(pdfBytesList [][]byte, page int, region model.BoundingRegion) (bool, error) {
	if len(pdfBytesList) < 2 {
		return true, nil
	}

	texts := make([]string, len(pdfBytesList))
	for i, pdfBytes := range pdfBytesList {
		text, err := fetcher.ExtractTextFromRegion(pdfBytes, page, region.XMin, region.YMin, region.XMax, region.YMax)
		if err != nil {
			return false, err
		}
		texts[i] = strings.TrimSpace(text)
	}

	for i := 0; i < len(texts); i++ {
		for j := i + 1; j < len(texts); j++ {
			matcher := difflib.NewMatcher(strings.Split(texts[i], ""), strings.Split(texts[j], ""))
			if matcher.Ratio() < staticDynamicThreshold {
				return false, nil
			}
		}
	}
	return true, nil
}
