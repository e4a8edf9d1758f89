// Package fetcher retrieves parish web pages, bulletin PDFs, iCal feeds,
// and structured-data endpoints over HTTP, with per-domain rate limiting,
// robots.txt enforcement, retry-with-backoff, and content hashing.
//
// This is the concrete collaborator the template builder and extractor are
// wired against; the source specification treated fetching as an external
// black box, but a runnable module needs a real implementation of it.
package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/temoto/robotstxt"
)

const (
	userAgent     = "NWP-MassTimesFetcher/1.0 (+https://mt.nwpcode.org; Catholic mass times aggregator)"
	requestDelay  = 2 * time.Second
	maxRetries    = 3
	requestTimeout = 30 * time.Second
)

// TextElement is a single glyph (or run of glyphs) recognised at a
// position on a PDF page.
type TextElement struct {
	Page     int
	X0, Y0   float64
	X1, Y1   float64
	Text     string
	FontSize float64
	FontName string
}

// Fetcher retrieves and hashes remote content. A single Fetcher is safe
// for concurrent use by multiple goroutines; its rate-limit and robots.txt
// caches are the only mutable shared state and are mutex-guarded.
type Fetcher struct {
	client *http.Client

	mu              sync.Mutex
	lastRequestAt   map[string]time.Time
	robotsCache     map[string]*robotstxt.RobotsData
}

// New returns a ready-to-use Fetcher.
func New() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: requestTimeout,
		},
		lastRequestAt: make(map[string]time.Time),
		robotsCache:   make(map[string]*robotstxt.RobotsData),
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (f *Fetcher) rateLimit(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	domain := u.Host

	f.mu.Lock()
	last, ok := f.lastRequestAt[domain]
	f.mu.Unlock()

	if ok {
		elapsed := time.Since(last)
		if elapsed < requestDelay {
			time.Sleep(requestDelay - elapsed)
		}
	}

	f.mu.Lock()
	f.lastRequestAt[domain] = time.Now()
	f.mu.Unlock()
}

func (f *Fetcher) checkRobots(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	f.mu.Lock()
	data, cached := f.robotsCache[robotsURL]
	f.mu.Unlock()

	if !cached {
		data = f.fetchRobots(ctx, robotsURL)
		f.mu.Lock()
		f.robotsCache[robotsURL] = data
		f.mu.Unlock()
	}
	if data == nil {
		return true
	}
	group := data.FindGroup(userAgent)
	return group.Test(u.Path)
}

func (f *Fetcher) fetchRobots(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}

// FetchPage retrieves an HTML page, returning its body and a sha256 hex
// content hash. It makes up to three attempts, with exponential backoff
// (2s, then 4s) between them, and honours robots.txt and per-domain rate
// limiting.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (string, string, error) {
	if !f.checkRobots(ctx, rawURL) {
		return "", "", fmt.Errorf("fetcher: blocked by robots.txt: %s", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		f.rateLimit(rawURL)

		body, err := f.doGet(ctx, rawURL)
		if err == nil {
			html := string(body)
			return html, sha256Hex(body), nil
		}
		lastErr = err
		log.Printf("fetcher: attempt %d/%d failed for %s: %v", attempt+1, maxRetries, rawURL, err)
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(1<<uint(attempt+1)) * time.Second)
		}
	}
	return "", "", fmt.Errorf("fetcher: all attempts failed for %s: %w", rawURL, lastErr)
}

// FetchPDF retrieves a PDF document, returning its raw bytes and a sha256
// hex content hash.
func (f *Fetcher) FetchPDF(ctx context.Context, rawURL string) ([]byte, string, error) {
	if !f.checkRobots(ctx, rawURL) {
		return nil, "", fmt.Errorf("fetcher: blocked by robots.txt: %s", rawURL)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		f.rateLimit(rawURL)

		body, err := f.doGet(ctx, rawURL)
		if err == nil {
			return body, sha256Hex(body), nil
		}
		lastErr = err
		log.Printf("fetcher: attempt %d/%d failed for %s: %v", attempt+1, maxRetries, rawURL, err)
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(1<<uint(attempt+1)) * time.Second)
		}
	}
	return nil, "", fmt.Errorf("fetcher: all attempts failed for %s: %w", rawURL, lastErr)
}

func (f *Fetcher) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var rePDFHref = regexp.MustCompile(`(?i)\.pdf(\?|$)`)

// FindLatestPDFLink fetches bulletinPageURL and returns the last matching
// PDF link found on the page — archive pages conventionally list bulletins
// oldest-first, so the last link is the most recent. If linkPattern is
// non-empty, only hrefs matching it are considered.
func (f *Fetcher) FindLatestPDFLink(ctx context.Context, bulletinPageURL, linkPattern string) (string, error) {
	html, _, err := f.FetchPage(ctx, bulletinPageURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	base, err := url.Parse(bulletinPageURL)
	if err != nil {
		return "", err
	}

	var pattern *regexp.Regexp
	if linkPattern != "" {
		pattern, err = regexp.Compile("(?i)" + linkPattern)
		if err != nil {
			return "", fmt.Errorf("fetcher: invalid pdf link pattern: %w", err)
		}
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !rePDFHref.MatchString(href) {
			return
		}
		if pattern != nil && !pattern.MatchString(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})

	if len(links) == 0 {
		return "", fmt.Errorf("fetcher: no pdf links found on %s", bulletinPageURL)
	}
	return links[len(links)-1], nil
}

// ExtractTextFromPDF returns the concatenated plain text of every page in
// the PDF.
func ExtractTextFromPDF(pdfBytes []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("fetcher: opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// ExtractTextWithCoords returns every glyph run in the PDF along with its
// page and bounding coordinates, for use by the template builder's
// heading search and region growth.
func ExtractTextWithCoords(pdfBytes []byte) ([]TextElement, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("fetcher: opening pdf: %w", err)
	}

	var elements []TextElement
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		for _, t := range content.Text {
			elements = append(elements, TextElement{
				Page:     i,
				X0:       t.X,
				Y0:       t.Y,
				X1:       t.X + t.W,
				Y1:       t.Y,
				Text:     t.S,
				FontSize: t.FontSize,
				FontName: t.Font,
			})
		}
	}
	return elements, nil
}

// ExtractTextFromRegion returns the text of every glyph on pageNum whose
// origin falls within the given bounding box.
func ExtractTextFromRegion(pdfBytes []byte, pageNum int, xMin, yMin, xMax, yMax float64) (string, error) {
	elements, err := ExtractTextWithCoords(pdfBytes)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range elements {
		if e.Page != pageNum {
			continue
		}
		if e.X0 < xMin || e.X0 > xMax || e.Y0 < yMin || e.Y0 > yMax {
			continue
		}
		sb.WriteString(e.Text)
	}
	return sb.String(), nil
}
