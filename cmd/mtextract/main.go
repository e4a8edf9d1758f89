// Command mtextract builds parish Mass-times extraction templates and
// runs the extraction pipeline against them.
//
// Usage:
//
//	mtextract build -parish <id> -name <name> -url <url> [-pdf] [-bulletin-url ...]
//	mtextract extract -templates <dir> -results <dir> [-anthropic-key <key>] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"

	"mtextract/internal/extractor"
	"mtextract/internal/fetcher"
	"mtextract/internal/llm"
	"mtextract/internal/model"
	"mtextract/internal/store"
	"mtextract/internal/template"
	"mtextract/internal/validator"
)

const maxConcurrentExtractions = 8

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mtextract <build|extract> [flags]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		runBuild(os.Args[2:])
	case "extract":
		runExtract(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(1)
	}
}

func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	parishID := fs.String("parish", "", "parish id (required)")
	parishName := fs.String("name", "", "parish name (required)")
	rawURL := fs.String("url", "", "parish web page URL (required unless -pdf)")
	isPDF := fs.Bool("pdf", false, "build from a bulletin PDF instead of a web page")
	bulletinURL := fs.String("bulletin-url", "", "bulletin listing page URL (required with -pdf)")
	pdfLinkPattern := fs.String("pdf-link-pattern", "", "regexp matching the latest bulletin PDF link")
	templatesDir := fs.String("templates", "disk/templates", "directory to write the template into")
	fs.Parse(args)

	if *parishID == "" || *parishName == "" {
		log.Fatal("-parish and -name are required")
	}

	parish := model.Parish{ID: *parishID, Name: *parishName, Status: model.ParishActive}
	f := fetcher.New()
	builder := template.NewBuilder(f)
	ctx := context.Background()

	var tpl *model.ParishTemplate
	var err error
	switch {
	case *isPDF:
		if *bulletinURL == "" {
			log.Fatal("-bulletin-url is required with -pdf")
		}
		pdfURL, findErr := f.FindLatestPDFLink(ctx, *bulletinURL, *pdfLinkPattern)
		if findErr != nil {
			log.Fatalf("failed to locate bulletin PDF: %v", findErr)
		}
		pdfBytes, _, fetchErr := f.FetchPDF(ctx, pdfURL)
		if fetchErr != nil {
			log.Fatalf("failed to fetch bulletin PDF: %v", fetchErr)
		}
		tpl, err = template.BuildPdfTemplate([][]byte{pdfBytes}, parish, *bulletinURL, *pdfLinkPattern)
	default:
		if *rawURL == "" {
			log.Fatal("-url is required unless -pdf")
		}
		tpl, err = builder.BuildWebTemplate(ctx, *rawURL, parish)
	}
	if err != nil {
		log.Fatalf("template build failed: %v", err)
	}
	if tpl == nil {
		log.Fatalf("no Mass-times section found for parish %s; no template written", *parishID)
	}

	s, closeStore, err := openBackend(*templatesDir)
	if err != nil {
		log.Fatalf("failed to open template store: %v", err)
	}
	defer closeStore()
	if err := store.NewTemplateStore(s).Save(*tpl); err != nil {
		log.Fatalf("failed to save template: %v", err)
	}

	log.Printf("built template for %s (%s), %d baseline days", tpl.ParishID, tpl.ExtractionMethod, len(tpl.BaselineTimes))
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	templatesDir := fs.String("templates", "disk/templates", "directory of saved templates")
	resultsDir := fs.String("results", "disk/results", "directory to write extraction results into")
	anthropicKey := fs.String("anthropic-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key for Tier 3 fallback")
	dryRun := fs.Bool("dry-run", false, "run extraction without persisting results")
	fs.Parse(args)

	templateBackend, closeTemplates, err := openBackend(*templatesDir)
	if err != nil {
		log.Fatalf("failed to open template store: %v", err)
	}
	defer closeTemplates()
	resultBackend, closeResults, err := openBackend(*resultsDir)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer closeResults()
	results := store.NewResultStore(resultBackend)
	templates := store.NewTemplateStore(templateBackend)

	parishIDs, err := listTemplateIDs(*templatesDir)
	if err != nil {
		log.Fatalf("failed to list templates: %v", err)
	}
	if len(parishIDs) == 0 {
		log.Fatalf("no templates found in %s", *templatesDir)
	}

	var llmClient llm.Client
	if *anthropicKey != "" {
		llmClient = llm.NewAnthropicClient(*anthropicKey)
	} else {
		log.Printf("no Anthropic API key configured, Tier 3 fallback disabled")
	}

	ex := extractor.New(fetcher.New(), llmClient, "")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sem     = make(chan struct{}, maxConcurrentExtractions)
		finals  []model.ExtractionResult
		flagged int
	)

	for _, parishID := range parishIDs {
		tpl, ok := templates.Load(parishID)
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(tpl model.ParishTemplate) {
			defer wg.Done()
			defer func() { <-sem }()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			result := ex.Extract(ctx, tpl)

			var previousTimes []model.MassTime
			if prev, ok := results.Load(tpl.ParishID); ok {
				previousTimes = prev.Times
			}
			result = validator.Validate(result, tpl.ValidationRules, previousTimes)

			mu.Lock()
			finals = append(finals, result)
			if result.ValidationStatus == model.StatusFlagged {
				flagged++
			}
			mu.Unlock()

			log.Printf("%s: tier=%d status=%s times=%d", tpl.ParishID, result.Tier, result.ValidationStatus, len(result.Times))
		}(tpl)
	}
	wg.Wait()

	if *dryRun {
		log.Printf("dry run complete: %d parishes, %d flagged", len(finals), flagged)
	} else {
		for _, result := range finals {
			if err := results.Save(result); err != nil {
				log.Printf("failed to save result for %s: %v", result.ParishID, err)
			}
		}
		log.Printf("saved %d results, %d flagged", len(finals), flagged)
	}

	if flagged > 0 {
		os.Exit(1)
	}
}

// openBackend picks the storage backend the way cmd/server/main.go in the
// teacher repo does: GCS_BUCKET wins if set, then GCP_PROJECT_ID selects
// Firestore, otherwise dir is used as a local disk directory. The returned
// close function releases any network client and is always safe to call.
func openBackend(dir string) (store.Backend, func(), error) {
	noop := func() {}

	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		ctx := context.Background()
		gcsStore, err := store.NewGCS(ctx, bucket)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("store: GCS bucket %s", bucket)
		return gcsStore, noop, nil
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		ctx := context.Background()
		fsStore, err := store.NewFirestore(ctx, projectID)
		if err != nil {
			return nil, noop, err
		}
		log.Printf("store: Firestore project %s", projectID)
		return fsStore, func() { fsStore.Close() }, nil
	}

	localStore, err := store.New(dir)
	if err != nil {
		return nil, noop, err
	}
	log.Printf("store: local directory %s", dir)
	return localStore, noop, nil
}

// listTemplateIDs enumerates templates by reading the local directory.
// GCS and Firestore backends have no directory to list, so -templates
// must still point at a local mirror of the template filenames even when
// GCS_BUCKET or GCP_PROJECT_ID selects a cloud store for the actual reads.
func listTemplateIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		const ext = ".json"
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			ids = append(ids, name[:len(name)-len(ext)])
		}
	}
	return ids, nil
}
