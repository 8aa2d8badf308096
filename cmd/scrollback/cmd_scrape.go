package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scrollback/internal/analysis"
	"scrollback/internal/config"
	"scrollback/internal/export"
	"scrollback/internal/jobs"
	"scrollback/internal/scrape"
	"scrollback/internal/store"
)

var (
	scrapeReverse    bool
	scrapeNameHint   string
	scrapeCharacter  string
	scrapeFormats    []string
	scrapeNoExport   bool
	scrapeNoAnalysis bool
)

// scrapeCmd captures one full transcript
var scrapeCmd = &cobra.Command{
	Use:   "scrape [url]",
	Short: "Scrape the full transcript of one conversation",
	Long: `Navigates to the conversation, repeatedly provokes the page into
revealing older history, and extracts the complete ordered transcript.

Intercepted network records are preferred; heuristic DOM reading is the
fallback. When automated scrolling stalls hard you will be asked to
scroll manually in the browser window.

The transcript is exported in the configured formats and, when an
analyzer is configured, analyzed afterwards. Zero recovered messages is
reported as a warning, not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

// sidebarCmd lists visible conversations
var sidebarCmd = &cobra.Command{
	Use:   "sidebar [url]",
	Short: "List conversations visible in the app's sidebar",
	Long: `Scans the live page for conversation links and prints each entry's
name, URL, and last-message preview. Navigates to the given URL first,
or to target.base_url from the config when set; otherwise scans
whatever page the browser is currently on.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSidebar,
}

// hydrateCmd bulk-captures character metadata
var hydrateCmd = &cobra.Command{
	Use:   "hydrate [url...]",
	Short: "Capture character metadata for many conversations",
	Long: `Visits each URL in turn and records the character metadata its load
traffic carries. With no URLs, the sidebar is scanned first and every
conversation found is hydrated. Individual failures are reported per
URL; cancellation stops the batch between URLs.`,
	RunE: runHydrate,
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeReverse, "reverse", false, "Reverse the final message order")
	scrapeCmd.Flags().StringVar(&scrapeNameHint, "name-hint", "", "Character display name to strip from DOM text")
	scrapeCmd.Flags().StringVar(&scrapeCharacter, "character", "", "Character name recorded with the export (default: name hint)")
	scrapeCmd.Flags().StringSliceVar(&scrapeFormats, "format", nil, "Export formats: jsonl, json, markdown (default from config)")
	scrapeCmd.Flags().BoolVar(&scrapeNoExport, "no-export", false, "Skip writing export files")
	scrapeCmd.Flags().BoolVar(&scrapeNoAnalysis, "no-analysis", false, "Skip the external analyzer")

	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(sidebarCmd)
	rootCmd.AddCommand(hydrateCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	url := args[0]
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := openStore(cfg)
	settings, err := st.LoadSettings()
	if err != nil {
		logger.Warn("settings unreadable, using defaults", zap.Error(err))
		settings = store.DefaultSettings()
	}

	nameHint := scrapeNameHint
	if nameHint == "" {
		nameHint = cfg.Target.NameHint
	}
	if nameHint == "" {
		nameHint = settings.NameHint
	}
	character := scrapeCharacter
	if character == "" {
		character = nameHint
	}
	reverse := scrapeReverse || settings.Reverse

	mgr, page, err := startPage(cfg)
	if err != nil {
		return err
	}
	defer mgr.Stop()

	scraper := newScraper(page, cfg)
	scraper.RegisterManualInterventionHandler(promptManualIntervention)

	logger.Info("scraping conversation", zap.String("url", url), zap.Bool("reverse", reverse))

	var res *scrape.Result
	err = gate.Run(ctx, jobs.KindScrape, func(ctx context.Context) error {
		var scrapeErr error
		res, scrapeErr = scraper.ScrapeChat(ctx, url, scrape.ExtractOptions{
			Reverse:  reverse,
			NameHint: nameHint,
		})
		return scrapeErr
	})
	if err != nil {
		return err
	}

	saveSnapshot(st, res)
	rememberScrape(st, settings, url, nameHint, reverse)
	printScrapeSummary(res)

	if res.Empty() {
		fmt.Fprintln(os.Stderr, "Warning: no messages were recovered; skipping export and analysis.")
		return nil
	}
	if scrapeNoExport {
		return nil
	}

	formats := scrapeFormats
	if len(formats) == 0 {
		formats = cfg.Export.Formats
	}
	rec, err := export.New(st).Export(ctx, res, character, formats)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Printf("Exported %s (%d messages)\n", rec.ID, rec.Messages)
	for format, path := range rec.Files {
		fmt.Printf("  %-8s %s\n", format, path)
	}

	if scrapeNoAnalysis || !settings.AnalyzerEnabled {
		return nil
	}
	runner := analysis.New(cfg.Analysis.Command, cfg.Analysis.Args, cfg.GetAnalysisTimeout())
	if !runner.Enabled() {
		return nil
	}
	jsonlPath, ok := rec.Files["jsonl"]
	if !ok {
		fmt.Fprintln(os.Stderr, "Analyzer needs a jsonl export; add 'jsonl' to the formats to analyze.")
		return nil
	}
	summary, err := runner.Analyze(ctx, jsonlPath)
	if err != nil {
		// Analysis is a bonus step; a broken analyzer must not fail the
		// scrape that already succeeded.
		fmt.Fprintf(os.Stderr, "Warning: analysis failed: %v\n", err)
		return nil
	}
	fmt.Printf("\n%s\n", summary)
	return nil
}

func runSidebar(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, page, err := startPage(cfg)
	if err != nil {
		return err
	}
	defer mgr.Stop()

	scraper := newScraper(page, cfg)

	target := cfg.Target.BaseURL
	if len(args) > 0 {
		target = args[0]
	}
	if target != "" {
		if err := scraper.Prepare(ctx, target); err != nil {
			return err
		}
	}

	entries, err := scraper.ScanSidebar(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No conversations found on the current page.")
		return nil
	}

	fmt.Printf("%d conversation(s):\n\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  %s\n    %s\n", e.Name, e.URL)
		if e.LastMessage != "" {
			fmt.Printf("    %s\n", e.LastMessage)
		}
		fmt.Println()
	}
	return nil
}

func runHydrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, page, err := startPage(cfg)
	if err != nil {
		return err
	}
	defer mgr.Stop()

	scraper := newScraper(page, cfg)

	urls := args
	if len(urls) == 0 {
		if cfg.Target.BaseURL != "" {
			if err := scraper.Prepare(ctx, cfg.Target.BaseURL); err != nil {
				return err
			}
		}
		entries, err := scraper.ScanSidebar(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			urls = append(urls, e.URL)
		}
	}
	if len(urls) == 0 {
		fmt.Println("Nothing to hydrate.")
		return nil
	}

	logger.Info("hydrating characters", zap.Int("urls", len(urls)))

	var results []scrape.HydrationResult
	err = gate.Run(ctx, jobs.KindHydrate, func(ctx context.Context) error {
		var hydrateErr error
		results, hydrateErr = scraper.HydrateCharacters(ctx, urls)
		return hydrateErr
	})
	// Per-URL failures are inside results; err here is cancellation or a
	// dead page.
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("  ✗ %s: %v\n", r.URL, r.Err)
		default:
			name, _ := r.Meta["name"].(string)
			if name == "" {
				name = "(metadata captured)"
			}
			fmt.Printf("  ✓ %s: %s\n", r.URL, name)
		}
	}
	return err
}

// newScraper builds the scrape service from config.
func newScraper(page scrape.Page, cfg *config.Config) *scrape.Scraper {
	return scrape.New(page, scrape.Options{
		HistoryPatterns: cfg.Intercept.URLPatterns,
		Driver:          driverOptions(cfg),
		MaxTextRunes:    cfg.Scrape.MaxTextRunes,
	})
}

// promptManualIntervention asks the operator to scroll by hand. Writes
// to stderr so piped stdout stays clean.
func promptManualIntervention() bool {
	fmt.Fprintln(os.Stderr, "\nAutomated scrolling has stalled.")
	fmt.Fprintln(os.Stderr, "Scroll the conversation manually in the browser window, then answer below.")
	fmt.Fprint(os.Stderr, "Keep scraping? [y/N]: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// saveSnapshot records the session outcome; failure to persist it never
// fails the scrape.
func saveSnapshot(st *store.Store, res *scrape.Result) {
	snap := store.SessionSnapshot{
		ID:          res.SessionID,
		URL:         res.URL,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Messages:    len(res.Messages),
		Source:      res.Diagnostics.Source,
		Intercepted: res.Capture.HistoryHits,
	}
	if res.Drive != nil {
		snap.Cycles = res.Drive.Cycles
		snap.StoppedBy = res.Drive.StoppedBy
		snap.Intercepted = res.Drive.FinalInterceptedCount
	}
	if err := st.SaveSession(snap); err != nil {
		logger.Warn("session snapshot not saved", zap.Error(err))
	}
}

// rememberScrape stores the last-used scrape inputs for next time.
func rememberScrape(st *store.Store, settings store.Settings, url, nameHint string, reverse bool) {
	settings.LastURL = url
	if nameHint != "" {
		settings.NameHint = nameHint
	}
	settings.Reverse = reverse
	if err := st.SaveSettings(settings); err != nil {
		logger.Warn("settings not saved", zap.Error(err))
	}
}

func printScrapeSummary(res *scrape.Result) {
	fmt.Printf("Recovered %d message(s) via %s in %dms\n",
		len(res.Messages), res.Diagnostics.Source, res.Diagnostics.DurationMs)
	if res.Drive != nil {
		fmt.Printf("  cycles=%d dom=%d intercepted=%d stopped_by=%s\n",
			res.Drive.Cycles, res.Drive.FinalDOMCount, res.Drive.FinalInterceptedCount, res.Drive.StoppedBy)
	}
	stats := res.Capture
	fmt.Printf("  responses=%d history_hits=%d transient_warns=%d parse_failures=%d\n",
		stats.Responses, stats.HistoryHits, stats.TransientWarns, stats.ParseFailures)
}
