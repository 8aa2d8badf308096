package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scrollback/internal/diagnose"
	"scrollback/internal/scrape"
)

var diagnoseJSON bool

// diagnoseCmd runs the full check pipeline
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check whether the scraper's structural assumptions still hold",
	Long: `Runs every registered diagnostic against the live page: browser
connectivity, URL shape, page landmarks, message detection, scroll
capability, and network capture activity. Requires a browser launched
via 'scrollback browser launch'; never starts one itself.

A failing check does not stop the pipeline - you always get the full
report.`,
	RunE: runDiagnose,
}

// checkCmd runs one named check
var checkCmd = &cobra.Command{
	Use:   "check [id]",
	Short: "Run a single diagnostic check by id",
	Long: `Runs exactly one check and prints its result. Useful as a quick
"is scrolling still possible" probe between scrapes without paying for
the whole pipeline.

Run without arguments to list the available check ids.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(checkCmd)
}

// diagnoseEnv connects to the live page and wires a passive capture
// buffer so the activity check sees real traffic. The returned cleanup
// detaches everything.
func diagnoseEnv() (*diagnose.Context, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	mgr, page, err := connectPage(cfg)
	if err != nil {
		return nil, nil, err
	}

	agg := scrape.NewAggregator(cfg.Intercept.URLPatterns)
	if err := agg.Attach(page); err != nil {
		logger.Warn("capture buffer not attached", zap.Error(err))
	}

	env := &diagnose.Context{Page: page, Intercepted: agg.Count}
	cleanup := func() {
		agg.Detach()
		mgr.Stop()
	}
	return env, cleanup, nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	env, cleanup, err := diagnoseEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	report := diagnose.NewPipeline().Run(ctx, env)

	if diagnoseJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printReport(report)
	}

	if report.Summary.Fail > 0 {
		return fmt.Errorf("%d check(s) failed", report.Summary.Fail)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	pipeline := diagnose.NewPipeline()
	if len(args) == 0 {
		fmt.Println("Available checks:")
		for _, id := range pipeline.IDs() {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}
	id := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	env, cleanup, err := diagnoseEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	res := pipeline.RunSingle(ctx, env, id)
	if res == nil {
		return fmt.Errorf("unknown check %q (known: %s)", id, strings.Join(pipeline.IDs(), ", "))
	}

	fmt.Printf("%s %s: %s\n", statusMark(res.Status), res.Name, res.Message)
	if res.Status == diagnose.StatusFail {
		return fmt.Errorf("check %s failed", id)
	}
	return nil
}

func printReport(report *diagnose.Report) {
	if report.URL != "" {
		fmt.Printf("Page: %s\n\n", report.URL)
	}
	for _, c := range report.Checks {
		fmt.Printf("%s %-22s %s\n", statusMark(c.Status), c.ID, c.Message)
	}
	fmt.Printf("\n%d pass, %d warn, %d fail, %d info in %dms\n",
		report.Summary.Pass, report.Summary.Warn, report.Summary.Fail,
		report.Summary.Info, report.DurationMs)
}

func statusMark(s diagnose.Status) string {
	switch s {
	case diagnose.StatusPass:
		return "✓"
	case diagnose.StatusWarn:
		return "!"
	case diagnose.StatusFail:
		return "✗"
	default:
		return "·"
	}
}
