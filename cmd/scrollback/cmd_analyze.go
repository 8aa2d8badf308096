package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"scrollback/internal/analysis"
	"scrollback/internal/config"
	"scrollback/internal/jobs"
)

// analyzeCmd re-runs the configured analyzer against an existing export.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [export-id]",
	Short: "Run the analyzer on an exported transcript",
	Long: `Analyze runs the configured analyzer command against the JSONL
transcript of an existing export and prints the summary it produces.
The export id may be abbreviated to any unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runner := analysis.New(cfg.Analysis.Command, cfg.Analysis.Args, cfg.GetAnalysisTimeout())
	if !runner.Enabled() {
		return fmt.Errorf("no analyzer configured; set analysis.command in %s",
			config.DefaultPath(resolveWorkspace()))
	}

	rec, err := openStore(cfg).FindExport(args[0])
	if err != nil {
		return err
	}
	jsonl, ok := rec.Files["jsonl"]
	if !ok {
		return fmt.Errorf("export %s has no jsonl transcript; re-export with --formats jsonl", rec.ID[:8])
	}

	ctx, cancel := commandContext()
	defer cancel()

	var summary string
	err = gate.Run(ctx, jobs.KindAnalysis, func(ctx context.Context) error {
		var runErr error
		summary, runErr = runner.Analyze(ctx, jsonl)
		return runErr
	})
	if err != nil {
		return err
	}

	fmt.Println(summary)
	return nil
}
