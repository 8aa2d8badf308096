package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scrollback/cmd/scrollback/viewer"
	"scrollback/internal/analysis"
	"scrollback/internal/export"
)

// viewCmd opens an exported transcript in the terminal viewer.
var viewCmd = &cobra.Command{
	Use:   "view [export-id]",
	Short: "Browse an exported transcript in the terminal",
	Long: `View opens the transcript of an export in a scrollable terminal
viewer. When the analyzer has written a summary for the export, Tab
switches between the transcript and the summary. With no id, the most
recent export is opened.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := openStore(cfg)

	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		recs, err := st.ListExports()
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("no exports yet; run 'scrollback scrape <url>' first")
		}
		id = recs[0].ID
	}

	rec, err := st.FindExport(id)
	if err != nil {
		return err
	}
	jsonl, ok := rec.Files["jsonl"]
	if !ok {
		return fmt.Errorf("export %s has no jsonl transcript; re-export with --formats jsonl", rec.ID[:8])
	}

	msgs, err := export.ReadJSONL(jsonl)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	// Summary is optional; absence just hides the pane.
	summary := ""
	if data, err := os.ReadFile(analysis.SummaryPath(jsonl)); err == nil {
		summary = string(data)
	}

	return viewer.Run(viewer.Options{
		Character: rec.Character,
		URL:       rec.URL,
		Messages:  msgs,
		Summary:   summary,
	})
}
